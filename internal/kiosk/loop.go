package kiosk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mattjoyce/ranortv/internal/log"
)

// ErrClosed is returned by Do once the loop has stopped.
var ErrClosed = errors.New("kiosk loop closed")

type request struct {
	fn    func(*Session) error
	reply chan error
}

// Loop is the only goroutine that touches its Session.
type Loop struct {
	session *Session
	reqs    chan request
	done    chan struct{}
	logger  *slog.Logger
}

func NewLoop(s *Session) *Loop {
	return &Loop{
		session: s,
		reqs:    make(chan request),
		done:    make(chan struct{}),
		logger:  log.WithComponent("kiosk"),
	}
}

// Run processes submitted closures until ctx is cancelled. Each closure runs to
// completion before the next is taken.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("kiosk loop started")
	defer l.logger.Info("kiosk loop stopped")
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-l.reqs:
			req.reply <- l.run(req.fn)
		}
	}
}

func (l *Loop) run(fn func(*Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("kiosk handler panicked", "panic", r)
			err = errors.New("kiosk handler panicked")
		}
	}()
	return fn(l.session)
}

// Do submits fn and waits for it to finish. If ctx ends after fn was accepted,
// fn still runs but Do returns ctx.Err().
func (l *Loop) Do(ctx context.Context, fn func(*Session) error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case l.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query runs fn on the loop and returns its value.
func Query[T any](ctx context.Context, l *Loop, fn func(*Session) (T, error)) (T, error) {
	result := make(chan T, 1)
	err := l.Do(ctx, func(s *Session) error {
		v, err := fn(s)
		result <- v
		return err
	})
	select {
	case v := <-result:
		return v, err
	default:
		var zero T
		return zero, err
	}
}
