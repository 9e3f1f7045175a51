package kiosk

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/history"
	"github.com/mattjoyce/ranortv/internal/launch"
	"github.com/mattjoyce/ranortv/internal/launch/mocks"
	"github.com/mattjoyce/ranortv/internal/log"
	"github.com/mattjoyce/ranortv/internal/metrics"
	"github.com/mattjoyce/ranortv/internal/nav"
	"github.com/mattjoyce/ranortv/internal/sandbox"
	"github.com/mattjoyce/ranortv/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

type fixture struct {
	session *Session
	spawner *mocks.MockSpawner
	hub     *events.Hub
	store   *history.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, feed []catalog.App) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	c := catalog.New()
	_, err := c.UpsertMany(append(catalog.Builtins(),
		catalog.App{ID: "kodi", Name: "Kodi", Target: catalog.PathTarget("/apps/kodi/kodi"), Installed: true},
	))
	require.NoError(t, err)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		spawner: mocks.NewMockSpawner(ctrl),
		hub:     events.NewHub(50),
		store:   history.New(db),
		metrics: metrics.New(),
	}
	d := launch.New(f.spawner, launch.DefaultHandlers(f.hub))
	f.session = NewSession(c, d,
		WithRecorder(f.store),
		WithPublisher(f.hub),
		WithMetrics(f.metrics),
		WithStoreFeed(feed),
	)
	return f
}

func topics(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestLaunchBuiltinRecordsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := WithSource(context.Background(), "test")

	out, err := f.session.Launch(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, launch.RouteBuiltin, out.Route)

	entries, err := f.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusOpened, entries[0].Status)
	assert.Equal(t, "test", entries[0].Source)
	assert.Equal(t, "builtin://settings", entries[0].Target)

	assert.Equal(t, []string{events.LaunchRequested, events.BuiltinOpened}, topics(f.hub.SnapshotSince(0)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Launches.WithLabelValues("builtin", "opened")))
}

func TestLaunchSpawnFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.catalog.Upsert(catalog.App{ID: "spotify", Name: "Spotify", Target: catalog.PathTarget("/apps/spotify/spotify")}))
	ctx := context.Background()

	f.spawner.EXPECT().
		LaunchSandboxed(gomock.Any(), "/apps/spotify/spotify").
		Return(sandbox.Handle{}, &sandbox.SpawnError{Kind: sandbox.KindNotFound, Path: "/apps/spotify/spotify", Err: os.ErrNotExist})

	before := f.session.Snapshot()
	_, err := f.session.Launch(ctx, "spotify")
	require.Error(t, err)
	assert.Equal(t, sandbox.KindNotFound, sandbox.KindOf(err))
	assert.Equal(t, before, f.session.Snapshot())

	entries, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusFailed, entries[0].Status)
	assert.Equal(t, "not_found", entries[0].Error)
	assert.Equal(t, "unknown", entries[0].Source)

	evs := f.hub.SnapshotSince(0)
	require.Equal(t, []string{events.LaunchRequested, events.LaunchFailed}, topics(evs))
	var payload map[string]string
	require.NoError(t, json.Unmarshal(evs[1].Data, &payload))
	assert.Equal(t, "not_found", payload["reason"])
}

func TestLaunchSandboxSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.spawner.EXPECT().
		LaunchSandboxed(gomock.Any(), "/apps/kodi/kodi").
		Return(sandbox.Handle{PID: 99, Path: "/apps/kodi/kodi", StartedAt: time.Now()}, nil)

	out, err := f.session.Launch(context.Background(), "kodi")
	require.NoError(t, err)
	require.NotNil(t, out.Handle)

	entries, err := f.store.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 99, entries[0].PID)
	assert.Equal(t, history.StatusSpawned, entries[0].Status)
	assert.Contains(t, topics(f.hub.SnapshotSince(0)), events.LaunchSpawned)
}

func TestLaunchUnknownApp(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.session.Launch(context.Background(), "ghost")
	assert.ErrorIs(t, err, launch.ErrUnknownApp)

	entries, err := f.store.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "unknown_app", entries[0].Error)
}

func TestNavigateSelectLaunchesFocusedApp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Installed view in ID order: app_store, kodi, movies, music, photos, settings, tv.
	f.spawner.EXPECT().LaunchSandboxed(gomock.Any(), "/apps/kodi/kodi").Return(sandbox.Handle{PID: 1}, nil)

	_, err := f.session.Navigate(ctx, nav.SwitchTo(nav.TabInstalled))
	require.NoError(t, err)
	state, err := f.session.Navigate(ctx, nav.Event{Kind: nav.Right})
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current())

	app, ok := f.session.Focused()
	require.True(t, ok)
	assert.Equal(t, "kodi", app.ID)

	_, err = f.session.Navigate(ctx, nav.Event{Kind: nav.Select})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NavEvents.WithLabelValues("right")))
	assert.Contains(t, topics(f.hub.SnapshotSince(0)), events.NavMoved)
}

func TestNavigateSelectOnEmptyStoreDoesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.session.Navigate(ctx, nav.SwitchTo(nav.TabStore))
	require.NoError(t, err)
	_, err = f.session.Navigate(ctx, nav.Event{Kind: nav.Select})
	require.NoError(t, err)

	entries, err := f.store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRefreshStoreAppendsFeed(t *testing.T) {
	feed := []catalog.App{
		{ID: "spotify", Name: "Spotify", Target: catalog.PathTarget("/apps/spotify/spotify"), Version: "1.2.0", Category: "Music"},
		{ID: "youtube", Name: "YouTube", Target: catalog.PathTarget("/apps/youtube/youtube"), Version: "2.1.0", Category: "Video"},
	}
	f := newFixture(t, feed)
	before := f.session.Snapshot().Fingerprint

	n, err := f.session.RefreshStore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap := f.session.Snapshot()
	assert.Len(t, snap.Store, 2)
	assert.Equal(t, snap.Store, snap.View(nav.TabStore))
	assert.NotEqual(t, before, snap.Fingerprint)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CatalogApps.WithLabelValues("store")))
	assert.Contains(t, topics(f.hub.SnapshotSince(0)), events.CatalogRefreshed)

	// Idempotent: a second refresh replaces the same records.
	_, err = f.session.RefreshStore(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.session.Snapshot().Store, 2)
}

func TestRefreshStoreReportsInvalidFeedRecords(t *testing.T) {
	f := newFixture(t, []catalog.App{
		{ID: "ok", Name: "OK", Target: catalog.PathTarget("/ok")},
		{ID: "", Name: "broken"},
	})
	n, err := f.session.RefreshStore(context.Background())
	assert.Equal(t, 1, n)
	assert.Error(t, err)
}

func TestRefreshStoreKeepsBuiltins(t *testing.T) {
	f := newFixture(t, []catalog.App{
		{ID: "settings", Name: "Rogue", Target: catalog.PathTarget("/apps/rogue/rogue")},
		{ID: "spotify", Name: "Spotify", Target: catalog.PathTarget("/apps/spotify/spotify")},
	})

	n, err := f.session.RefreshStore(context.Background())
	assert.Equal(t, 1, n)
	require.ErrorIs(t, err, catalog.ErrReservedID)

	settings, ok := f.session.Catalog().Get("settings")
	require.True(t, ok)
	assert.True(t, settings.Target.IsBuiltin())
	assert.True(t, settings.Installed)

	snap := f.session.Snapshot()
	assert.Contains(t, appIDs(snap.Installed), "settings")
	assert.Equal(t, []string{"spotify"}, appIDs(snap.Store))
}

func TestSnapshotRevAdvancesWithState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.session.Snapshot()
	assert.Equal(t, first.Rev, f.session.Snapshot().Rev, "reading does not advance")

	_, err := f.session.Navigate(ctx, nav.Event{Kind: nav.Right})
	require.NoError(t, err)
	moved := f.session.Snapshot()
	assert.Greater(t, moved.Rev, first.Rev)

	_, err = f.session.RefreshStore(ctx)
	require.NoError(t, err)
	assert.Greater(t, f.session.Snapshot().Rev, moved.Rev)
}

func appIDs(apps []catalog.App) []string {
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.ID)
	}
	return out
}

func TestLoopSerializesAccess(t *testing.T) {
	f := newFixture(t, nil)
	loop := NewLoop(f.session)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(runDone)
	}()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := loop.Do(context.Background(), func(s *Session) error {
				_, err := s.Navigate(context.Background(), nav.Event{Kind: nav.Right})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := Query(context.Background(), loop, func(s *Session) (nav.State, error) {
		return s.Nav(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, state.Current(), "featured holds six apps")

	cancel()
	<-runDone
	assert.ErrorIs(t, loop.Do(context.Background(), func(*Session) error { return nil }), ErrClosed)
}

func TestLoopRecoversFromPanics(t *testing.T) {
	f := newFixture(t, nil)
	loop := NewLoop(f.session)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	err := loop.Do(ctx, func(*Session) error { panic("boom") })
	require.Error(t, err)

	n, err := Query(ctx, loop, func(s *Session) (int, error) { return s.Catalog().Len(), nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDoHonoursContextWhenLoopIsIdle(t *testing.T) {
	loop := NewLoop(newFixture(t, nil).session)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := loop.Do(ctx, func(*Session) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceFrom(t *testing.T) {
	assert.Equal(t, "unknown", SourceFrom(context.Background()))
	assert.Equal(t, "api", SourceFrom(WithSource(context.Background(), "api")))
}
