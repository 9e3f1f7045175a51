package launch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/launch/mocks"
	"github.com/mattjoyce/ranortv/internal/log"
	"github.com/mattjoyce/ranortv/internal/sandbox"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	_, err := c.UpsertMany(append(catalog.Builtins(),
		catalog.App{ID: "spotify", Name: "Spotify", Target: catalog.PathTarget("/apps/spotify/spotify")},
		catalog.App{ID: "radio", Name: "Radio", Target: catalog.BuiltinTarget("radio"), Installed: true},
	))
	require.NoError(t, err)
	return c
}

func TestDispatchBuiltinNeverSpawns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	spawner := mocks.NewMockSpawner(ctrl)
	spawner.EXPECT().LaunchSandboxed(gomock.Any(), gomock.Any()).Times(0)

	hub := events.NewHub(10)
	d := New(spawner, DefaultHandlers(hub))

	out, err := d.Dispatch(context.Background(), testCatalog(t), "settings")
	require.NoError(t, err)
	assert.Equal(t, RouteBuiltin, out.Route)
	assert.Equal(t, "builtin://settings", out.Target)
	assert.Nil(t, out.Handle)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.BuiltinOpened, evs[0].Type)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(evs[0].Data, &payload))
	assert.Equal(t, "settings", payload["builtin"])
}

func TestDispatchPathTargetSpawnsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	started := time.Now()
	spawner := mocks.NewMockSpawner(ctrl)
	spawner.EXPECT().
		LaunchSandboxed(gomock.Any(), "/apps/spotify/spotify").
		Return(sandbox.Handle{PID: 4242, Path: "/apps/spotify/spotify", StartedAt: started}, nil).
		Times(1)

	d := New(spawner, DefaultHandlers(nil))
	out, err := d.Dispatch(context.Background(), testCatalog(t), "spotify")
	require.NoError(t, err)
	assert.Equal(t, RouteSandbox, out.Route)
	require.NotNil(t, out.Handle)
	assert.Equal(t, 4242, out.Handle.PID)
}

func TestDispatchPropagatesSpawnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	spawnErr := &sandbox.SpawnError{Kind: sandbox.KindNotFound, Path: "/apps/spotify/spotify", Err: os.ErrNotExist}
	spawner := mocks.NewMockSpawner(ctrl)
	spawner.EXPECT().LaunchSandboxed(gomock.Any(), "/apps/spotify/spotify").Return(sandbox.Handle{}, spawnErr)

	d := New(spawner, DefaultHandlers(nil))
	out, err := d.Dispatch(context.Background(), testCatalog(t), "spotify")
	require.Error(t, err)
	assert.Equal(t, RouteSandbox, out.Route)
	assert.Equal(t, sandbox.KindNotFound, sandbox.KindOf(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDispatchUnknownApp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d := New(mocks.NewMockSpawner(ctrl), DefaultHandlers(nil))
	_, err := d.Dispatch(context.Background(), testCatalog(t), "nope")
	assert.ErrorIs(t, err, ErrUnknownApp)
}

func TestDispatchUnknownBuiltinTag(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	spawner := mocks.NewMockSpawner(ctrl)
	d := New(spawner, DefaultHandlers(nil))

	out, err := d.Dispatch(context.Background(), testCatalog(t), "radio")
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
	assert.Equal(t, RouteBuiltin, out.Route)
}

func TestDispatchHandlerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	boom := errors.New("screen unavailable")
	d := New(mocks.NewMockSpawner(ctrl), map[catalog.Builtin]Handler{
		catalog.BuiltinTV: func(context.Context, catalog.App) error { return boom },
	})

	_, err := d.Dispatch(context.Background(), testCatalog(t), "tv")
	assert.ErrorIs(t, err, boom)

	_, err = d.Dispatch(context.Background(), testCatalog(t), "music")
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
}

func TestDefaultHandlersCoverKnownBuiltins(t *testing.T) {
	handlers := DefaultHandlers(nil)
	for _, tag := range catalog.KnownBuiltins {
		assert.Contains(t, handlers, tag)
	}
	assert.Len(t, handlers, len(catalog.KnownBuiltins))
}

func TestRouteString(t *testing.T) {
	b, err := json.Marshal(Outcome{AppID: "tv", Route: RouteBuiltin})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"route":"builtin"`)
	assert.Equal(t, "none", Route(0).String())
}
