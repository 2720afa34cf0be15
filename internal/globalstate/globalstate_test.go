package globalstate_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/airfield-ops/internal/globalstate"
	"github.com/yegors/airfield-ops/internal/storage/memory"
	"github.com/yegors/airfield-ops/pkg/logger"
)

func newService(t *testing.T, store globalstate.Store) *globalstate.Service {
	t.Helper()
	return globalstate.NewService(store, globalstate.Defaults{Runway: "04"}, 0, logger.NewNop())
}

func TestDefaultsWhenUnset(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.NewStateStore())

	rwy, err := svc.RunwayInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "04", rwy)

	vor, err := svc.VOR(ctx)
	require.NoError(t, err)
	assert.Equal(t, globalstate.DefaultVOR, vor)
}

func TestRunwayRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.NewStateStore())

	require.NoError(t, svc.SetRunwayInUse(ctx, "22"))
	rwy, err := svc.RunwayInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "22", rwy)

	assert.Error(t, svc.SetRunwayInUse(ctx, "31"))
}

func TestRunwayAcceptsStoredShapes(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"object":         `{"runway":"22"}`,
		"plain string":   `"22"`,
		"string wrapped": `"{\"runway\":\"22\"}"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStateStore()
			require.NoError(t, store.Set(ctx, globalstate.KeyRunwayInUse, json.RawMessage(raw)))
			rwy, err := newService(t, store).RunwayInUse(ctx)
			require.NoError(t, err)
			assert.Equal(t, "22", rwy)
		})
	}
}

func TestUnknownStoredRunwayFallsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStateStore()
	require.NoError(t, store.Set(ctx, globalstate.KeyRunwayInUse, json.RawMessage(`{"runway":"09"}`)))

	rwy, err := newService(t, store).RunwayInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "04", rwy)
}

func TestVORStringWrapped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStateStore()
	require.NoError(t, store.Set(ctx, globalstate.KeyVOR,
		json.RawMessage(`"{\"name\":\"NAG\",\"lat\":21.09,\"lon\":79.05}"`)))

	vor, err := newService(t, store).VOR(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NAG", vor.Name)
	assert.InDelta(t, 21.09, vor.Lat, 1e-9)
	assert.InDelta(t, 79.05, vor.Lon, 1e-9)
}

func TestSetVORValidates(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.NewStateStore())

	assert.Error(t, svc.SetVOR(ctx, globalstate.VOR{Lat: 91}))
	assert.Error(t, svc.SetVOR(ctx, globalstate.VOR{Lon: -181}))

	want := globalstate.VOR{Name: "X", Lat: 10, Lon: 20}
	require.NoError(t, svc.SetVOR(ctx, want))
	got, err := svc.VOR(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCacheServesWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStateStore()
	svc := globalstate.NewService(store, globalstate.Defaults{}, time.Minute, logger.NewNop())

	require.NoError(t, svc.SetRunwayInUse(ctx, "04"))
	// A write behind the service's back is not seen until the entry expires
	require.NoError(t, store.Set(ctx, globalstate.KeyRunwayInUse, json.RawMessage(`"22"`)))

	rwy, err := svc.RunwayInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "04", rwy)
}

func TestUnwrap(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(globalstate.Unwrap(json.RawMessage(`"{\"a\":1}"`))))
	assert.Equal(t, `"plain"`, string(globalstate.Unwrap(json.RawMessage(`"plain"`))))
	assert.Equal(t, `{"a":1}`, string(globalstate.Unwrap(json.RawMessage(` {"a":1} `))))
	assert.Equal(t, `"{broken"`, string(globalstate.Unwrap(json.RawMessage(`"{broken"`))))
}
