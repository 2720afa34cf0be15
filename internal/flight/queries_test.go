package flight_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/airfield-ops/internal/flight"
)

func ids(fs []*flight.Flight) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID)
	}
	return out
}

// complete drives one flight all the way to shutdown
func complete(t *testing.T, fx *fixture) string {
	t.Helper()
	ctx := context.Background()
	id := toAir(t, fx)
	fx.step(t, func() (*flight.Flight, error) { return fx.svc.RecordLanding(ctx, id) })
	fx.step(t, func() (*flight.Flight, error) { return fx.svc.TaxiAfterLanding(ctx, id, "apron") })
	fx.step(t, func() (*flight.Flight, error) { return fx.svc.RecordShutdown(ctx, id) })
	return id
}

func TestProjections(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "22")
	svc := fx.svc

	d1 := fx.create(t, "").ID
	d2 := fx.create(t, "").ID
	r1 := fx.create(t, "").ID
	fx.step(t, func() (*flight.Flight, error) { return svc.MarkReady(ctx, r1) })
	r2 := fx.create(t, "").ID
	fx.step(t, func() (*flight.Flight, error) { return svc.MarkReady(ctx, r2) })

	a1 := toAir(t, fx)
	a2 := toAir(t, fx)
	g1 := fx.create(t, "").ID
	for _, op := range []func(context.Context, string) (*flight.Flight, error){svc.MarkReady, svc.PushToTower, svc.Start} {
		fx.step(t, func() (*flight.Flight, error) { return op(ctx, g1) })
	}
	done := complete(t, fx)

	draft, err := svc.Draft(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d2, d1}, ids(draft))

	ready, err := svc.Ready(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{r1, r2}, ids(ready))

	air, err := svc.AirOps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a1, a2}, ids(air))

	ground, err := svc.GroundOps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{g1}, ids(ground))

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a1, a2, g1}, ids(active))

	recent, err := svc.CompletedRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{done}, ids(recent))

	board, err := svc.Board(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ground, board.Ground)
	assert.Empty(t, board.Archived)

	byName, err := svc.ByBucket(ctx, flight.BucketReady, 0)
	require.NoError(t, err)
	assert.Equal(t, ready, byName)
	_, err = svc.ByBucket(ctx, "hangar", 0)
	assert.True(t, flight.IsValidation(err))
}

func TestGroundOpsIncludesLandedFlights(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "22")
	id := toAir(t, fx)
	fx.step(t, func() (*flight.Flight, error) { return fx.svc.RecordLanding(ctx, id) })

	ground, err := fx.svc.GroundOps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(ground))
}

func TestGroundOpsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "22")
	for i := 0; i < 5; i++ {
		id := fx.create(t, "").ID
		for _, op := range []func(context.Context, string) (*flight.Flight, error){fx.svc.MarkReady, fx.svc.PushToTower} {
			fx.step(t, func() (*flight.Flight, error) { return op(ctx, id) })
		}
	}

	first, err := fx.svc.GroundOps(ctx)
	require.NoError(t, err)
	second, err := fx.svc.GroundOps(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 5)
	assert.Equal(t, first, second)
}

func TestCompletedPartition(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "22")

	var all []string
	// Completion times spread on both sides of the 48 hour cutoff
	for i := 0; i < 6; i++ {
		all = append(all, complete(t, fx))
		fx.clock.Advance(13 * time.Hour)
	}
	// Land exactly on the boundary for one of them
	f, err := fx.svc.Get(ctx, all[2])
	require.NoError(t, err)
	fx.clock.t = f.CompletedAt.Add(flight.ArchiveAfter)

	recent, err := fx.svc.CompletedRecent(ctx)
	require.NoError(t, err)
	archived, err := fx.svc.Archived(ctx, 100)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, f := range append(recent, archived...) {
		seen[f.ID]++
	}
	for _, id := range all {
		assert.Equal(t, 1, seen[id], id)
	}
	assert.Len(t, seen, len(all))
	assert.Contains(t, ids(recent), all[2])

	now := fx.clock.Now()
	for _, f := range recent {
		assert.Equal(t, flight.BucketCompletedRecent, flight.Bucket(f, now))
	}
	for _, f := range archived {
		assert.Equal(t, flight.BucketArchived, flight.Bucket(f, now))
	}
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].CompletedAt.After(*recent[i-1].CompletedAt))
	}
}

func TestArchivedLimit(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "22")
	for i := 0; i < 3; i++ {
		complete(t, fx)
	}
	fx.clock.Advance(flight.ArchiveAfter + time.Hour)

	archived, err := fx.svc.Archived(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	archived, err = fx.svc.Archived(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 3)
}

func TestBucket(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	old := now.Add(-49 * time.Hour)
	assert.Equal(t, flight.BucketDraft, flight.Bucket(&flight.Flight{Status: flight.StatusDraft}, now))
	assert.Equal(t, flight.BucketGround, flight.Bucket(&flight.Flight{Status: flight.StatusTower, Phase: flight.PhaseTaxi, IsInTower: true}, now))
	assert.Equal(t, flight.BucketAir, flight.Bucket(&flight.Flight{Status: flight.StatusAir}, now))
	assert.Equal(t, flight.BucketArchived, flight.Bucket(&flight.Flight{Status: flight.StatusCompleted, CompletedAt: &old}, now))
	assert.Equal(t, flight.BucketArchived, flight.Bucket(&flight.Flight{Status: flight.StatusCompleted}, now))
	assert.Equal(t, "", flight.Bucket(&flight.Flight{Status: flight.StatusTower, Phase: flight.PhaseTaxi}, now))
}
