package flight

import (
	"context"
	"time"
)

// Sort keys a Filter can order by
const (
	OrderCreatedAt   = "created_at"
	OrderTakeoffAt   = "takeoff_at"
	OrderCompletedAt = "completed_at"
)

// Filter selects flights for a read query. Zero values mean "no constraint".
// Ties on the sort key are broken by ID ascending.
type Filter struct {
	Statuses        []Status
	ExcludeStatuses []Status
	Phases          []Phase
	InTower         *bool

	// CompletedAfter and CompletedBefore bound completed_at; the lower bound
	// is inclusive and the upper bound exclusive
	CompletedAfter  *time.Time
	CompletedBefore *time.Time

	// IncludeNullCompleted keeps rows with no completed_at when a
	// completed_at bound is set
	IncludeNullCompleted bool

	OrderBy    string
	Descending bool
	Limit      int
}

// Expectation is the state a write was computed from. A store applies the
// write only when the stored row still matches it.
type Expectation struct {
	ID      string
	Version int64
	Status  Status
	Phase   Phase
}

// Store persists flights and their event log
type Store interface {
	// Get returns ErrNotFound when the flight does not exist
	Get(ctx context.Context, id string) (*Flight, error)

	// Insert writes a new flight together with its creation events
	Insert(ctx context.Context, f *Flight, events []Event) error

	// Update replaces the row matching expect with next and appends events,
	// atomically. It returns ErrConflict when the stored row has moved on
	// and ErrNotFound when it is gone.
	Update(ctx context.Context, expect Expectation, next *Flight, events []Event) error

	Query(ctx context.Context, filter Filter) ([]*Flight, error)

	// Events returns the flight's events, oldest first
	Events(ctx context.Context, flightID string) ([]Event, error)
}

// Publisher receives every committed change. Publish must not block.
type Publisher interface {
	Publish(change Change)
}

// RunwaySource reports the airfield's runway in use
type RunwaySource interface {
	RunwayInUse(ctx context.Context) (string, error)
}

// Matches reports whether f satisfies the filter's row constraints, ignoring
// ordering and limit
func (flt Filter) Matches(f *Flight) bool {
	if len(flt.Statuses) > 0 && !containsStatus(flt.Statuses, f.Status) {
		return false
	}
	if containsStatus(flt.ExcludeStatuses, f.Status) {
		return false
	}
	if len(flt.Phases) > 0 && !containsPhase(flt.Phases, f.Phase) {
		return false
	}
	if flt.InTower != nil && f.IsInTower != *flt.InTower {
		return false
	}
	if flt.CompletedAfter != nil || flt.CompletedBefore != nil {
		if f.CompletedAt == nil {
			return flt.IncludeNullCompleted
		}
		if flt.CompletedAfter != nil && f.CompletedAt.Before(*flt.CompletedAfter) {
			return false
		}
		if flt.CompletedBefore != nil && !f.CompletedAt.Before(*flt.CompletedBefore) {
			return false
		}
	}
	return true
}

// SortKey returns the value f is ordered by, or nil when the column is empty
func (flt Filter) SortKey(f *Flight) *time.Time {
	switch flt.OrderBy {
	case OrderTakeoffAt:
		return f.TakeoffAt
	case OrderCompletedAt:
		return f.CompletedAt
	default:
		return &f.CreatedAt
	}
}

// Less orders two flights the way a store must return them. Empty sort keys
// go last in ascending order and first in descending order.
func (flt Filter) Less(a, b *Flight) bool {
	ka, kb := flt.SortKey(a), flt.SortKey(b)
	switch {
	case ka == nil && kb == nil:
	case ka == nil:
		return flt.Descending
	case kb == nil:
		return !flt.Descending
	case !ka.Equal(*kb):
		if flt.Descending {
			return ka.After(*kb)
		}
		return ka.Before(*kb)
	}
	return a.ID < b.ID
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPhase(list []Phase, p Phase) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
