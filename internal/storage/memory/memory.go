// Package memory holds process-local stores for flights and global state,
// used for tests and for running without a database file.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/brunoga/deep"

	"github.com/yegors/airfield-ops/internal/flight"
	"github.com/yegors/airfield-ops/internal/globalstate"
)

// FlightStore keeps flights and events in maps. Values are deep copied on
// the way in and out so callers never share state with the store.
type FlightStore struct {
	mu      sync.RWMutex
	flights map[string]*flight.Flight
	events  map[string][]flight.Event
	nextID  int64
}

// NewFlightStore creates an empty flight store
func NewFlightStore() *FlightStore {
	return &FlightStore{
		flights: make(map[string]*flight.Flight),
		events:  make(map[string][]flight.Event),
	}
}

// Get returns a copy of one flight
func (s *FlightStore) Get(_ context.Context, id string) (*flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[id]
	if !ok {
		return nil, flight.ErrNotFound
	}
	return deep.MustCopy(f), nil
}

// Insert adds a new flight and its events
func (s *FlightStore) Insert(_ context.Context, f *flight.Flight, events []flight.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flights[f.ID]; exists {
		return flight.ErrConflict
	}
	s.flights[f.ID] = deep.MustCopy(f)
	s.appendLocked(f.ID, events)
	return nil
}

// Update swaps the row when it still matches expect
func (s *FlightStore) Update(_ context.Context, expect flight.Expectation, next *flight.Flight, events []flight.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.flights[expect.ID]
	if !ok {
		return flight.ErrNotFound
	}
	if cur.Version != expect.Version || cur.Status != expect.Status || cur.Phase != expect.Phase {
		return flight.ErrConflict
	}
	s.flights[expect.ID] = deep.MustCopy(next)
	s.appendLocked(expect.ID, events)
	return nil
}

// Query returns copies of the matching flights in filter order
func (s *FlightStore) Query(_ context.Context, filter flight.Filter) ([]*flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*flight.Flight, 0)
	for _, f := range s.flights {
		if filter.Matches(f) {
			out = append(out, deep.MustCopy(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return filter.Less(out[i], out[j]) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Events returns copies of a flight's events, oldest first
func (s *FlightStore) Events(_ context.Context, flightID string) ([]flight.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return deep.MustCopy(s.events[flightID]), nil
}

func (s *FlightStore) appendLocked(flightID string, events []flight.Event) {
	for _, e := range events {
		s.nextID++
		e = deep.MustCopy(e)
		e.ID = s.nextID
		e.FlightID = flightID
		s.events[flightID] = append(s.events[flightID], e)
	}
}

// StateStore keeps global state entries in a map
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewStateStore creates an empty global state store
func NewStateStore() *StateStore {
	return &StateStore{entries: make(map[string]json.RawMessage)}
}

// Get returns the raw value stored under key
func (s *StateStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, globalstate.ErrNotFound
	}
	return append(json.RawMessage(nil), v...), nil
}

// Set stores value under key
func (s *StateStore) Set(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = append(json.RawMessage(nil), value...)
	return nil
}
