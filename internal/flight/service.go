package flight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/airfield-ops/internal/pattern"
	"github.com/yegors/airfield-ops/pkg/logger"
)

// DefaultRunway is used when neither the flight nor the airfield state names one
const DefaultRunway = pattern.Runway22

// Service runs flight operations. Writes to the same flight are serialized
// and checked against the stored version, so concurrent operators cannot
// overwrite each other's transitions.
type Service struct {
	store   Store
	runways RunwaySource
	pub     Publisher
	logger  *logger.Logger

	now           func() time.Time
	newID         func() string
	defaultRunway string

	locks *keyedMutex
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides flight ID generation
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithDefaultRunway sets the runway used when no other source names one
func WithDefaultRunway(runway string) Option {
	return func(s *Service) {
		if pattern.IsRunway(runway) {
			s.defaultRunway = runway
		}
	}
}

// NewService creates a new flight service. runways and pub may be nil.
func NewService(store Store, runways RunwaySource, pub Publisher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		runways:       runways,
		pub:           pub,
		logger:        log.Named("flight"),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
		defaultRunway: DefaultRunway,
		locks:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraft creates a new slot in draft
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (*Flight, error) {
	now := s.now()
	f, events, err := NewDraft(s.newID(), in, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, &f, events); err != nil {
		return nil, fmt.Errorf("failed to insert flight: %w", err)
	}
	s.logger.Info("Flight created",
		logger.String("flight_id", f.ID),
		logger.String("aircraft_id", f.AircraftID),
		logger.String("type_of_flight", f.TypeOfFlight))
	s.publish(ChangeInsert, &f, events)
	return &f, nil
}

// MarkReady moves a draft slot to the ready queue
func (s *Service) MarkReady(ctx context.Context, id string) (*Flight, error) {
	return s.apply(ctx, id, OpMarkReady, func(f Flight, now time.Time) (Flight, []Event, error) {
		return MarkReady(f, now)
	})
}

// PushToTower hands a ready flight to tower control
func (s *Service) PushToTower(ctx context.Context, id string) (*Flight, error) {
	runway := s.airfieldRunway(ctx)
	return s.apply(ctx, id, OpPushToTower, func(f Flight, now time.Time) (Flight, []Event, error) {
		return PushToTower(f, now, runway)
	})
}

// Start records engine start
func (s *Service) Start(ctx context.Context, id string) (*Flight, error) {
	return s.apply(ctx, id, OpStart, Start)
}

// TaxiToPoint assigns a holding point or the apron
func (s *Service) TaxiToPoint(ctx context.Context, id, point string) (*Flight, error) {
	return s.apply(ctx, id, OpTaxiToPoint, func(f Flight, now time.Time) (Flight, []Event, error) {
		return TaxiToPoint(f, now, point)
	})
}

// RecordTakeoff puts a tower flight into the air
func (s *Service) RecordTakeoff(ctx context.Context, id string) (*Flight, error) {
	return s.apply(ctx, id, OpTakeoff, RecordTakeoff)
}

// RecordPosition applies a position report to an airborne flight
func (s *Service) RecordPosition(ctx context.Context, id string, rep PositionReport) (*Flight, error) {
	fallback := s.airfieldRunway(ctx)
	return s.apply(ctx, id, OpPosition, func(f Flight, now time.Time) (Flight, []Event, error) {
		return RecordPosition(f, now, rep, s.runwayFor(&f, fallback))
	})
}

// RecordPatternLeg reports the flight on a circuit leg, using the pattern's
// default radial, distance and altitude for the flight's runway
func (s *Service) RecordPatternLeg(ctx context.Context, id, leg string) (*Flight, error) {
	if !pattern.IsLeg(leg) {
		return nil, invalid(fmt.Sprintf("unknown pattern leg %q", leg), "leg")
	}
	return s.RecordPosition(ctx, id, PositionReport{Leg: leg})
}

// RecordGoAround counts an aborted landing
func (s *Service) RecordGoAround(ctx context.Context, id string) (*Flight, error) {
	return s.apply(ctx, id, OpGoAround, RecordGoAround)
}

// RecordLanding puts an airborne flight back on the ground
func (s *Service) RecordLanding(ctx context.Context, id string) (*Flight, error) {
	return s.apply(ctx, id, OpLanding, RecordLanding)
}

// TaxiAfterLanding routes a landed flight to the circuit or the apron
func (s *Service) TaxiAfterLanding(ctx context.Context, id, location string) (*Flight, error) {
	return s.apply(ctx, id, OpTaxiAfterLanding, func(f Flight, now time.Time) (Flight, []Event, error) {
		return TaxiAfterLanding(f, now, location)
	})
}

// RecordShutdown completes a flight
func (s *Service) RecordShutdown(ctx context.Context, id string) (*Flight, error) {
	return s.apply(ctx, id, OpShutdown, RecordShutdown)
}

// Get returns one flight
func (s *Service) Get(ctx context.Context, id string) (*Flight, error) {
	return s.store.Get(ctx, id)
}

// RunwayFor resolves the runway a flight flies: its own snapshot, then the
// airfield state, then the default
func (s *Service) RunwayFor(ctx context.Context, f *Flight) string {
	return s.runwayFor(f, s.airfieldRunway(ctx))
}

type transition func(f Flight, now time.Time) (Flight, []Event, error)

func (s *Service) apply(ctx context.Context, id, op string, fn transition) (*Flight, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, events, err := fn(*current, s.now())
	if err != nil {
		s.logger.Debug("Flight operation rejected",
			logger.String("op", op),
			logger.String("flight_id", id),
			logger.Error(err))
		return nil, err
	}

	expect := Expectation{
		ID:      current.ID,
		Version: current.Version,
		Status:  current.Status,
		Phase:   current.Phase,
	}
	if err := s.store.Update(ctx, expect, &next, events); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			s.logger.Warn("Flight changed before write",
				logger.String("op", op),
				logger.String("flight_id", id),
				logger.Int64("version", current.Version))
			return nil, err
		}
		return nil, fmt.Errorf("failed to %s flight %s: %w", op, id, err)
	}

	s.logger.Info("Flight updated",
		logger.String("op", op),
		logger.String("flight_id", id),
		logger.String("status", string(next.Status)),
		logger.String("phase", string(next.Phase)),
		logger.Int64("version", next.Version))
	s.publish(ChangeUpdate, &next, events)
	return &next, nil
}

func (s *Service) publish(t ChangeType, f *Flight, events []Event) {
	if s.pub == nil {
		return
	}
	cp := *f
	s.pub.Publish(Change{Type: t, Flight: &cp, Events: events})
}

func (s *Service) airfieldRunway(ctx context.Context) string {
	if s.runways == nil {
		return s.defaultRunway
	}
	rwy, err := s.runways.RunwayInUse(ctx)
	if err != nil || !pattern.IsRunway(rwy) {
		if err != nil {
			s.logger.Warn("Failed to read runway in use, using default",
				logger.String("default", s.defaultRunway),
				logger.Error(err))
		}
		return s.defaultRunway
	}
	return rwy
}

func (s *Service) runwayFor(f *Flight, fallback string) string {
	if f.RunwayInUse != nil && pattern.IsRunway(*f.RunwayInUse) {
		return *f.RunwayInUse
	}
	return fallback
}

// keyedMutex hands out one mutex per flight ID and forgets it once no
// goroutine holds or waits for it
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
