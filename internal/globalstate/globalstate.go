// Package globalstate holds airfield-wide settings shared by every operator:
// the runway in use and the VOR the polar reports are referenced to.
package globalstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yegors/airfield-ops/internal/geo"
	"github.com/yegors/airfield-ops/internal/pattern"
	"github.com/yegors/airfield-ops/pkg/logger"
)

// Keys
const (
	KeyRunwayInUse = "runway_in_use"
	KeyVOR         = "vor"
)

// ErrNotFound is returned by a Store when a key has never been set
var ErrNotFound = errors.New("global state key not found")

// Store is a key/value store of JSON values
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// VOR is the navigation beacon used as the polar origin
type VOR struct {
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Frequency float64 `json:"frequency,omitempty"`
}

// LatLon returns the beacon position
func (v VOR) LatLon() geo.LatLon {
	return geo.LatLon{Lat: v.Lat, Lon: v.Lon}
}

// Validate checks the beacon coordinates
func (v VOR) Validate() error {
	if v.Lat < -90 || v.Lat > 90 {
		return fmt.Errorf("invalid VOR latitude: %v", v.Lat)
	}
	if v.Lon < -180 || v.Lon > 180 {
		return fmt.Errorf("invalid VOR longitude: %v", v.Lon)
	}
	return nil
}

// DefaultVOR is used when neither the store nor the configuration names one
var DefaultVOR = VOR{Name: "GDA VOR", Lat: 21.5268, Lon: 80.2903, Frequency: 114.2}

// Defaults are returned for keys that were never set
type Defaults struct {
	Runway string
	VOR    VOR
}

type runwayValue struct {
	Runway string `json:"runway"`
}

// Service reads and writes global state through a short-lived cache
type Service struct {
	store    Store
	cache    *expirable.LRU[string, json.RawMessage]
	defaults Defaults
	logger   *logger.Logger
}

// NewService creates a new global state service. A zero ttl disables caching.
func NewService(store Store, defaults Defaults, ttl time.Duration, log *logger.Logger) *Service {
	if !pattern.IsRunway(defaults.Runway) {
		defaults.Runway = pattern.Runway22
	}
	if defaults.VOR == (VOR{}) {
		defaults.VOR = DefaultVOR
	}
	s := &Service{
		store:    store,
		defaults: defaults,
		logger:   log.Named("globalstate"),
	}
	if ttl > 0 {
		s.cache = expirable.NewLRU[string, json.RawMessage](16, nil, ttl)
	}
	return s
}

// RunwayInUse returns the active runway
func (s *Service) RunwayInUse(ctx context.Context) (string, error) {
	raw, err := s.get(ctx, KeyRunwayInUse)
	if errors.Is(err, ErrNotFound) {
		return s.defaults.Runway, nil
	}
	if err != nil {
		return "", err
	}

	var rwy string
	if err := json.Unmarshal(raw, &rwy); err != nil {
		var v runwayValue
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", KeyRunwayInUse, err)
		}
		rwy = v.Runway
	}
	if !pattern.IsRunway(rwy) {
		s.logger.Warn("Stored runway is not known, using default",
			logger.String("runway", rwy),
			logger.String("default", s.defaults.Runway))
		return s.defaults.Runway, nil
	}
	return rwy, nil
}

// SetRunwayInUse changes the active runway
func (s *Service) SetRunwayInUse(ctx context.Context, runway string) error {
	if !pattern.IsRunway(runway) {
		return fmt.Errorf("unknown runway %q", runway)
	}
	raw, err := json.Marshal(runwayValue{Runway: runway})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", KeyRunwayInUse, err)
	}
	if err := s.set(ctx, KeyRunwayInUse, raw); err != nil {
		return err
	}
	s.logger.Info("Runway in use changed", logger.String("runway", runway))
	return nil
}

// VOR returns the polar reference beacon
func (s *Service) VOR(ctx context.Context) (VOR, error) {
	raw, err := s.get(ctx, KeyVOR)
	if errors.Is(err, ErrNotFound) {
		return s.defaults.VOR, nil
	}
	if err != nil {
		return VOR{}, err
	}
	var v VOR
	if err := json.Unmarshal(raw, &v); err != nil {
		return VOR{}, fmt.Errorf("failed to decode %s: %w", KeyVOR, err)
	}
	if v.Lat == 0 && v.Lon == 0 {
		return s.defaults.VOR, nil
	}
	return v, nil
}

// SetVOR replaces the polar reference beacon
func (s *Service) SetVOR(ctx context.Context, v VOR) error {
	if err := v.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", KeyVOR, err)
	}
	if err := s.set(ctx, KeyVOR, raw); err != nil {
		return err
	}
	s.logger.Info("VOR changed",
		logger.String("name", v.Name),
		logger.Float64("lat", v.Lat),
		logger.Float64("lon", v.Lon))
	return nil
}

func (s *Service) get(ctx context.Context, key string) (json.RawMessage, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
	}
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	raw = Unwrap(raw)
	if s.cache != nil {
		s.cache.Add(key, raw)
	}
	return raw, nil
}

func (s *Service) set(ctx context.Context, key string, raw json.RawMessage) error {
	if err := s.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if s.cache != nil {
		s.cache.Add(key, raw)
	}
	return nil
}

// Unwrap decodes a value that was stored as a JSON string holding a JSON
// object or array. Anything else is returned as is.
func Unwrap(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return trimmed
	}
	candidate := bytes.TrimSpace([]byte(inner))
	if len(candidate) > 0 && (candidate[0] == '{' || candidate[0] == '[') && json.Valid(candidate) {
		return candidate
	}
	return trimmed
}
