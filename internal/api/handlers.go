package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/airfield-ops/internal/flight"
	"github.com/yegors/airfield-ops/internal/geo"
	"github.com/yegors/airfield-ops/internal/globalstate"
	"github.com/yegors/airfield-ops/internal/pattern"
	"github.com/yegors/airfield-ops/internal/websocket"
	"github.com/yegors/airfield-ops/pkg/logger"
)

// Options tune the handler
type Options struct {
	ArchiveLimit int
	// MagneticRadials marks reported radials as magnetic, so the map
	// rotates them onto true north
	MagneticRadials bool
	Version         string
}

// Handler contains the API handlers
type Handler struct {
	flights   *flight.Service
	state     *globalstate.Service
	wsServer  *websocket.Server
	opts      Options
	startedAt time.Time
	now       func() time.Time
	logger    *logger.Logger
}

// NewHandler creates a new API handler. wsServer may be nil when the feed is
// disabled.
func NewHandler(flights *flight.Service, state *globalstate.Service, wsServer *websocket.Server, opts Options, log *logger.Logger) *Handler {
	if opts.ArchiveLimit <= 0 {
		opts.ArchiveLimit = flight.DefaultArchiveLimit
	}
	return &Handler{
		flights:   flights,
		state:     state,
		wsServer:  wsServer,
		opts:      opts,
		startedAt: time.Now().UTC(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log.Named("api-handler"),
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":     "ok",
		"version":    h.opts.Version,
		"started_at": h.startedAt,
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.wsServer != nil {
		response["feed_clients"] = h.wsServer.ClientCount()
		response["feed_dropped"] = h.wsServer.Dropped()
	}
	WriteJSON(w, http.StatusOK, response)
}

// ListFlights returns one bucket of flights, all active flights by default
func (h *Handler) ListFlights(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = flight.BucketActive
	}
	limit, err := h.archiveLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	flights, err := h.flights.ByBucket(r.Context(), bucket, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"bucket":  bucket,
		"count":   len(flights),
		"flights": flights,
	})
}

// GetBoard returns every bucket at once
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	limit, err := h.archiveLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	board, err := h.flights.Board(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, board)
}

// CreateFlight creates a draft slot
func (h *Handler) CreateFlight(w http.ResponseWriter, r *http.Request) {
	var req flight.DraftInput
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.flights.CreateDraft(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, f)
}

// GetFlight returns one flight
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	f, err := h.flights.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	runway := h.flights.RunwayFor(r.Context(), f)
	WriteJSON(w, http.StatusOK, map[string]any{
		"flight":           f,
		"bucket":           flight.Bucket(f, h.now()),
		"runway":           runway,
		"display_phase":    pattern.DisplayPhase(string(f.Phase), runway),
		"position_summary": f.PositionSummary(),
		"pic_display":      f.PIC.DisplayName(),
	})
}

// GetFlightEvents returns the event history of one flight
func (h *Handler) GetFlightEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.flights.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, events)
}

// GetFlightLog returns the formatted tower log of one flight
func (h *Handler) GetFlightLog(w http.ResponseWriter, r *http.Request) {
	lines, err := h.flights.FlightLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

type operation func(ctx context.Context, id string) (*flight.Flight, error)

// transition wraps a body-less flight operation
func (h *Handler) transition(op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := op(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, f)
	}
}

type taxiRequest struct {
	Point string `json:"point"`
}

// TaxiToPoint moves a tower flight to a ground point
func (h *Handler) TaxiToPoint(w http.ResponseWriter, r *http.Request) {
	var req taxiRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(func(ctx context.Context, id string) (*flight.Flight, error) {
		return h.flights.TaxiToPoint(ctx, id, req.Point)
	})(w, r)
}

// RecordPosition applies a manual position report
func (h *Handler) RecordPosition(w http.ResponseWriter, r *http.Request) {
	var req flight.PositionReport
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(func(ctx context.Context, id string) (*flight.Flight, error) {
		return h.flights.RecordPosition(ctx, id, req)
	})(w, r)
}

type legRequest struct {
	Leg string `json:"leg"`
}

// RecordPatternLeg applies a quick-entry pattern leg
func (h *Handler) RecordPatternLeg(w http.ResponseWriter, r *http.Request) {
	var req legRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(func(ctx context.Context, id string) (*flight.Flight, error) {
		return h.flights.RecordPatternLeg(ctx, id, req.Leg)
	})(w, r)
}

type afterLandingRequest struct {
	Location string `json:"location"`
}

// TaxiAfterLanding routes a landed flight back into the circuit or to the apron
func (h *Handler) TaxiAfterLanding(w http.ResponseWriter, r *http.Request) {
	var req afterLandingRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(func(ctx context.Context, id string) (*flight.Flight, error) {
		return h.flights.TaxiAfterLanding(ctx, id, req.Location)
	})(w, r)
}

// GetMap returns active flights projected around the VOR
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	vor, err := h.state.VOR(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	ref := flight.MapReference{VOR: vor.LatLon()}
	if h.opts.MagneticRadials {
		ref.DeclinationDeg = geo.MagneticVariation(vor.Lat, vor.Lon, 0, h.now())
	}

	markers, err := h.flights.MapPositions(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"vor":             vor,
		"declination_deg": ref.DeclinationDeg,
		"markers":         markers,
	})
}

type runwayRequest struct {
	Runway string `json:"runway"`
}

// GetRunway returns the airfield runway in use
func (h *Handler) GetRunway(w http.ResponseWriter, r *http.Request) {
	rwy, err := h.state.RunwayInUse(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, runwayRequest{Runway: rwy})
}

// SetRunway changes the airfield runway in use
func (h *Handler) SetRunway(w http.ResponseWriter, r *http.Request) {
	var req runwayRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !pattern.IsRunway(req.Runway) {
		WriteError(w, http.StatusBadRequest, "unknown runway "+strconv.Quote(req.Runway))
		return
	}
	if err := h.state.SetRunwayInUse(r.Context(), req.Runway); err != nil {
		h.writeError(w, err)
		return
	}

	h.broadcastState(globalstate.KeyRunwayInUse, req)
	WriteJSON(w, http.StatusOK, req)
}

// GetVOR returns the navigation beacon
func (h *Handler) GetVOR(w http.ResponseWriter, r *http.Request) {
	vor, err := h.state.VOR(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, vor)
}

// SetVOR replaces the navigation beacon
func (h *Handler) SetVOR(w http.ResponseWriter, r *http.Request) {
	var req globalstate.VOR
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.state.SetVOR(r.Context(), req); err != nil {
		h.writeError(w, err)
		return
	}

	h.broadcastState(globalstate.KeyVOR, req)
	WriteJSON(w, http.StatusOK, req)
}

// GetPattern returns the circuit legs and report envelopes for a runway
func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	rwy := chi.URLParam(r, "runway")
	if !pattern.IsRunway(rwy) {
		WriteError(w, http.StatusNotFound, "unknown runway "+strconv.Quote(rwy))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"runway":    rwy,
		"legs":      pattern.Legs(rwy),
		"envelopes": pattern.Envelopes(rwy),
	})
}

// GetConfig returns the public configuration the ops screens need
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"runways":          pattern.Runways(),
		"taxi_points":      flight.TaxiPoints,
		"legs":             pattern.LegNames(),
		"archive_limit":    h.opts.ArchiveLimit,
		"magnetic_radials": h.opts.MagneticRadials,
	})
}

func (h *Handler) broadcastState(key string, value any) {
	if h.wsServer == nil {
		return
	}
	h.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeGlobalState,
		Data: map[string]any{"key": key, "value": value},
	})
}

func (h *Handler) archiveLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.opts.ArchiveLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &flight.ValidationError{Fields: []string{"limit"}, Reason: "must be a positive integer"}
	}
	return n, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", logger.Error(err))
	} else {
		h.logger.Debug("Request rejected", logger.Int("status", status), logger.Error(err))
	}
	WriteError(w, status, err.Error())
}

// StatusFor returns the HTTP status for an error returned by the services
func StatusFor(err error) int {
	switch {
	case flight.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, flight.ErrNotFound):
		return http.StatusNotFound
	case flight.IsPrecondition(err), errors.Is(err, flight.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
