package websocket

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/airfield-ops/internal/flight"
	"github.com/yegors/airfield-ops/pkg/logger"
)

// BoardSource provides the current flight buckets
type BoardSource interface {
	Board(ctx context.Context, archiveLimit int) (*flight.Board, error)
}

// FlightHandler answers bulk and filter requests from feed clients
type FlightHandler struct {
	board        BoardSource
	archiveLimit int
	timeout      time.Duration
	logger       *logger.Logger
}

// NewFlightHandler creates a new WebSocket message handler
func NewFlightHandler(board BoardSource, archiveLimit int, log *logger.Logger) *FlightHandler {
	return &FlightHandler{
		board:        board,
		archiveLimit: archiveLimit,
		timeout:      5 * time.Second,
		logger:       log.Named("flight-ws-handler"),
	}
}

// HandleMessage handles incoming WebSocket messages
func (h *FlightHandler) HandleMessage(client *Client, messageType string, data map[string]any) error {
	switch messageType {
	case MessageTypeFlightBulkRequest:
		return h.sendBoard(client)
	case MessageTypeFilterUpdate:
		h.updateFilters(client, data)
		return h.sendBoard(client)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}
}

func (h *FlightHandler) updateFilters(client *Client, data map[string]any) {
	var filters ClientFilters
	if buckets, ok := data["buckets"].(map[string]any); ok {
		filters.Buckets = make(map[string]bool, len(buckets))
		for b, enabled := range buckets {
			if v, ok := enabled.(bool); ok {
				filters.Buckets[b] = v
			}
		}
	}
	if id, ok := data["selected_flight_id"].(string); ok {
		filters.SelectedFlightID = id
	}
	client.UpdateFilters(&filters)

	h.logger.Info("Updated client filters",
		logger.Int("bucket_count", len(filters.Buckets)),
		logger.String("selected_flight_id", filters.SelectedFlightID))
}

func (h *FlightHandler) sendBoard(client *Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	board, err := h.board.Board(ctx, h.archiveLimit)
	if err != nil {
		return fmt.Errorf("failed to build flight board: %w", err)
	}

	filters := client.GetFilters()
	data := map[string]any{"generated_at": board.GeneratedAt}
	for name, flights := range map[string][]*flight.Flight{
		flight.BucketDraft:           board.Draft,
		flight.BucketReady:           board.Ready,
		flight.BucketGround:          board.Ground,
		flight.BucketAir:             board.Air,
		flight.BucketCompletedRecent: board.CompletedRecent,
		flight.BucketArchived:        board.Archived,
	} {
		if filters != nil && len(filters.Buckets) > 0 && !filters.Buckets[name] {
			continue
		}
		data[name] = flights
	}

	if !client.SendMessage(&Message{Type: MessageTypeFlightBulkResponse, Data: data}) {
		h.logger.Warn("Client send buffer full, bulk response dropped")
	}
	return nil
}
