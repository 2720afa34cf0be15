package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/airfield-ops/internal/flight"
	"github.com/yegors/airfield-ops/pkg/logger"
)

type fakeBoard struct {
	board *flight.Board
}

func (b fakeBoard) Board(context.Context, int) (*flight.Board, error) { return b.board, nil }

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(logger.NewNop(), 16, nil)
	srv.SetMessageHandler(NewFlightHandler(fakeBoard{&flight.Board{
		Air: []*flight.Flight{{ID: "a1", Status: flight.StatusAir}},
	}}, 20, logger.NewNop()))
	go srv.Run(ctx)

	hs := httptest.NewServer(http.HandlerFunc(srv.HandleConnection))
	t.Cleanup(hs.Close)
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m Message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestFeedDeliversChanges(t *testing.T) {
	srv, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	feed := NewFlightFeed(srv)
	feed.Publish(flight.Change{
		Type:   flight.ChangeInsert,
		Flight: &flight.Flight{ID: "f1", Status: flight.StatusDraft, Phase: flight.PhaseOnGround},
	})

	m := readMessage(t, conn)
	assert.Equal(t, MessageTypeFlightInsert, m.Type)
	assert.Equal(t, "f1", m.Data["flight_id"])
	assert.Equal(t, flight.BucketDraft, m.Data["bucket"])
}

func TestBulkRequest(t *testing.T) {
	srv, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{
		Type: MessageTypeFilterUpdate,
		Data: map[string]any{"buckets": map[string]any{"air": true}},
	}))

	m := readMessage(t, conn)
	assert.Equal(t, MessageTypeFlightBulkResponse, m.Type)
	assert.Contains(t, m.Data, "air")
	assert.NotContains(t, m.Data, "draft")
}

func TestMatchesFilters(t *testing.T) {
	update := func(id, bucket, previous string) *Message {
		data := map[string]any{"flight_id": id, "bucket": bucket}
		if previous != "" {
			data["previous_bucket"] = previous
		}
		return &Message{Type: MessageTypeFlightUpdate, Data: data}
	}
	airOnly := &ClientFilters{Buckets: map[string]bool{"air": true}}

	assert.True(t, MatchesFilters(nil, update("f", "draft", "")))
	assert.True(t, MatchesFilters(airOnly, update("f", "air", "")))
	assert.False(t, MatchesFilters(airOnly, update("f", "ground", "")))
	assert.True(t, MatchesFilters(airOnly, update("f", "ground", "air")))
	assert.True(t, MatchesFilters(&ClientFilters{Buckets: map[string]bool{"air": true}, SelectedFlightID: "f"}, update("f", "draft", "")))
	assert.True(t, MatchesFilters(airOnly, &Message{Type: MessageTypeGlobalState}))
}

func TestFeedTracksPreviousBucket(t *testing.T) {
	feed := NewFlightFeed(NewServer(logger.NewNop(), 4, nil))
	f := &flight.Flight{ID: "f1", Status: flight.StatusTower, Phase: flight.PhaseTaxi, IsInTower: true}
	m := feed.message(flight.Change{Type: flight.ChangeUpdate, Flight: f})
	assert.Equal(t, flight.BucketGround, m.Data["bucket"])
	assert.NotContains(t, m.Data, "previous_bucket")

	air := *f
	air.Status, air.Phase = flight.StatusAir, flight.PhaseAirborne
	m = feed.message(flight.Change{Type: flight.ChangeUpdate, Flight: &air})
	assert.Equal(t, flight.BucketAir, m.Data["bucket"])
	assert.Equal(t, flight.BucketGround, m.Data["previous_bucket"])
}

func TestFeedForgetsDeletedAndEvictedFlights(t *testing.T) {
	feed := newFlightFeed(NewServer(logger.NewNop(), 4, nil), 1, time.Hour)
	ground := &flight.Flight{ID: "f1", Status: flight.StatusTower, Phase: flight.PhaseTaxi, IsInTower: true}
	air := &flight.Flight{ID: "f1", Status: flight.StatusAir, Phase: flight.PhaseAirborne, IsInTower: true}

	feed.message(flight.Change{Type: flight.ChangeUpdate, Flight: ground})
	m := feed.message(flight.Change{Type: flight.ChangeDelete, Flight: air})
	assert.Equal(t, MessageTypeFlightDelete, m.Type)
	assert.Equal(t, flight.BucketGround, m.Data["previous_bucket"])
	assert.Equal(t, 0, feed.buckets.Len())

	// A full table drops the oldest flight rather than growing
	feed.message(flight.Change{Type: flight.ChangeUpdate, Flight: ground})
	feed.message(flight.Change{Type: flight.ChangeInsert, Flight: &flight.Flight{ID: "f2", Status: flight.StatusDraft}})
	assert.Equal(t, 1, feed.buckets.Len())
	m = feed.message(flight.Change{Type: flight.ChangeUpdate, Flight: air})
	assert.NotContains(t, m.Data, "previous_bucket")
}

func TestBroadcastNeverBlocks(t *testing.T) {
	srv := NewServer(logger.NewNop(), 2, nil)
	// Run is not started, so the queue fills up
	assert.True(t, srv.Broadcast(&Message{Type: "x"}))
	assert.True(t, srv.Broadcast(&Message{Type: "x"}))
	assert.False(t, srv.Broadcast(&Message{Type: "x"}))
	assert.Equal(t, int64(1), srv.Dropped())
}
