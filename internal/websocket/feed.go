package websocket

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yegors/airfield-ops/internal/flight"
)

const (
	// Flights idle longer than this lose their previous_bucket hint
	bucketTTL     = flight.ArchiveAfter
	bucketEntries = 4096
)

// FlightFeed turns committed flight changes into broadcast messages
type FlightFeed struct {
	server *Server
	now    func() time.Time

	// flight id -> last published bucket
	buckets *expirable.LRU[string, string]
}

// NewFlightFeed creates a publisher broadcasting through server
func NewFlightFeed(server *Server) *FlightFeed {
	return newFlightFeed(server, bucketEntries, bucketTTL)
}

func newFlightFeed(server *Server, size int, ttl time.Duration) *FlightFeed {
	return &FlightFeed{
		server:  server,
		now:     func() time.Time { return time.Now().UTC() },
		buckets: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Publish implements flight.Publisher. It never blocks.
func (p *FlightFeed) Publish(change flight.Change) {
	if change.Flight == nil {
		return
	}
	p.server.Broadcast(p.message(change))
}

func (p *FlightFeed) message(change flight.Change) *Message {
	f := change.Flight
	bucket := flight.Bucket(f, p.now())

	previous, _ := p.buckets.Peek(f.ID)
	if change.Type == flight.ChangeDelete || f.Status == flight.StatusCompleted {
		p.buckets.Remove(f.ID)
	} else {
		p.buckets.Add(f.ID, bucket)
	}

	msgType := MessageTypeFlightUpdate
	switch change.Type {
	case flight.ChangeInsert:
		msgType = MessageTypeFlightInsert
	case flight.ChangeDelete:
		msgType = MessageTypeFlightDelete
	}

	data := map[string]any{
		"flight_id": f.ID,
		"flight":    f,
		"bucket":    bucket,
	}
	if previous != "" && previous != bucket {
		data["previous_bucket"] = previous
	}
	if len(change.Events) > 0 {
		data["events"] = change.Events
	}
	return &Message{Type: msgType, Data: data}
}
