package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/airfield-ops/pkg/logger"
)

// Message types
const (
	MessageTypeFlightInsert       = "flight_insert"
	MessageTypeFlightUpdate       = "flight_update"
	MessageTypeFlightDelete       = "flight_delete"
	MessageTypeFlightBulkRequest  = "flight_bulk_request"  // Client requests current buckets
	MessageTypeFlightBulkResponse = "flight_bulk_response" // Server sends current buckets
	MessageTypeFilterUpdate       = "filter_update"        // Client sends filter preferences
	MessageTypeGlobalState        = "global_state"
	MessageTypeError              = "error"
)

const writeWait = 10 * time.Second

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
}

// ClientFilters represents the active filters for a WebSocket client
type ClientFilters struct {
	Buckets          map[string]bool `json:"buckets"`            // bucket -> enabled
	SelectedFlightID string          `json:"selected_flight_id"` // always delivered regardless of buckets
}

// Client represents a WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
	filters   *ClientFilters
}

// Server fans flight changes out to connected clients
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
	sendBuffer     int
	dropped        atomic.Int64
	done           chan struct{}
}

// NewServer creates a new WebSocket server. Origins restricts the browser
// origins allowed to connect; empty allows all.
func NewServer(log *logger.Logger, sendBuffer int, origins []string) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, sendBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		logger:     log.Named("web-socket"),
		sendBuffer: sendBuffer,
		done:       make(chan struct{}),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// Run dispatches registrations and broadcasts until ctx is done
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case <-ctx.Done():
			close(s.done)
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.markClosed(true)
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.markClosed(true)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.dispatch(message)
		}
	}
}

func (s *Server) dispatch(message *Message) {
	s.mu.RLock()
	clientsToRemove := make([]*Client, 0)
	for client := range s.clients {
		client.mu.Lock()
		closed := client.closed
		client.mu.Unlock()
		if closed {
			clientsToRemove = append(clientsToRemove, client)
			continue
		}

		if !client.Matches(message) {
			continue
		}

		select {
		case client.send <- message:
		default:
			// Slow client, drop it rather than stall everyone else
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	s.mu.RUnlock()

	if len(clientsToRemove) > 0 {
		s.mu.Lock()
		for _, client := range clientsToRemove {
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.markClosed(true)
			}
		}
		s.mu.Unlock()
		s.logger.Warn("Dropped slow WebSocket clients", logger.Int("count", len(clientsToRemove)))
	}
}

// HandleConnection upgrades an HTTP request and attaches the client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		logger.String("remote_addr", r.RemoteAddr),
		logger.String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan *Message, s.sendBuffer),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every matching client. It never blocks:
// when the queue is full the message is dropped and false is returned.
func (s *Server) Broadcast(message *Message) bool {
	select {
	case s.broadcast <- message:
		return true
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("Broadcast queue full, dropping message",
			logger.String("message_type", message.Type),
			logger.Int64("dropped_total", n))
		return false
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns how many broadcasts were discarded because the queue was full
func (s *Server) Dropped() int64 {
	return s.dropped.Load()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Warn("Failed to parse WebSocket message", logger.Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client", c.conn.RemoteAddr().String()))

		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					logger.Error(err),
					logger.String("type", message.Type))
				c.SendMessage(&Message{Type: MessageTypeError, Data: map[string]any{"error": err.Error()}})
			}
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", logger.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// markClosed flags the client closed. When closeSend is set the send
// channel is closed too, which makes writePump say goodbye and exit. Only
// the hub goroutine passes closeSend.
func (c *Client) markClosed(closeSend bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if closeSend {
		close(c.send)
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closeChan:
	default:
		close(c.closeChan)
	}
	c.conn.Close()
}

// SendMessage sends a message to this client only, dropping it when the
// client's buffer is full
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// UpdateFilters replaces the client's active filters
func (c *Client) UpdateFilters(filters *ClientFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// GetFilters returns a copy of the client's current filters
func (c *Client) GetFilters() *ClientFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filters == nil {
		return nil
	}
	cp := &ClientFilters{
		Buckets:          make(map[string]bool, len(c.filters.Buckets)),
		SelectedFlightID: c.filters.SelectedFlightID,
	}
	for b, enabled := range c.filters.Buckets {
		cp.Buckets[b] = enabled
	}
	return cp
}

// Matches reports whether a message should be delivered to this client
func (c *Client) Matches(message *Message) bool {
	return MatchesFilters(c.GetFilters(), message)
}

// MatchesFilters applies client filters to a flight message. Messages that
// are not about a flight always pass.
func MatchesFilters(filters *ClientFilters, message *Message) bool {
	switch message.Type {
	case MessageTypeFlightInsert, MessageTypeFlightUpdate, MessageTypeFlightDelete:
	default:
		return true
	}
	if filters == nil {
		return true
	}

	id, _ := message.Data["flight_id"].(string)
	if filters.SelectedFlightID != "" && id == filters.SelectedFlightID {
		return true
	}
	if len(filters.Buckets) == 0 {
		return true
	}
	bucket, _ := message.Data["bucket"].(string)
	// Flights moving out of a bucket are delivered too so clients can drop them
	previous, _ := message.Data["previous_bucket"].(string)
	return filters.Buckets[bucket] || (previous != "" && filters.Buckets[previous])
}
