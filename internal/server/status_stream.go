package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/normanking/archon/internal/bus"
)

const (
	// writeWait is the timeout for writing to a WebSocket.
	writeWait = 10 * time.Second

	// pongWait is the timeout for pong responses.
	pongWait = 60 * time.Second

	// pingPeriod is how often to send ping frames.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum inbound message size allowed.
	maxMessageSize = 512
)

// statusStream forwards turn-progress events from the bus to connected
// WebSocket clients. Clients may filter to a single turn and request a
// replay of its retained history on connect.
type statusStream struct {
	events   *bus.Bus
	upgrader websocket.Upgrader

	clients    map[*streamClient]bool
	clientsMu  sync.RWMutex
	register   chan *streamClient
	unregister chan *streamClient

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// streamClient is one WebSocket connection.
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	turnID string // empty means all turns
	replay bool

	mu     sync.Mutex
	closed bool
}

// enqueue hands an encoded event to the write pump. It reports false when the
// client is closed or its buffer is full. The mutex serializes enqueue against
// shutdown so a send can never land on a closed channel.
func (c *streamClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		// slow client, drop the event
		return false
	}
}

// shutdown closes the send channel exactly once. Safe to call repeatedly.
func (c *streamClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func newStatusStream(events *bus.Bus) *statusStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &statusStream{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *statusStream) start() {
	s.events.Subscribe("", s.handleBusEvent)
	s.wg.Add(1)
	go s.runClientManager()
}

func (s *statusStream) stop() {
	s.cancel()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.shutdown()
		client.conn.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
}

func (s *statusStream) runClientManager() {
	defer s.wg.Done()

	for {
		select {
		case client := <-s.register:
			s.clientsMu.Lock()
			s.clients[client] = true
			total := len(s.clients)
			s.clientsMu.Unlock()
			log.Debug().Int("clients", total).Msg("status client connected")

			if client.replay && client.turnID != "" {
				s.replayTurn(client)
			}

		case client := <-s.unregister:
			s.clientsMu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.shutdown()
				client.conn.Close()
			}
			remaining := len(s.clients)
			s.clientsMu.Unlock()
			log.Debug().Int("clients", remaining).Msg("status client disconnected")

		case <-s.ctx.Done():
			return
		}
	}
}

// replayTurn sends the retained events of the client's turn on connect.
func (s *statusStream) replayTurn(client *streamClient) {
	for _, event := range s.events.HistoryForTurn(client.turnID) {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if !client.enqueue(data) {
			return
		}
	}
}

// handleWebSocket upgrades GET /v1/status connections.
// Query parameters: turn_id filters to one turn, replay=false skips history.
func (s *statusStream) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	replay := true
	if v := r.URL.Query().Get("replay"); v != "" {
		replay, _ = strconv.ParseBool(v)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		turnID: r.URL.Query().Get("turn_id"),
		replay: replay,
	}

	s.register <- client

	s.wg.Add(2)
	go s.writePump(client)
	go s.readPump(client)
}

func (s *statusStream) writePump(client *streamClient) {
	defer s.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *statusStream) readPump(client *streamClient) {
	defer s.wg.Done()
	defer func() {
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		// inbound messages are ignored; the stream is one-way
	}
}

// handleBusEvent forwards every published event to matching clients.
func (s *statusStream) handleBusEvent(event bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	targets := make([]*streamClient, 0, len(s.clients))
	for client := range s.clients {
		if client.turnID == "" || client.turnID == event.TurnID {
			targets = append(targets, client)
		}
	}
	s.clientsMu.RUnlock()

	for _, client := range targets {
		client.enqueue(data)
	}
}
