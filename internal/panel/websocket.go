package panel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chatmark/internal/bus"
	"chatmark/internal/domain"
	"chatmark/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Frame is the JSON envelope exchanged over the panel WebSocket.
//
//	client → server  {"type":"request","id":"1","request":{...}}
//	server → client  {"type":"response","id":"1","response":{...}}
//	server → client  {"type":"event","event":"chat.updated","payload":{...}}
type Frame struct {
	Type     string           `json:"type"`
	ID       string           `json:"id,omitempty"`
	Request  *domain.Request  `json:"request,omitempty"`
	Response *domain.Response `json:"response,omitempty"`
	Event    string           `json:"event,omitempty"`
	Payload  any              `json:"payload,omitempty"`
}

const (
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
	FrameStatus   = "status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The panel binds to loopback by default; any local page may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	sendQueueSize = 64
	writeWait     = 10 * time.Second
)

var (
	errSlowClient   = errors.New("websocket send queue full")
	errClientClosed = errors.New("websocket client closed")
)

// wsClient is one panel connection. Frames are written by a single writer
// goroutine draining out, so senders never wait on the network.
type wsClient struct {
	id      string
	conn    *websocket.Conn
	limiter *rate.Limiter // nil when unlimited
	out     chan []byte
	done    chan struct{}
	once    sync.Once
}

func newWSClient(conn *websocket.Conn, queue int) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// send queues f. A client whose queue is full is disconnected; it can reconnect
// with ?since= to replay the events it missed.
func (c *wsClient) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		c.close()
		return errSlowClient
	}
}

// write sends f on the connection directly. Only valid before writeLoop starts.
func (c *wsClient) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// handleUpgrade accepts a panel connection. ?since=<unix ms> replays the events
// emitted after that instant before live events start.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := newWSClient(conn, sendQueueSize)
	if s.rateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(s.rateLimit), s.burst)
	}

	// Registered before the replay so no live event falls between the two. Live
	// frames wait in the queue until the writer starts.
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	metrics.PanelClients.Inc()
	s.logger.Info("panel client connected", "client_id", client.id)

	defer func() {
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()
		metrics.PanelClients.Dec()
		client.close()
		s.logger.Info("panel client disconnected", "client_id", client.id)
	}()

	if since := r.URL.Query().Get("since"); since != "" && s.events != nil {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			for _, e := range s.events.Replay("*", time.UnixMilli(ms)) {
				if err := client.write(eventFrame(e)); err != nil {
					return
				}
			}
		}
	}
	if err := client.write(Frame{Type: FrameStatus, Payload: "connected"}); err != nil {
		return
	}
	go client.writeLoop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("websocket read error", "client_id", client.id, "err", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("invalid websocket frame", "client_id", client.id, "err", err)
			continue
		}
		if f.Type != FrameRequest || f.Request == nil {
			s.logger.Debug("ignoring websocket frame", "type", f.Type)
			continue
		}

		if client.limiter != nil && !client.limiter.Allow() {
			metrics.PanelThrottled.Inc()
			resp := domain.Failure("rate limit exceeded")
			client.send(Frame{Type: FrameResponse, ID: f.ID, Response: &resp})
			continue
		}

		go s.serveFrame(r, client, f)
	}
}

func (s *Server) serveFrame(r *http.Request, client *wsClient, f Frame) {
	resp, err := s.send(r.Context(), *f.Request)
	if err != nil {
		resp = domain.Failure("%v", err)
	}
	if err := client.send(Frame{Type: FrameResponse, ID: f.ID, Response: &resp}); err != nil {
		s.logger.Debug("websocket write failed", "client_id", client.id, "err", err)
	}
}

func eventFrame(e bus.Event) Frame {
	return Frame{Type: FrameEvent, Event: e.Type, Payload: e}
}

// broadcast fans one store event out to every connected client. It runs on the
// emitting goroutine and only queues frames.
func (s *Server) broadcast(e bus.Event) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	f := eventFrame(e)
	for _, c := range clients {
		if err := c.send(f); errors.Is(err, errSlowClient) {
			s.logger.Warn("dropping panel client", "client_id", c.id, "err", err)
		}
	}
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
}
