package eventhub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxjob/internal/domain"
)

// Envelope types broadcast to subscribers.
const (
	TypeRecording = "recording"
	TypeJob       = "job"
	TypeProgress  = "progress"
	TypeError     = "error"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 2 * pingInterval
)

// Envelope is one JSON event frame.
type Envelope struct {
	Type     string                 `json:"type"`
	JobID    string                 `json:"jobId,omitempty"`
	Job      *domain.Job            `json:"job,omitempty"`
	Progress *int                   `json:"progress,omitempty"`
	Kind     domain.FailureKind     `json:"kind,omitempty"`
	Message  string                 `json:"message,omitempty"`
	State    domain.RecordingState  `json:"state,omitempty"`
	Reason   domain.RecordingReason `json:"reason,omitempty"`
	At       time.Time              `json:"at"`
}

// Hub fans job and recording events out to websocket subscribers. It
// implements ports.EventSink. Subscribers that fall behind are disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		c.close()
		return
	}
	h.logger.Debug("event subscriber connected", slog.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(c)
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (h *Hub) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason) {
	h.broadcast(Envelope{Type: TypeRecording, State: state, Reason: reason})
}

func (h *Hub) JobUpdated(job domain.Job) {
	h.broadcast(Envelope{Type: TypeJob, JobID: job.ID, Job: &job})
}

func (h *Hub) JobProgress(jobID string, progress int) {
	h.broadcast(Envelope{Type: TypeProgress, JobID: jobID, Progress: &progress})
}

func (h *Hub) JobError(jobID string, kind domain.FailureKind, detail string) {
	h.broadcast(Envelope{Type: TypeError, JobID: jobID, Kind: kind, Message: detail})
}

func (h *Hub) broadcast(env Envelope) {
	env.At = h.now().UTC()
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("failed to encode event", slog.String("type", env.Type), slog.String("error", err.Error()))
		return
	}

	var dropped []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			dropped = append(dropped, c)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		h.logger.Warn("dropping slow event subscriber")
		c.close()
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readLoop discards inbound frames; it exists to observe pongs and disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.remove(c)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
