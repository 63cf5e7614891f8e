// Package bridge exposes the cover controller over a WebSocket so it can be
// driven from a browser or script on another machine.
package bridge

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"remote-cover-controller/internal/link"
)

const writeWait = 2 * time.Second

// Sender writes cover commands, typically a *link.Reader.
type Sender interface {
	Send(cmd link.Command) error
}

type Request struct {
	Command string `json:"command"` // "OPEN", "CLOSE", "PING", "GETSTATE"
}

type Response struct {
	Status  string      `json:"status"` // "sent", "error", "line", "closed"
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// LineData accompanies a "line" response.
type LineData struct {
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time per connection
}

func (c *client) send(resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(resp)
}

// Hub relays commands from WebSocket clients to the serial link and fans
// received lines out to every client.
type Hub struct {
	sender   Sender
	upgrader websocket.Upgrader
	origins  map[string]bool

	mu      sync.Mutex
	clients map[*client]struct{}
	onSend  func(cmd link.Command, err error)
}

// NewHub creates a hub. Browser clients are accepted only from the bridge's
// own host or from one of allowedOrigins (e.g. "http://observatory.local:8080").
func NewHub(sender Sender, allowedOrigins ...string) *Hub {
	h := &Hub{
		sender:  sender,
		origins: make(map[string]bool),
		clients: make(map[*client]struct{}),
	}
	for _, o := range allowedOrigins {
		h.origins[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

// SetOnSend registers fn to observe every command a client asks for.
func (h *Hub) SetOnSend(fn func(cmd link.Command, err error)) {
	h.mu.Lock()
	h.onSend = fn
	h.mu.Unlock()
}

// checkOrigin allows non-browser clients (no Origin header), same-host pages
// and the configured origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if h.origins[strings.ToLower(u.Scheme+"://"+u.Host)] {
		return true
	}
	log.Warn().Str("origin", origin).Str("remote", r.RemoteAddr).Msg("rejected cross-origin bridge client")
	return false
}

// Handler serves the hub on /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	return mux
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn}
	h.add(c)
	defer func() {
		h.remove(c)
		conn.Close()
	}()

	log.Info().Str("remote", r.RemoteAddr).Msg("bridge client connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("bridge client disconnected")
			return
		}

		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			c.send(Response{Status: "error", Message: "invalid JSON"})
			continue
		}
		c.send(h.handle(req))
	}
}

func (h *Hub) handle(req Request) Response {
	cmd, err := link.ParseCommand(req.Command)
	if err != nil {
		return Response{Status: "error", Message: err.Error()}
	}
	err = h.sender.Send(cmd)

	h.mu.Lock()
	onSend := h.onSend
	h.mu.Unlock()
	if onSend != nil {
		onSend(cmd, err)
	}

	if err != nil {
		log.Warn().Err(err).Str("command", cmd.Name()).Msg("bridge command failed")
		return Response{Status: "error", Message: err.Error()}
	}
	return Response{Status: "sent", Message: string(cmd)}
}

// Broadcast sends a received line to every connected client. Clients that
// cannot keep up are dropped.
func (h *Hub) Broadcast(line link.Line) {
	h.publish(Response{
		Status:  "line",
		Message: line.Text,
		Data:    LineData{Timestamp: line.Timestamp},
	})
}

// Notify tells every client that the serial session ended.
func (h *Hub) Notify(message string) {
	h.publish(Response{Status: "closed", Message: message})
}

func (h *Hub) publish(resp Response) {
	for _, c := range h.snapshot() {
		if err := c.send(resp); err != nil {
			log.Warn().Err(err).Msg("dropping bridge client")
			h.remove(c)
			c.conn.Close()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		h.remove(c)
		c.conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}
