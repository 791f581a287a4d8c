// Package ws pushes engine events to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/service"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// maxBacklog bounds the replay sent to a client connecting with ?since=.
	maxBacklog = 500

	// maxSubscriptions caps the channels one client may follow.
	maxSubscriptions = 64
)

// upgrader configures the WebSocket upgrade parameters. Origin checks are
// left to the CORS allow-list in front of the hub.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
// Channels are "markets" (every event) or "ch:market:<id>"; a trailing "*"
// matches by prefix.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// Hub manages connected WebSocket clients and fans out engine events read
// from the signal bus to the clients subscribed to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	chainID    int64
	startedAt  time.Time
}

// broadcastMsg is an event payload with the market it concerns, used to
// route it to subscribed clients.
type broadcastMsg struct {
	marketID domain.MarketID
	data     []byte
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	ChainID   int64
	StartedAt time.Time
}

// NewHub creates a hub bridging bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       strings.ToLower(strings.TrimSpace(cfg.Mode)),
		chainID:    cfg.ChainID,
		startedAt:  startedAt,
	}
}

// Run subscribes to the markets channel and runs the hub's event loop until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	msgCh, err := h.bus.Subscribe(ctx, service.MarketsChannel)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", service.MarketsChannel))
	go h.decode(ctx, msgCh)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			channels := []string{service.MarketsChannel, service.MarketChannel(msg.marketID)}
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(channels...) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// decode forwards bus payloads to the event loop together with the event
// they carry, dropping anything that is not an engine event.
func (h *Hub) decode(ctx context.Context, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed",
					slog.String("channel", service.MarketsChannel),
				)
				return
			}
			var ev domain.Event
			if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{marketID: ev.MarketID, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. ?markets=1,2 narrows the initial subscription;
// ?since=<stream id> replays missed events first.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize+maxBacklog),
		subs: initialSubs(r.URL.Query().Get("markets")),
	}

	c.sendStatus()
	if since := r.URL.Query().Get("since"); since != "" {
		h.replay(r.Context(), c, since)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func initialSubs(markets string) map[string]bool {
	subs := make(map[string]bool)
	for _, raw := range strings.Split(markets, ",") {
		id, err := domain.ParseMarketID(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		subs[service.MarketChannel(id)] = true
	}
	if len(subs) == 0 {
		subs[service.MarketsChannel] = true
	}
	return subs
}

// replay queues stream entries after since that match c's subscriptions.
func (h *Hub) replay(ctx context.Context, c *client, since string) {
	msgs, err := h.bus.StreamRead(ctx, service.MarketsStream, since, maxBacklog)
	if err != nil {
		h.logger.Warn("ws: backlog read failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		var ev domain.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			continue
		}
		if !c.isSubscribed(service.MarketsChannel, service.MarketChannel(ev.MarketID)) {
			continue
		}
		select {
		case c.send <- m.Payload:
		default:
			return
		}
	}
}

// readPump reads subscription changes from the connection.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests. Unknown
// channel names are ignored and a client follows at most maxSubscriptions.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			if !validChannel(ch) || len(c.subs) >= maxSubscriptions {
				continue
			}
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// validChannel accepts "markets", "ch:market:<id>" and the prefix patterns
// "ch:market:*" and "ch:market:<digits>*".
func validChannel(ch string) bool {
	if ch == service.MarketsChannel {
		return true
	}
	rest, ok := strings.CutPrefix(ch, service.MarketChannelPrefix)
	if !ok {
		return false
	}
	if digits, pattern := strings.CutSuffix(rest, "*"); pattern {
		return len(digits) <= 20 && strings.Trim(digits, "0123456789") == ""
	}
	_, err := domain.ParseMarketID(rest)
	return err == nil
}

// sendStatus queues a hello envelope so clients can mark the connection
// healthy before any market event flows.
func (c *client) sendStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"data": map[string]any{
			"mode":           c.hub.mode,
			"chain_id":       c.hub.chainID,
			"uptime_seconds": max(uptime, 0),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed reports whether any of channels matches a subscription,
// directly or through a trailing-"*" prefix.
func (c *client) isSubscribed(channels ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, channel := range channels {
		if c.subs[channel] {
			return true
		}
		for sub := range c.subs {
			if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
				return true
			}
		}
	}
	return false
}

// writePump sends queued messages as text frames and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
