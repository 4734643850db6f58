package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/thinglink-core/internal/auth"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// hookTimeout bounds a channel join or leave hook.
	hookTimeout = 10 * time.Second
)

// Hub channels.
const (
	ChannelPairing      = "pairing"
	ChannelDeviceStatus = "device.status"
	ChannelHomeChanged  = "home.changed"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// channelHook runs when the first client joins or the last leaves a
// channel backed by an upstream subscription.
type channelHook struct {
	join  func(ctx context.Context) error
	leave func(ctx context.Context) error
}

// Hub manages WebSocket connections and broadcasts events.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	hooks   map[string]channelHook
	onCount func(int)
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	role          auth.Role
	mu            sync.RWMutex
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
		hooks:   make(map[string]channelHook),
	}
}

// SetChannelHook ties channel to an upstream subscription. join runs for
// every client that subscribes and leave for every client that goes, so
// a ref-counted join/leave pair keeps the upstream alive exactly while
// anyone listens.
func (h *Hub) SetChannelHook(channel string, join, leave func(ctx context.Context) error) {
	h.mu.Lock()
	h.hooks[channel] = channelHook{join: join, leave: leave}
	h.mu.Unlock()
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.countChanged(n)
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and releases its hooked channels.
// Only the goroutine that removes the client from the map closes the send
// channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}
	close(client.send)
	client.leaveAll()
	h.countChanged(n)
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends an event to all clients subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sentCount := 0
	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
			sentCount++
		}
	}
	if sentCount > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sentCount)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) hook(channel string) (channelHook, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hk, ok := h.hooks[channel]
	return hk, ok
}

func (h *Hub) countChanged(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// closeAll disconnects all clients.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
		client.leaveAll()
		if client.conn != nil {
			client.conn.Close()
		}
	}
	h.countChanged(0)
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
// With auth enabled a ticket from POST /auth/ws-ticket is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var role auth.Role
	if s.issuer != nil {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		claims, ok := s.tickets.take(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		if claims != nil {
			role = claims.Role
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, role)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func newWSClient(hub *Hub, conn *websocket.Conn, role auth.Role) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		role:          role,
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message keeps the connection alive.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		channels, ok := parseChannels(msg.Payload)
		if !ok {
			c.sendError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.sendResponse(msg.ID, WSTypeResponse, c.subscribe(channels))
		} else {
			c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": c.unsubscribe(channels)})
		}
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func parseChannels(payload any) ([]string, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	return sub.Channels, true
}

// subscribe adds channels, running the join hook for hooked channels the
// client was not already on. A failed join leaves that channel out.
func (c *WSClient) subscribe(channels []string) map[string]any {
	var added []string
	failed := map[string]string{}

	for _, ch := range channels {
		if c.isSubscribed(ch) {
			added = append(added, ch)
			continue
		}
		if hk, ok := c.hub.hook(ch); ok && hk.join != nil {
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			err := hk.join(ctx)
			cancel()
			if err != nil {
				c.hub.logger.Warn("websocket channel join failed", "channel", ch, "error", err)
				failed[ch] = err.Error()
				continue
			}
		}
		c.mu.Lock()
		c.subscriptions[ch] = struct{}{}
		c.mu.Unlock()
		added = append(added, ch)
	}

	c.hub.logger.Info("websocket client subscribed", "channels", added)
	resp := map[string]any{"subscribed": added}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	return resp
}

// unsubscribe removes channels, running the leave hook for hooked ones.
func (c *WSClient) unsubscribe(channels []string) []string {
	var removed []string
	for _, ch := range channels {
		c.mu.Lock()
		_, had := c.subscriptions[ch]
		delete(c.subscriptions, ch)
		c.mu.Unlock()
		if !had {
			continue
		}
		c.leave(ch)
		removed = append(removed, ch)
	}
	return removed
}

// leaveAll runs the leave hook for every hooked channel on disconnect.
func (c *WSClient) leaveAll() {
	c.mu.Lock()
	channels := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		channels = append(channels, ch)
	}
	c.subscriptions = make(map[string]struct{})
	c.mu.Unlock()

	for _, ch := range channels {
		c.leave(ch)
	}
}

func (c *WSClient) leave(channel string) {
	hk, ok := c.hub.hook(channel)
	if !ok || hk.leave == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := hk.leave(ctx); err != nil {
		c.hub.logger.Warn("websocket channel leave failed", "channel", channel, "error", err)
	}
}

// trySend queues data for the client, dropping it when the buffer is
// full or the client is gone.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// isSubscribed checks if the client is subscribed to a channel.
func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// sendResponse sends a response message to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
