package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/internal/audio"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// ErrSessionNotConnected is returned when pushing to a session with no socket
var ErrSessionNotConnected = errors.New("session not connected")

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  8192,
	WriteBufferSize: 4096,
}

// Recording is what the stub observed on one session
type Recording struct {
	Frames         int
	PlayingFrames  int
	MalformedBytes int
	Samples        int
	Controls       []domain.ControlType
	LastSpeed      int
	LastPersona    string
	LastVerbosity  string
	Replies        int
}

// Hub maintains the set of connected sessions
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	mu         sync.RWMutex
	recordings map[string]*Recording

	replyAfter int
	logger     *zap.Logger
}

// NewHub creates a hub that answers after replyAfter audio frames.
// Zero disables the scripted reply.
func NewHub(replyAfter int, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		recordings: make(map[string]*Recording),
		replyAfter: replyAfter,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				c.conn.Close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.sessionID]; ok {
				old.conn.Close()
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client.sessionID] == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
		}
	}
}

// Connected reports whether sessionID has an open socket
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// Recording returns a copy of what the session sent so far
func (h *Hub) Recording(sessionID string) (Recording, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.recordings[sessionID]
	if !ok {
		return Recording{}, false
	}
	out := *r
	out.Controls = append([]domain.ControlType(nil), r.Controls...)
	return out, true
}

// Push sends an event to a connected session
func (h *Hub) Push(sessionID string, event domain.InboundEvent) error {
	c := h.client(sessionID)
	if c == nil {
		return ErrSessionNotConnected
	}
	return c.sendEvent(event)
}

// Disconnect closes the session's socket with a normal closure
func (h *Hub) Disconnect(sessionID string) error {
	c := h.client(sessionID)
	if c == nil {
		return ErrSessionNotConnected
	}
	c.enqueue(WriteData{
		Type:    websocket.CloseMessage,
		Payload: websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
	})
	return nil
}

func (h *Hub) client(sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

func (h *Hub) record(sessionID string, fn func(r *Recording)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.recordings[sessionID]; ok {
		fn(r)
	}
}

// WriteData is one queued outbound websocket message
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage, websocket.BinaryMessage or websocket.CloseMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData
	done chan struct{}

	sessionID string
	logger    *zap.Logger

	mu        sync.Mutex
	frames    int
	replying  bool
	interrupt chan struct{}
}

// Serve upgrades the request and registers the session's socket
func (h *Hub) Serve(c echo.Context, sessionID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan WriteData, 256),
		done:      make(chan struct{}),
		sessionID: sessionID,
		logger:    h.logger.With(zap.String("sessionID", sessionID)),
	}

	h.mu.Lock()
	if _, ok := h.recordings[sessionID]; !ok {
		h.recordings[sessionID] = &Recording{}
	}
	h.mu.Unlock()

	select {
	case h.register <- client:
	case <-h.stopped:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
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
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControl(message)
		case websocket.BinaryMessage:
			c.processFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
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

func (c *Client) enqueue(msg WriteData) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) sendEvent(event domain.InboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if !c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload}) {
		return ErrSessionNotConnected
	}
	return nil
}

// processFrame records one outbound audio frame from the client
func (c *Client) processFrame(data []byte) {
	ts, flags, ok := audio.ParseHeader(data)
	if !ok || len(data) != audio.FrameBytes {
		c.logger.Warn("Malformed audio frame", zap.Int("size", len(data)))
		c.hub.record(c.sessionID, func(r *Recording) { r.MalformedBytes += len(data) })
		return
	}

	c.hub.record(c.sessionID, func(r *Recording) {
		r.Frames++
		r.Samples += audio.BatchSamples
		if flags&audio.FlagPlaybackActive != 0 {
			r.PlayingFrames++
		}
	})

	c.mu.Lock()
	c.frames++
	start := c.hub.replyAfter > 0 && c.frames >= c.hub.replyAfter && !c.replying
	if start {
		c.frames = 0
		c.replying = true
		c.interrupt = make(chan struct{})
	}
	interrupt := c.interrupt
	c.mu.Unlock()

	c.logger.Debug("Received audio frame",
		zap.Uint32("timestamp", ts),
		zap.Uint32("flags", flags))

	if start {
		go c.reply(interrupt)
	}
}

// processControl records a control message from the client
func (c *Client) processControl(message []byte) {
	var msg struct {
		Type      domain.ControlType `json:"type"`
		Speed     int                `json:"speed"`
		Persona   string             `json:"persona"`
		Verbosity string             `json:"verbosity"`
	}
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
		c.logger.Error("Failed to parse message", zap.ByteString("message", message))
		return
	}

	c.hub.record(c.sessionID, func(r *Recording) {
		r.Controls = append(r.Controls, msg.Type)
		switch msg.Type {
		case domain.ControlSetSpeed:
			r.LastSpeed = msg.Speed
		case domain.ControlSetSystemPrompt:
			r.LastPersona = msg.Persona
			r.LastVerbosity = msg.Verbosity
		}
	})

	switch msg.Type {
	case domain.ControlClearHistory:
		c.mu.Lock()
		c.frames = 0
		c.mu.Unlock()
	case domain.ControlTTSStop:
		c.stopReply()
	}

	c.logger.Info("Received control message", zap.String("type", string(msg.Type)))
}

func (c *Client) stopReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replying && c.interrupt != nil {
		close(c.interrupt)
		c.interrupt = nil
	}
}

// reply plays a canned exchange: user transcript, assistant answer, then a
// short synthesized tone in several tts_chunk messages
func (c *Client) reply(interrupt <-chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.replying = false
		c.mu.Unlock()
	}()

	script := []domain.InboundEvent{
		{Type: domain.EventPartialUserRequest, Content: "halo"},
		{Type: domain.EventPartialUserRequest, Content: "halo arunika"},
		{Type: domain.EventFinalUserRequest, Content: "halo arunika, apa kabar?"},
		{Type: domain.EventPartialAssistantAnswer, Content: "Halo!"},
		{Type: domain.EventFinalAssistantAnswer, Content: "Halo! Aku baik, terima kasih sudah bertanya."},
	}
	for _, chunk := range toneChunks(440, audio.SampleRate/2, 2400) {
		script = append(script, domain.InboundEvent{Type: domain.EventTTSChunk, Content: chunk})
	}

	c.hub.record(c.sessionID, func(r *Recording) { r.Replies++ })

	for _, event := range script {
		select {
		case <-interrupt:
			c.logger.Info("Reply interrupted by client")
			return
		case <-c.done:
			return
		default:
		}
		if err := c.sendEvent(event); err != nil {
			return
		}
	}
}
