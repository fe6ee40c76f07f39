package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"tabletalk-web/internal/models"
	"tabletalk-web/internal/proxy"
)

const (
	channelPrefix   = "session_updates:"
	writeWait       = 10 * time.Second
	maxMessageBytes = 64 * 1024
	maxSessionIDLen = 128

	subscribeTimeout = 5 * time.Second
)

type lineForwarder interface {
	Lines(ctx context.Context, body []byte, requestID string, onLine func(string)) error
}

type transcriptRecorder interface {
	Record(entry models.TranscriptEntry) bool
}

type client struct {
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex

	streamMu sync.Mutex
	streamID uint64
	cancel   context.CancelFunc
}

func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// startStream cancels the client's in-flight stream, if any, and returns the
// context and id for the next one.
func (c *client) startStream(parent context.Context) (context.Context, uint64) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.streamID++
	return ctx, c.streamID
}

// endStream releases the stream's context if it is still the current one.
func (c *client) endStream(id uint64) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.streamID == id && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *client) stopStream() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// subscription tracks a session's Redis subscription; ready is closed once
// Redis has confirmed it or it failed with err.
type subscription struct {
	ready chan struct{}
	err   error
}

// Hub serves the WebSocket chat transport. Lines streamed for a session are
// delivered to every connection of that session; with Redis configured the
// fan-out goes through pub/sub so it spans server replicas.
type Hub struct {
	mu            sync.RWMutex
	connections   map[string][]*client
	cancelFuncs   map[string]context.CancelFunc
	subscriptions map[string]*subscription

	forwarder     lineForwarder
	recorder      transcriptRecorder
	redisClient   *redis.Client
	allowedOrigin string
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// NewHub builds a hub. recorder and redisClient are optional.
func NewHub(forwarder lineForwarder, recorder transcriptRecorder, redisClient *redis.Client, allowedOrigin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		connections:   make(map[string][]*client),
		cancelFuncs:   make(map[string]context.CancelFunc),
		subscriptions: make(map[string]*subscription),
		forwarder:     forwarder,
		recorder:      recorder,
		redisClient:   redisClient,
		allowedOrigin: strings.TrimRight(allowedOrigin, "/"),
		logger:        logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" || len(sessionID) > maxSessionIDLen {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &client{conn: conn, sessionID: sessionID}
	if err := h.registerConnection(c); err != nil {
		h.logger.Error("websocket subscription failed", "session_id", sessionID, "error", err)
		h.unregisterConnection(c)
		return
	}

	// The read loop owns the connection; the request context ends with the
	// handler, so streams get their own root.
	go func() {
		defer h.unregisterConnection(c)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			h.handleMessage(c, data)
		}
	}()
}

func (h *Hub) handleMessage(c *client, data []byte) {
	var payload models.ChatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, "invalid chat payload")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		h.sendError(c, "message is required")
		return
	}
	// a connection speaks for exactly one session
	payload.SessionID = c.sessionID

	body, err := json.Marshal(payload)
	if err != nil {
		h.sendError(c, "invalid chat payload")
		return
	}

	h.record(c.sessionID, models.RoleUser, payload.Message)

	ctx, streamID := c.startStream(context.Background())
	requestID := uuid.NewString()

	go func() {
		defer c.endStream(streamID)

		err := h.forwarder.Lines(ctx, body, requestID, func(line string) {
			h.record(c.sessionID, models.RoleAssistant, line)
			h.publish(ctx, c.sessionID, line)
		})
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		h.logger.Error("websocket stream failed",
			"session_id", c.sessionID,
			"request_id", requestID,
			"error", err)

		var statusErr *proxy.StatusError
		if errors.As(err, &statusErr) {
			h.sendError(c, statusErr.Error())
			return
		}
		h.sendError(c, "chat backend is unavailable")
	}()
}

// registerConnection adds c to its session. With Redis it returns only once
// the session's subscription is active, so lines published for the first
// frame are not lost.
func (h *Hub) registerConnection(c *client) error {
	h.mu.Lock()
	h.connections[c.sessionID] = append(h.connections[c.sessionID], c)
	count := len(h.connections[c.sessionID])

	if h.redisClient == nil {
		h.mu.Unlock()
		h.logger.Info("websocket connected", "session_id", c.sessionID, "connections", count)
		return nil
	}

	sub, subscribing := h.subscriptions[c.sessionID]
	var ctx context.Context
	var cancel context.CancelFunc
	if !subscribing {
		// first connection for this session starts the subscription
		ctx, cancel = context.WithCancel(context.Background())
		sub = &subscription{ready: make(chan struct{})}
		h.cancelFuncs[c.sessionID] = cancel
		h.subscriptions[c.sessionID] = sub
	}
	h.mu.Unlock()

	if subscribing {
		select {
		case <-sub.ready:
			if sub.err != nil {
				return sub.err
			}
		case <-time.After(subscribeTimeout):
			return errors.New("timed out waiting for session subscription")
		}
	} else {
		pubsub, err := h.subscribe(ctx, c.sessionID)
		if err != nil {
			// let the next connection retry
			h.mu.Lock()
			if h.subscriptions[c.sessionID] == sub {
				delete(h.subscriptions, c.sessionID)
				delete(h.cancelFuncs, c.sessionID)
			}
			h.mu.Unlock()
			cancel()
			sub.err = err
			close(sub.ready)
			return err
		}
		close(sub.ready)
		go h.consumePubSub(ctx, c.sessionID, pubsub)
	}

	h.logger.Info("websocket connected", "session_id", c.sessionID, "connections", count)
	return nil
}

func (h *Hub) subscribe(ctx context.Context, sessionID string) (*redis.PubSub, error) {
	pubsub := h.redisClient.Subscribe(ctx, channelPrefix+sessionID)

	// Subscribe does not wait for the server; Receive returns its confirmation.
	recvCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(recvCtx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channelPrefix+sessionID, err)
	}
	return pubsub, nil
}

func (h *Hub) unregisterConnection(c *client) {
	c.stopStream()

	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[c.sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[c.sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[c.sessionID]) == 0 {
		delete(h.connections, c.sessionID)
		if cancel, ok := h.cancelFuncs[c.sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, c.sessionID)
		}
		delete(h.subscriptions, c.sessionID)
	}

	h.logger.Info("websocket disconnected", "session_id", c.sessionID)
}

func (h *Hub) consumePubSub(ctx context.Context, sessionID string, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) publish(ctx context.Context, sessionID, line string) {
	if h.redisClient == nil {
		h.broadcast(sessionID, []byte(line))
		return
	}
	if err := h.redisClient.Publish(ctx, channelPrefix+sessionID, line).Err(); err != nil {
		h.logger.Warn("publish failed, delivering locally", "session_id", sessionID, "error", err)
		h.broadcast(sessionID, []byte(line))
	}
}

func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(data); err != nil {
			h.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
		}
	}
}

func (h *Hub) sendError(c *client, message string) {
	data, _ := json.Marshal(message)
	frame, _ := json.Marshal(models.StreamEvent{Type: models.EventError, Data: data})
	c.send(frame)
}

func (h *Hub) record(sessionID, role, content string) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(models.TranscriptEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// Shutdown closes every connection and stops all subscriptions.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*client
	for _, conns := range h.connections {
		all = append(all, conns...)
	}
	for id, cancel := range h.cancelFuncs {
		cancel()
		delete(h.cancelFuncs, id)
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.stopStream()
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}

// SessionCount reports how many sessions have at least one live connection.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
