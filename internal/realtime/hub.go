package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/gorilla/websocket"
)

// Recorder persists the effect of a relayed message on its conversation.
type Recorder interface {
	RecordMessage(ctx context.Context, chatID, senderID, text string) (*model.Conversation, error)
}

// HubOptions configures a Hub.
type HubOptions struct {
	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
	// Recorder, when set, is called for every new-message event.
	Recorder Recorder
}

// Hub tracks the live connections of every user and routes events between them.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Connection]struct{}
	sendBuffer int
	recorder   Recorder
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	return &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		sendBuffer: opts.SendBuffer,
		recorder:   opts.Recorder,
	}
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	set, ok := h.conns[c.UserID]
	if !ok {
		set = make(map[*Connection]struct{})
		h.conns[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	security.SocketOpened()
	log.Debug("Socket connected", "user", c.UserID, "conn", c.ID)
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	set, ok := h.conns[c.UserID]
	if ok {
		if _, present := set[c]; !present {
			ok = false
		}
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.UserID)
		}
	}
	h.mu.Unlock()
	if ok {
		security.SocketClosed()
	}
	log.Debug("Socket disconnected", "user", c.UserID, "conn", c.ID)
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// Deliver queues payload on every connection of userID and returns how many
// accepted it. Connections whose queue is full are dropped.
func (h *Hub) Deliver(userID string, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			log.Warn("Dropping slow socket", "user", userID, "conn", c.ID, "err", err)
			h.unregister(c)
			continue
		}
		delivered++
	}
	return delivered
}

// Serve runs the socket of an authenticated user until it disconnects or ctx
// is cancelled.
func (h *Hub) Serve(ctx context.Context, userID string, ws *websocket.Conn) {
	c := NewConnection(userID, ws, h.sendBuffer)
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close(websocket.CloseGoingAway, "server shutting down")
		case <-c.Done():
		}
	}()

	err := c.readLoop(func(data []byte) {
		h.handleFrame(ctx, c, data)
	})
	if err != nil && !isExpectedClose(err) {
		log.Warn("Socket read failed", "user", userID, "err", err)
	}
	c.Close(websocket.CloseNormalClosure, "")
}

func (h *Hub) handleFrame(ctx context.Context, from *Connection, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		countEvent("invalid", "rejected")
		log.Debug("Ignoring malformed frame", "user", from.UserID, "err", err)
		return
	}
	if frame.Event != EventNewMessage {
		countEvent("unknown", "ignored")
		return
	}

	var msg NewMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil || strings.TrimSpace(msg.Receiver) == "" {
		countEvent(frame.Event, "rejected")
		return
	}
	msg.Sender = from.UserID

	if h.recorder != nil && msg.ConversationID != "" {
		if _, err := h.recorder.RecordMessage(ctx, msg.ConversationID, msg.Sender, msg.Text); err != nil {
			log.Debug("Message not recorded", "conversation", msg.ConversationID, "sender", msg.Sender, "err", err)
		}
	}

	payload, err := EncodeFrame(EventNewMessage, msg)
	if err != nil {
		countEvent(frame.Event, "rejected")
		return
	}
	if h.Deliver(msg.Receiver, payload) == 0 {
		countEvent(frame.Event, "offline")
		return
	}
	countEvent(frame.Event, "delivered")
}

// Stats reports the number of users online and their open connections.
func (h *Hub) Stats() (users, connections int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.conns {
		connections += len(set)
	}
	return len(h.conns), connections
}

// Close disconnects every live socket.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Connection
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

func countEvent(event, outcome string) { security.CountSocketEvent(event, outcome) }

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, io.EOF) || strings.Contains(err.Error(), "use of closed network connection")
}
