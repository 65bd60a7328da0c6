package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/realtime"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/gorilla/websocket"
)

// ErrEmptyMessage is returned when a broadcast has no text.
var ErrEmptyMessage = errors.New("please enter a message")

// Emitter sends one realtime event.
type Emitter interface {
	Emit(ctx context.Context, event string, data any) error
}

// Broadcaster sends the same text to every direct-chat peer.
type Broadcaster struct {
	Emitter Emitter
}

// Broadcast emits one new-message event per friend derived from chats and
// returns how many were sent. Failures are joined; nothing is retried.
func (b *Broadcaster) Broadcast(ctx context.Context, chats []model.ConversationView, selfID, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyMessage
	}
	var errs []error
	sent := 0
	for _, f := range FriendsOf(chats, selfID) {
		err := b.Emitter.Emit(ctx, realtime.EventNewMessage, realtime.NewMessage{
			ConversationID: f.ConversationID,
			Sender:         selfID,
			Text:           text,
			Receiver:       f.ID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("emit to %s: %w", f.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// SocketEmitter writes events to the service's /socket endpoint.
type SocketEmitter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// DialSocket opens the realtime socket of the user behind api.
func DialSocket(ctx context.Context, api *API) (*SocketEmitter, error) {
	u, err := url.Parse(api.BaseURL())
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket"

	header := http.Header{}
	header.Set(security.HeaderAuthToken, api.Token())
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("socket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("socket dial: %w", err)
	}
	return &SocketEmitter{ws: ws}, nil
}

// Emit writes one frame.
func (s *SocketEmitter) Emit(ctx context.Context, event string, data any) error {
	frame, err := realtime.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, frame)
}

// Receive blocks for the next new-message event.
func (s *SocketEmitter) Receive(ctx context.Context) (*realtime.NewMessage, error) {
	if d, ok := ctx.Deadline(); ok {
		_ = s.ws.SetReadDeadline(d)
	} else {
		_ = s.ws.SetReadDeadline(time.Time{})
	}
	for {
		var frame realtime.Frame
		if err := s.ws.ReadJSON(&frame); err != nil {
			return nil, err
		}
		if frame.Event != realtime.EventNewMessage {
			continue
		}
		var msg realtime.NewMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}
}

// Close sends a close frame and closes the socket.
func (s *SocketEmitter) Close() error {
	s.mu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.ws.Close()
}
