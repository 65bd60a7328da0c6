package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMessage struct {
	chatID, senderID, text string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedMessage
}

func (r *fakeRecorder) RecordMessage(_ context.Context, chatID, senderID, text string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedMessage{chatID, senderID, text})
	return &model.Conversation{ID: chatID}, nil
}

func (r *fakeRecorder) snapshot() []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedMessage(nil), r.calls...)
}

func startHub(t *testing.T, rec Recorder) (*Hub, string) {
	t.Helper()
	hub := NewHub(HubOptions{SendBuffer: 8, Recorder: rec})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), r.URL.Query().Get("user"), ws)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url, user string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.Eventually(t, func() bool { return hub.Online(user) }, 2*time.Second, 10*time.Millisecond)
	return ws
}

func sendNewMessage(t *testing.T, ws *websocket.Conn, msg NewMessage) {
	t.Helper()
	frame, err := EncodeFrame(EventNewMessage, msg)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func readNewMessage(t *testing.T, ws *websocket.Conn) NewMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, EventNewMessage, frame.Event)
	var msg NewMessage
	require.NoError(t, json.Unmarshal(frame.Data, &msg))
	return msg
}

func TestRelayDeliversToReceiverWithAuthenticatedSender(t *testing.T) {
	rec := &fakeRecorder{}
	hub, url := startHub(t, rec)

	alice := dial(t, hub, url, "alice")
	bob := dial(t, hub, url, "bob")

	sendNewMessage(t, alice, NewMessage{ConversationID: "c1", Sender: "mallory", Text: "hi bob", Receiver: "bob"})

	got := readNewMessage(t, bob)
	assert.Equal(t, NewMessage{ConversationID: "c1", Sender: "alice", Text: "hi bob", Receiver: "bob"}, got)
	assert.Equal(t, []recordedMessage{{"c1", "alice", "hi bob"}}, rec.snapshot())
}

func TestRelayFansOutToEveryConnectionOfReceiver(t *testing.T) {
	hub, url := startHub(t, nil)

	alice := dial(t, hub, url, "alice")
	bob1 := dial(t, hub, url, "bob")
	bob2, _, err := websocket.DefaultDialer.Dial(url+"?user=bob", nil)
	require.NoError(t, err)
	defer bob2.Close()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.conns["bob"]) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sendNewMessage(t, alice, NewMessage{ConversationID: "c1", Text: "both", Receiver: "bob"})
	assert.Equal(t, "both", readNewMessage(t, bob1).Text)
	assert.Equal(t, "both", readNewMessage(t, bob2).Text)
}

func TestRelayIgnoresUnknownAndMalformedFrames(t *testing.T) {
	rec := &fakeRecorder{}
	hub, url := startHub(t, rec)

	alice := dial(t, hub, url, "alice")
	bob := dial(t, hub, url, "bob")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	frame, err := EncodeFrame("typing", map[string]string{"receiver": "bob"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, frame))
	sendNewMessage(t, alice, NewMessage{ConversationID: "c1", Text: "no receiver"})
	sendNewMessage(t, alice, NewMessage{ConversationID: "c1", Text: "real", Receiver: "bob"})

	// Only the last frame reaches bob; the connection survived the bad ones.
	assert.Equal(t, "real", readNewMessage(t, bob).Text)
	assert.Len(t, rec.snapshot(), 1)
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub, url := startHub(t, nil)

	ws, _, err := websocket.DefaultDialer.Dial(url+"?user=carol", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Online("carol") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return !hub.Online("carol") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Deliver("carol", []byte("{}")))
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub(HubOptions{SendBuffer: 1})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Register without a write loop so the queue never drains.
		c := NewConnection("dave", ws, 1)
		hub.register(c)
		<-c.Done()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return hub.Online("dave") }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, hub.Deliver("dave", []byte("first")))
	assert.Equal(t, 0, hub.Deliver("dave", []byte("second")))
	assert.False(t, hub.Online("dave"))
}
