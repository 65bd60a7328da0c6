// Package realtime relays chat events between connected users over
// WebSockets and records them against the conversation store.
package realtime

import "encoding/json"

// EventNewMessage is the only event the relay acts on.
const EventNewMessage = "new-message"

// Frame is the envelope of every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewMessage is the payload of a new-message event.
type NewMessage struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
	Receiver       string `json:"receiver"`
}

// EncodeFrame marshals data under the given event name.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
