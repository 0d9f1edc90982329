package dto

import "encoding/json"

// Websocket frame types.
const (
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
	FrameBroadcast    = "broadcast"
	FramePing         = "ping"
	FrameReady        = "ready"
	FrameMessageNew   = "message.new"
	FrameMessageRead  = "message.read"
	FrameNotification = "notification.new"
	FramePong         = "pong"
	FrameError        = "error"
)

// Frame is one websocket envelope in either direction. Payload holds a
// Message, ReadReceipt, Notification or FrameError body depending on Type.
type Frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type FrameErrorBody struct {
	Error string `json:"error"`
}

// NewFrame marshals payload into a frame. A nil payload leaves it empty.
func NewFrame(typ, conversationID string, payload any) (Frame, error) {
	f := Frame{Type: typ, ConversationID: conversationID}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Payload = raw
	return f, nil
}
