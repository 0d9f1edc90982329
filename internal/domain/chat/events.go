package chat

import "time"

type ConversationStarted struct {
	ConversationID ConversationID `json:"conversation_id"`
	MatchID        string         `json:"match_id"`
	EmployerID     string         `json:"employer_id"`
	SeekerID       string         `json:"seeker_id"`
	At             time.Time      `json:"at"`
}

func (e ConversationStarted) EventName() string     { return "conversation.started" }
func (e ConversationStarted) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationStarted) OccurredAt() time.Time { return e.At }

type MessageSent struct {
	MessageID      MessageID      `json:"message_id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	RecipientID    string         `json:"recipient_id"`
	Content        string         `json:"content"`
	Kind           Kind           `json:"kind"`
	FileRef        string         `json:"file_ref,omitempty"`
	ClientID       string         `json:"client_id,omitempty"`
	At             time.Time      `json:"at"`
}

func (e MessageSent) EventName() string     { return "message.sent" }
func (e MessageSent) AggregateID() string   { return string(e.ConversationID) }
func (e MessageSent) OccurredAt() time.Time { return e.At }

// Message rebuilds the durable message carried by the event.
func (e MessageSent) Message() Message {
	return Message{
		ID:             e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		Content:        e.Content,
		Kind:           e.Kind,
		FileRef:        e.FileRef,
		Status:         StatusSent,
		ClientID:       e.ClientID,
		CreatedAt:      e.At,
	}
}

type ConversationRead struct {
	ConversationID ConversationID `json:"conversation_id"`
	ReaderID       string         `json:"reader_id"`
	MessageIDs     []MessageID    `json:"message_ids"`
	At             time.Time      `json:"at"`
}

func (e ConversationRead) EventName() string     { return "conversation.read" }
func (e ConversationRead) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationRead) OccurredAt() time.Time { return e.At }

type ConversationClosed struct {
	ConversationID ConversationID `json:"conversation_id"`
	ClosedBy       string         `json:"closed_by"`
	At             time.Time      `json:"at"`
}

func (e ConversationClosed) EventName() string     { return "conversation.closed" }
func (e ConversationClosed) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationClosed) OccurredAt() time.Time { return e.At }
