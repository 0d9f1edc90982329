package dto

import (
	"time"

	"kindbossing/internal/domain/chat"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Kind           string    `json:"kind"`
	FileRef        string    `json:"file_ref,omitempty"`
	Status         string    `json:"status"`
	ClientID       string    `json:"client_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageList is one page of a conversation, newest first.
type MessageList struct {
	Items   []Message `json:"items"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"has_more"`
}

type Conversation struct {
	ID                 string     `json:"id"`
	MatchID            string     `json:"match_id"`
	EmployerID         string     `json:"employer_id"`
	SeekerID           string     `json:"seeker_id"`
	PeerID             string     `json:"peer_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastMessageID      string     `json:"last_message_id,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastSenderID       string     `json:"last_sender_id,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	Closed             bool       `json:"closed,omitempty"`
}

type ConversationList struct {
	Items []Conversation `json:"items"`
	Total int            `json:"total"`
}

type ReadReceipt struct {
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	MessageIDs     []string  `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
}

type Attachment struct {
	FileRef     string `json:"file_ref"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func MapMessage(m chat.Message) Message {
	return Message{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Kind:           string(m.Kind),
		FileRef:        m.FileRef,
		Status:         string(m.Status),
		ClientID:       m.ClientID,
		CreatedAt:      m.CreatedAt,
	}
}

// Domain converts the wire form back into a domain message.
func (m Message) Domain() chat.Message {
	kind := chat.Kind(m.Kind)
	if kind == "" {
		kind = chat.KindText
	}
	status := chat.Status(m.Status)
	if status == "" {
		status = chat.StatusSent
	}
	return chat.Message{
		ID:             chat.MessageID(m.ID),
		ConversationID: chat.ConversationID(m.ConversationID),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Kind:           kind,
		FileRef:        m.FileRef,
		Status:         status,
		ClientID:       m.ClientID,
		CreatedAt:      m.CreatedAt,
	}
}

// MapConversation builds the view of conv for viewerID.
func MapConversation(conv *chat.Conversation, viewerID string, unread int) Conversation {
	if conv == nil {
		return Conversation{}
	}
	out := Conversation{
		ID:                 string(conv.ID),
		MatchID:            conv.MatchID,
		EmployerID:         conv.EmployerID,
		SeekerID:           conv.SeekerID,
		CreatedAt:          conv.CreatedAt,
		LastMessageID:      string(conv.LastMessageID),
		LastMessagePreview: conv.LastMessagePreview,
		LastSenderID:       conv.LastSenderID,
		UnreadCount:        unread,
		Closed:             conv.Closed,
	}
	if peer, err := conv.Peer(viewerID); err == nil {
		out.PeerID = peer
	}
	if !conv.LastMessageAt.IsZero() {
		at := conv.LastMessageAt
		out.LastMessageAt = &at
	}
	return out
}

// Domain rebuilds a conversation aggregate from its wire form.
func (c Conversation) Domain() *chat.Conversation {
	conv := &chat.Conversation{
		ID:                 chat.ConversationID(c.ID),
		MatchID:            c.MatchID,
		EmployerID:         c.EmployerID,
		SeekerID:           c.SeekerID,
		CreatedAt:          c.CreatedAt,
		LastMessageID:      chat.MessageID(c.LastMessageID),
		LastMessagePreview: c.LastMessagePreview,
		LastSenderID:       c.LastSenderID,
		Closed:             c.Closed,
	}
	if c.LastMessageAt != nil {
		conv.LastMessageAt = *c.LastMessageAt
	}
	return conv
}

func MessageIDs(ids []chat.MessageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
