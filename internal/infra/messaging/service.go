// Package messaging carries the chat use cases between the HTTP API and
// the messaging service. Local runs them in process; Client runs them over
// gRPC against Server.
package messaging

import (
	"context"

	"kindbossing/internal/app/dto"
)

type Service interface {
	OpenConversation(ctx context.Context, req OpenConversationRequest) (dto.Conversation, error)
	GetConversation(ctx context.Context, req GetConversationRequest) (dto.Conversation, error)
	ListConversations(ctx context.Context, req ListConversationsRequest) (dto.ConversationList, error)
	ListMessages(ctx context.Context, req ListMessagesRequest) (dto.MessageList, error)
	SendMessage(ctx context.Context, req SendMessageRequest) (dto.Message, error)
	MarkRead(ctx context.Context, req MarkReadRequest) (dto.ReadReceipt, error)
}

type OpenConversationRequest struct {
	UserID  string `json:"user_id"`
	MatchID string `json:"match_id"`
	PeerID  string `json:"peer_id"`
}

type GetConversationRequest struct {
	ViewerID       string `json:"viewer_id"`
	ConversationID string `json:"conversation_id"`
}

type ListConversationsRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type ListMessagesRequest struct {
	ViewerID       string `json:"viewer_id"`
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}

type SendMessageRequest struct {
	SenderID       string `json:"sender_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Kind           string `json:"kind,omitempty"`
	FileRef        string `json:"file_ref,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
}

type MarkReadRequest struct {
	ReaderID       string `json:"reader_id"`
	ConversationID string `json:"conversation_id"`
}
