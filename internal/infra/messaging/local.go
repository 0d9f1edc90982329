package messaging

import (
	"context"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	chatapp "kindbossing/internal/app/handlers/chat"
	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/queries"
)

// Local dispatches to the application buses of this process. The actor in
// ctx is kept when present; otherwise the request's user becomes the actor,
// which is how Server hands trusted calls in.
type Local struct {
	Commands commands.Bus
	Queries  queries.Bus
}

func (l Local) OpenConversation(ctx context.Context, req OpenConversationRequest) (dto.Conversation, error) {
	cmd := chatapp.OpenConversationCommand{MatchID: req.MatchID, UserID: req.UserID, PeerID: req.PeerID}
	return commands.Dispatch[chatapp.OpenConversationCommand, dto.Conversation](withActor(ctx, req.UserID), l.Commands, cmd)
}

func (l Local) GetConversation(ctx context.Context, req GetConversationRequest) (dto.Conversation, error) {
	q := chatapp.GetConversationQuery{ConversationID: req.ConversationID, ViewerID: req.ViewerID}
	return queries.Ask[chatapp.GetConversationQuery, dto.Conversation](withActor(ctx, req.ViewerID), l.Queries, q)
}

func (l Local) ListConversations(ctx context.Context, req ListConversationsRequest) (dto.ConversationList, error) {
	q := chatapp.ListConversationsQuery{UserID: req.UserID, Limit: req.Limit, Offset: req.Offset}
	return queries.Ask[chatapp.ListConversationsQuery, dto.ConversationList](withActor(ctx, req.UserID), l.Queries, q)
}

func (l Local) ListMessages(ctx context.Context, req ListMessagesRequest) (dto.MessageList, error) {
	q := chatapp.ListMessagesQuery{ConversationID: req.ConversationID, ViewerID: req.ViewerID, Limit: req.Limit, Offset: req.Offset}
	return queries.Ask[chatapp.ListMessagesQuery, dto.MessageList](withActor(ctx, req.ViewerID), l.Queries, q)
}

func (l Local) SendMessage(ctx context.Context, req SendMessageRequest) (dto.Message, error) {
	cmd := chatapp.SendMessageCommand{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Kind:           req.Kind,
		FileRef:        req.FileRef,
		ClientID:       req.ClientID,
	}
	return commands.Dispatch[chatapp.SendMessageCommand, dto.Message](withActor(ctx, req.SenderID), l.Commands, cmd)
}

func (l Local) MarkRead(ctx context.Context, req MarkReadRequest) (dto.ReadReceipt, error) {
	cmd := chatapp.MarkReadCommand{ConversationID: req.ConversationID, ReaderID: req.ReaderID}
	return commands.Dispatch[chatapp.MarkReadCommand, dto.ReadReceipt](withActor(ctx, req.ReaderID), l.Commands, cmd)
}

func withActor(ctx context.Context, userID string) context.Context {
	if _, ok := middleware.ActorFromContext(ctx); ok {
		return ctx
	}
	return middleware.WithActor(ctx, middleware.Actor{ID: userID})
}

var _ Service = Local{}
