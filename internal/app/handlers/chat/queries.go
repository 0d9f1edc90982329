package chat

import (
	"context"
	"log/slog"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	domainchat "kindbossing/internal/domain/chat"
)

const (
	listMessagesKey      = "chat.message.list"
	listConversationsKey = "chat.conversation.list"
	getConversationKey   = "chat.conversation.get"
)

// ListMessagesQuery pages through a conversation newest first.
type ListMessagesQuery struct {
	ConversationID string
	ViewerID       string
	Limit          int
	Offset         int
}

func (q ListMessagesQuery) Key() string { return listMessagesKey }

func (q ListMessagesQuery) ActorID() string { return q.ViewerID }

type ListMessagesHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListMessagesHandler) Handle(ctx context.Context, q ListMessagesQuery) (dto.MessageList, error) {
	limit, offset := support.NormalizePage(q.Limit, q.Offset, defaultPageSize, maxPageSize)

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.MessageList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	conv, err := unit.Conversations().ByID(execCtx, domainchat.ConversationID(q.ConversationID))
	if err != nil {
		return dto.MessageList{}, err
	}
	if !conv.HasParticipant(q.ViewerID) {
		return dto.MessageList{}, domainchat.ErrNotParticipant
	}

	// one extra row tells whether an older page exists
	msgs, err := unit.Messages().ListByConversation(execCtx, conv.ID, limit+1, offset)
	if err != nil {
		return dto.MessageList{}, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	items := make([]dto.Message, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, dto.MapMessage(m))
	}
	if h.Logger != nil {
		h.Logger.Debug("messages listed", "conversation_id", conv.ID, "count", len(items), "offset", offset)
	}
	return dto.MessageList{Items: items, Limit: limit, Offset: offset, HasMore: hasMore}, nil
}

// ListConversationsQuery lists the user's conversations by last activity.
type ListConversationsQuery struct {
	UserID string
	Limit  int
	Offset int
}

func (q ListConversationsQuery) Key() string { return listConversationsKey }

func (q ListConversationsQuery) ActorID() string { return q.UserID }

type ListConversationsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) (dto.ConversationList, error) {
	limit, offset := support.NormalizePage(q.Limit, q.Offset, defaultPageSize, maxPageSize)

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ConversationList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	all, err := unit.Conversations().ListByParticipant(execCtx, q.UserID)
	if err != nil {
		return dto.ConversationList{}, err
	}
	total := len(all)
	end := min(offset+limit, total)
	if offset > end {
		offset = end
	}

	items := make([]dto.Conversation, 0, end-offset)
	for _, conv := range all[offset:end] {
		unread, err := unit.Messages().CountUnread(execCtx, conv.ID, q.UserID, conv.LastReadAt(q.UserID))
		if err != nil {
			return dto.ConversationList{}, err
		}
		items = append(items, dto.MapConversation(conv, q.UserID, unread))
	}
	return dto.ConversationList{Items: items, Total: total}, nil
}

type GetConversationQuery struct {
	ConversationID string
	ViewerID       string
}

func (q GetConversationQuery) Key() string { return getConversationKey }

func (q GetConversationQuery) ActorID() string { return q.ViewerID }

type GetConversationHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetConversationHandler) Handle(ctx context.Context, q GetConversationQuery) (dto.Conversation, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Conversation{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	conv, err := unit.Conversations().ByID(execCtx, domainchat.ConversationID(q.ConversationID))
	if err != nil {
		return dto.Conversation{}, err
	}
	if !conv.HasParticipant(q.ViewerID) {
		return dto.Conversation{}, domainchat.ErrNotParticipant
	}
	unread, err := unit.Messages().CountUnread(execCtx, conv.ID, q.ViewerID, conv.LastReadAt(q.ViewerID))
	if err != nil {
		return dto.Conversation{}, err
	}
	return dto.MapConversation(conv, q.ViewerID, unread), nil
}

var _ queries.Handler[ListMessagesQuery, dto.MessageList] = (*ListMessagesHandler)(nil)
var _ queries.Handler[ListConversationsQuery, dto.ConversationList] = (*ListConversationsHandler)(nil)
var _ queries.Handler[GetConversationQuery, dto.Conversation] = (*GetConversationHandler)(nil)
