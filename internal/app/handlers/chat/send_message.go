package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	domainchat "kindbossing/internal/domain/chat"
)

const sendMessageKey = "chat.message.send"

// SendMessageCommand writes one message. ClientID is the sender's provisional
// id; repeating a command with the same ClientID returns the first result.
type SendMessageCommand struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           string
	FileRef        string
	ClientID       string
	Now            time.Time
}

func (c SendMessageCommand) Key() string { return sendMessageKey }

func (c SendMessageCommand) ActorID() string { return c.SenderID }

func (c SendMessageCommand) IdempotencyKey() string {
	if strings.TrimSpace(c.ClientID) == "" {
		return ""
	}
	return c.ConversationID + ":" + c.SenderID + ":" + c.ClientID
}

func (c SendMessageCommand) ResultPrototype() any { return &dto.Message{} }

func (c SendMessageCommand) Validate() error {
	if strings.TrimSpace(c.ConversationID) == "" {
		return ErrConversationRequired
	}
	if domainchat.ConversationID(c.ConversationID).IsTemporary() {
		return domainchat.ErrTemporaryID
	}
	if strings.TrimSpace(c.Content) == "" {
		return domainchat.ErrEmptyContent
	}
	if _, err := domainchat.ParseKind(c.Kind); err != nil {
		return err
	}
	return nil
}

type SendMessageHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (dto.Message, error) {
	kind, err := domainchat.ParseKind(cmd.Kind)
	if err != nil {
		return dto.Message{}, err
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result dto.Message
	err = support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		conv, err := unit.Conversations().ByID(ctx, domainchat.ConversationID(cmd.ConversationID))
		if err != nil {
			return err
		}
		recipient, err := conv.Peer(cmd.SenderID)
		if err != nil {
			return err
		}
		blocked, err := unit.Blocks().Exists(ctx, recipient, cmd.SenderID)
		if err != nil {
			return err
		}
		if blocked {
			return domainchat.ErrRecipientBlocked
		}

		if cmd.ClientID != "" {
			existing, err := unit.Messages().ByClientID(ctx, conv.ID, cmd.SenderID, cmd.ClientID)
			if err == nil {
				result = dto.MapMessage(existing)
				return nil
			}
			if !errors.Is(err, domainchat.ErrMessageNotFound) {
				return err
			}
		}

		msg, err := conv.Post(domainchat.WriteRequest{
			ConversationID: conv.ID,
			SenderID:       cmd.SenderID,
			Content:        cmd.Content,
			Kind:           kind,
			FileRef:        cmd.FileRef,
			ClientID:       cmd.ClientID,
		}, domainchat.NewMessageID(), now)
		if err != nil {
			return err
		}
		if err := unit.Messages().Save(ctx, msg); err != nil {
			return err
		}
		if err := unit.Conversations().Save(ctx, conv); err != nil {
			return err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), conv.DrainEvents()); err != nil {
			return err
		}
		result = dto.MapMessage(msg)
		return nil
	})
	if err != nil {
		return dto.Message{}, err
	}

	if h.Logger != nil {
		h.Logger.Info("message sent", "conversation_id", cmd.ConversationID, "message_id", result.ID, "sender_id", cmd.SenderID)
	}
	return result, nil
}

func (h *SendMessageHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[SendMessageCommand, dto.Message] = (*SendMessageHandler)(nil)
var _ middleware.IdempotentCommand = SendMessageCommand{}
