package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	domainchat "kindbossing/internal/domain/chat"
)

const markReadKey = "chat.conversation.read"

// MarkReadCommand flips the peer's messages to read for ReaderID.
type MarkReadCommand struct {
	ConversationID string
	ReaderID       string
	Now            time.Time
}

func (c MarkReadCommand) Key() string { return markReadKey }

func (c MarkReadCommand) ActorID() string { return c.ReaderID }

func (c MarkReadCommand) Validate() error {
	if strings.TrimSpace(c.ConversationID) == "" {
		return ErrConversationRequired
	}
	return nil
}

type MarkReadHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) (dto.ReadReceipt, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	receipt := dto.ReadReceipt{ConversationID: cmd.ConversationID, ReaderID: cmd.ReaderID, MessageIDs: []string{}, ReadAt: now}

	err := support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		conv, err := unit.Conversations().ByID(ctx, domainchat.ConversationID(cmd.ConversationID))
		if err != nil {
			return err
		}
		if !conv.HasParticipant(cmd.ReaderID) {
			return domainchat.ErrNotParticipant
		}
		ids, err := unit.Messages().MarkRead(ctx, conv.ID, cmd.ReaderID, now)
		if err != nil {
			return err
		}
		if err := conv.MarkRead(cmd.ReaderID, ids, now); err != nil {
			return err
		}
		if err := unit.Conversations().Save(ctx, conv); err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), conv.DrainEvents()); err != nil {
				return err
			}
		}
		conv.ClearEvents()
		receipt.MessageIDs = dto.MessageIDs(ids)
		return nil
	})
	if err != nil {
		return dto.ReadReceipt{}, err
	}
	if h.Logger != nil {
		h.Logger.Debug("conversation read", "conversation_id", cmd.ConversationID, "reader_id", cmd.ReaderID, "count", len(receipt.MessageIDs))
	}
	return receipt, nil
}

func (h *MarkReadHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[MarkReadCommand, dto.ReadReceipt] = (*MarkReadHandler)(nil)
