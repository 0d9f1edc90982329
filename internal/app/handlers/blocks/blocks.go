package blocks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/chat"
)

const (
	blockUserKey   = "blocks.block"
	unblockUserKey = "blocks.unblock"
	isBlockedKey   = "blocks.status"
)

var ErrUserRequired = errors.New("blocks: user id is required")

// BlockUserCommand stops BlockedID from reaching BlockerID and closes their
// conversations.
type BlockUserCommand struct {
	BlockerID string
	BlockedID string
	Now       time.Time
}

func (c BlockUserCommand) Key() string { return blockUserKey }

func (c BlockUserCommand) ActorID() string { return c.BlockerID }

func (c BlockUserCommand) Validate() error {
	if strings.TrimSpace(c.BlockedID) == "" {
		return ErrUserRequired
	}
	if c.BlockerID == c.BlockedID {
		return chat.ErrSelfBlock
	}
	return nil
}

type BlockUserHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *BlockUserHandler) Handle(ctx context.Context, cmd BlockUserCommand) (dto.BlockStatus, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	block, err := chat.NewBlock(cmd.BlockerID, cmd.BlockedID, now)
	if err != nil {
		return dto.BlockStatus{}, err
	}

	closed := 0
	err = support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		if err := unit.Blocks().Save(ctx, block); err != nil {
			return err
		}
		convs, err := unit.Conversations().ListBetween(ctx, block.BlockerID, block.BlockedID)
		if err != nil {
			return err
		}
		for _, conv := range convs {
			if conv.Closed {
				continue
			}
			conv.Close(block.BlockerID, now)
			if err := unit.Conversations().Save(ctx, conv); err != nil {
				return err
			}
			if err := outbox.RecordDomainEvents(ctx, h.Outbox, encoderOr(h.Encoder), conv.DrainEvents()); err != nil {
				return err
			}
			closed++
		}
		return nil
	})
	if err != nil {
		return dto.BlockStatus{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("user blocked", "blocker_id", block.BlockerID, "blocked_id", block.BlockedID, "closed_conversations", closed)
	}
	return dto.BlockStatus{UserID: block.BlockedID, Blocked: true}, nil
}

type UnblockUserCommand struct {
	BlockerID string
	BlockedID string
}

func (c UnblockUserCommand) Key() string { return unblockUserKey }

func (c UnblockUserCommand) ActorID() string { return c.BlockerID }

func (c UnblockUserCommand) Validate() error {
	if strings.TrimSpace(c.BlockedID) == "" {
		return ErrUserRequired
	}
	return nil
}

type UnblockUserHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

// Handle removes the block and reopens the pair's conversations unless the
// other side still blocks.
func (h *UnblockUserHandler) Handle(ctx context.Context, cmd UnblockUserCommand) (dto.BlockStatus, error) {
	err := support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		if err := unit.Blocks().Delete(ctx, cmd.BlockerID, cmd.BlockedID); err != nil {
			return err
		}
		reverse, err := unit.Blocks().Exists(ctx, cmd.BlockedID, cmd.BlockerID)
		if err != nil {
			return err
		}
		if reverse {
			return nil
		}
		convs, err := unit.Conversations().ListBetween(ctx, cmd.BlockerID, cmd.BlockedID)
		if err != nil {
			return err
		}
		for _, conv := range convs {
			if !conv.Closed {
				continue
			}
			conv.Reopen()
			if err := unit.Conversations().Save(ctx, conv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dto.BlockStatus{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("user unblocked", "blocker_id", cmd.BlockerID, "blocked_id", cmd.BlockedID)
	}
	return dto.BlockStatus{UserID: cmd.BlockedID, Blocked: false}, nil
}

// IsBlockedQuery reports whether OtherUserID blocked UserID, which is what a
// sender checks before writing to OtherUserID.
type IsBlockedQuery struct {
	UserID      string
	OtherUserID string
}

func (q IsBlockedQuery) Key() string { return isBlockedKey }

func (q IsBlockedQuery) ActorID() string { return q.UserID }

type IsBlockedHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *IsBlockedHandler) Handle(ctx context.Context, q IsBlockedQuery) (dto.BlockStatus, error) {
	if strings.TrimSpace(q.OtherUserID) == "" {
		return dto.BlockStatus{}, ErrUserRequired
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BlockStatus{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	blocked, err := unit.Blocks().Exists(execCtx, q.OtherUserID, q.UserID)
	if err != nil {
		return dto.BlockStatus{}, err
	}
	return dto.BlockStatus{UserID: q.OtherUserID, Blocked: blocked}, nil
}

func encoderOr(enc outbox.EventEncoder) outbox.EventEncoder {
	if enc != nil {
		return enc
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[BlockUserCommand, dto.BlockStatus] = (*BlockUserHandler)(nil)
var _ commands.Handler[UnblockUserCommand, dto.BlockStatus] = (*UnblockUserHandler)(nil)
var _ queries.Handler[IsBlockedQuery, dto.BlockStatus] = (*IsBlockedHandler)(nil)
