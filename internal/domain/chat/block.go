package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrSelfBlock = errors.New("chat: cannot block yourself")

// Block means BlockerID no longer receives messages from BlockedID.
type Block struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

func NewBlock(blockerID, blockedID string, now time.Time) (Block, error) {
	blockerID = strings.TrimSpace(blockerID)
	blockedID = strings.TrimSpace(blockedID)
	if blockerID == "" || blockedID == "" {
		return Block{}, errors.New("chat: blocker and blocked ids are required")
	}
	if blockerID == blockedID {
		return Block{}, ErrSelfBlock
	}
	return Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: now.UTC()}, nil
}

type BlockRepository interface {
	Exists(ctx context.Context, blockerID, blockedID string) (bool, error)
	Save(ctx context.Context, block Block) error
	Delete(ctx context.Context, blockerID, blockedID string) error
}
