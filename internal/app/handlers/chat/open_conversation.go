package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	domainchat "kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

const openConversationKey = "chat.conversation.open"

// OpenConversationCommand returns the conversation of a match, creating it on
// first use. Only the two matched users may open it.
type OpenConversationCommand struct {
	MatchID string
	UserID  string
	PeerID  string
	Now     time.Time
}

func (c OpenConversationCommand) Key() string { return openConversationKey }

func (c OpenConversationCommand) ActorID() string { return c.UserID }

func (c OpenConversationCommand) Validate() error {
	if strings.TrimSpace(c.MatchID) == "" {
		return domainchat.ErrMatchRequired
	}
	if strings.TrimSpace(c.PeerID) == "" {
		return domainchat.ErrParticipantsRequired
	}
	if c.UserID == c.PeerID {
		return domainchat.ErrSelfConversation
	}
	return nil
}

type OpenConversationHandler struct {
	UoWFactory  uow.UoWFactory
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	IDGenerator func() string
	Logger      *slog.Logger
}

func (h *OpenConversationHandler) Handle(ctx context.Context, cmd OpenConversationCommand) (dto.Conversation, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	matchID := strings.TrimSpace(cmd.MatchID)

	var (
		result  dto.Conversation
		created bool
	)
	err := support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		existing, err := unit.Conversations().ByMatch(ctx, matchID)
		switch {
		case err == nil:
			if !existing.HasParticipant(cmd.UserID) || !existing.HasParticipant(cmd.PeerID) {
				return domainchat.ErrNotParticipant
			}
			result = dto.MapConversation(existing, cmd.UserID, 0)
			return nil
		case !errors.Is(err, domainchat.ErrConversationNotFound):
			return err
		}

		app, err := unit.Applications().ByID(ctx, matching.ApplicationID(matchID))
		if err != nil {
			return err
		}
		if !app.IsMatch(cmd.UserID, cmd.PeerID) {
			return matching.ErrNotMatched
		}
		conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{
			ID:         domainchat.ConversationID(h.newID()),
			MatchID:    matchID,
			EmployerID: app.EmployerID,
			SeekerID:   app.ApplicantID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := unit.Conversations().Save(ctx, conv); err != nil {
			if errors.Is(err, domainchat.ErrConversationExists) {
				// lost a race with the peer opening the same match
				winner, lookupErr := unit.Conversations().ByMatch(ctx, matchID)
				if lookupErr != nil {
					return lookupErr
				}
				result = dto.MapConversation(winner, cmd.UserID, 0)
				return nil
			}
			return err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), conv.DrainEvents()); err != nil {
			return err
		}
		created = true
		result = dto.MapConversation(conv, cmd.UserID, 0)
		return nil
	})
	if err != nil {
		return dto.Conversation{}, err
	}
	if created && h.Logger != nil {
		h.Logger.Info("conversation created", "conversation_id", result.ID, "match_id", matchID)
	}
	return result, nil
}

func (h *OpenConversationHandler) newID() string {
	if h.IDGenerator != nil {
		return h.IDGenerator()
	}
	return uuid.NewString()
}

func (h *OpenConversationHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[OpenConversationCommand, dto.Conversation] = (*OpenConversationHandler)(nil)
