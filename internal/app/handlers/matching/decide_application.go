package matching

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
	"kindbossing/internal/domain/chat"
	domainmatching "kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/user"
)

const decideApplicationKey = "matching.application.decide"

// DecideApplicationCommand approves or skips one pending application. Approve
// and skip are separate decisions; a second decision on the same application
// fails with ErrAlreadyDecided.
type DecideApplicationCommand struct {
	ApplicationID string
	EmployerID    string
	Decision      string
	Now           time.Time
}

func (c DecideApplicationCommand) Key() string { return decideApplicationKey }

func (c DecideApplicationCommand) ActorID() string { return c.EmployerID }

func (c DecideApplicationCommand) AllowedRoles() []user.Role {
	return []user.Role{user.RoleEmployer}
}

func (c DecideApplicationCommand) Validate() error {
	if strings.TrimSpace(c.ApplicationID) == "" {
		return ErrApplicationRequired
	}
	_, err := domainmatching.ParseDecision(c.Decision)
	return err
}

type DecideApplicationHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *DecideApplicationHandler) Handle(ctx context.Context, cmd DecideApplicationCommand) (dto.Decision, error) {
	decision, err := domainmatching.ParseDecision(cmd.Decision)
	if err != nil {
		return dto.Decision{}, err
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result dto.Decision
	err = support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		app, err := unit.Applications().ByID(ctx, domainmatching.ApplicationID(cmd.ApplicationID))
		if err != nil {
			return err
		}
		if err := app.Decide(decision, cmd.EmployerID, now); err != nil {
			return err
		}
		if err := unit.Applications().Save(ctx, app); err != nil {
			return err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), app.DrainEvents()); err != nil {
			return err
		}
		result = dto.Decision{
			ApplicationID: string(app.ID),
			Status:        string(app.Status),
			DecidedAt:     app.DecidedAt,
		}
		if app.Status == domainmatching.StatusApproved {
			// the conversation is created by the first message
			result.ConversationID = string(chat.TemporaryConversationID(string(app.ID)))
		}
		return nil
	})
	if err != nil {
		return dto.Decision{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("application decided", "application_id", cmd.ApplicationID, "decision", decision, "employer_id", cmd.EmployerID)
	}
	return result, nil
}

func (h *DecideApplicationHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[DecideApplicationCommand, dto.Decision] = (*DecideApplicationHandler)(nil)
