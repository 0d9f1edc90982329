package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"kindbossing/internal/domain/shared/events"
)

var (
	ErrApplicationNotFound = errors.New("matching: application not found")
	ErrAlreadyDecided      = errors.New("matching: application already decided")
	ErrNotJobOwner         = errors.New("matching: only the job owner can decide")
	ErrInvalidDecision     = errors.New("matching: invalid decision")
	ErrNotMatched          = errors.New("matching: application is not approved")
)

type ApplicationID string

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusSkipped  Status = "skipped"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionSkip    Decision = "skip"
)

func ParseDecision(raw string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(raw))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionSkip:
		return DecisionSkip, nil
	default:
		return "", ErrInvalidDecision
	}
}

// Application is a seeker's application to an employer's job, browsed as a
// candidate card by the employer.
type Application struct {
	ID            ApplicationID
	JobID         string
	EmployerID    string
	ApplicantID   string
	ApplicantName string
	Headline      string
	Status        Status
	AppliedAt     time.Time
	DecidedAt     time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ApplicationID) (*Application, error)
	Save(ctx context.Context, app *Application) error
	// ListPending returns pending applications for a job ordered by applied-at.
	ListPending(ctx context.Context, jobID string, limit, offset int) ([]*Application, error)
}

type CreateParams struct {
	ID            ApplicationID
	JobID         string
	EmployerID    string
	ApplicantID   string
	ApplicantName string
	Headline      string
	AppliedAt     time.Time
}

func NewApplication(params CreateParams) (*Application, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("matching: application id is required")
	}
	if strings.TrimSpace(params.JobID) == "" {
		return nil, errors.New("matching: job id is required")
	}
	if strings.TrimSpace(params.EmployerID) == "" || strings.TrimSpace(params.ApplicantID) == "" {
		return nil, errors.New("matching: employer and applicant are required")
	}
	return &Application{
		ID:            params.ID,
		JobID:         strings.TrimSpace(params.JobID),
		EmployerID:    strings.TrimSpace(params.EmployerID),
		ApplicantID:   strings.TrimSpace(params.ApplicantID),
		ApplicantName: strings.TrimSpace(params.ApplicantName),
		Headline:      strings.TrimSpace(params.Headline),
		Status:        StatusPending,
		AppliedAt:     params.AppliedAt.UTC(),
	}, nil
}

// Decide moves a pending application to approved or skipped exactly once.
func (a *Application) Decide(decision Decision, by string, now time.Time) error {
	if by != a.EmployerID {
		return ErrNotJobOwner
	}
	if a.Status != StatusPending {
		return ErrAlreadyDecided
	}
	now = now.UTC()
	switch decision {
	case DecisionApprove:
		a.Status = StatusApproved
		a.DecidedAt = now
		a.Record(ApplicationApproved{
			ApplicationID: a.ID,
			JobID:         a.JobID,
			EmployerID:    a.EmployerID,
			ApplicantID:   a.ApplicantID,
			At:            now,
		})
	case DecisionSkip:
		a.Status = StatusSkipped
		a.DecidedAt = now
		a.Record(ApplicationSkipped{ApplicationID: a.ID, JobID: a.JobID, At: now})
	default:
		return ErrInvalidDecision
	}
	return nil
}

// IsMatch reports whether the pair may chat about this application.
func (a *Application) IsMatch(userA, userB string) bool {
	if a.Status != StatusApproved {
		return false
	}
	return (userA == a.EmployerID && userB == a.ApplicantID) || (userA == a.ApplicantID && userB == a.EmployerID)
}
