package matching

import (
	"context"
	"errors"
	"strings"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/user"
)

const listCandidatesKey = "matching.candidates.list"

var (
	ErrApplicationRequired = errors.New("matching: application id is required")
	ErrJobRequired         = errors.New("matching: job id is required")
)

// ListCandidatesQuery lists the pending applications of one of the
// employer's jobs, oldest first.
type ListCandidatesQuery struct {
	JobID      string
	EmployerID string
	Limit      int
	Offset     int
}

func (q ListCandidatesQuery) Key() string { return listCandidatesKey }

func (q ListCandidatesQuery) ActorID() string { return q.EmployerID }

func (q ListCandidatesQuery) AllowedRoles() []user.Role {
	return []user.Role{user.RoleEmployer}
}

type ListCandidatesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListCandidatesHandler) Handle(ctx context.Context, q ListCandidatesQuery) (dto.CandidateList, error) {
	if strings.TrimSpace(q.JobID) == "" {
		return dto.CandidateList{}, ErrJobRequired
	}
	limit, offset := support.NormalizePage(q.Limit, q.Offset, 10, 50)

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.CandidateList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	apps, err := unit.Applications().ListPending(execCtx, q.JobID, limit, offset)
	if err != nil {
		return dto.CandidateList{}, err
	}
	items := make([]dto.Candidate, 0, len(apps))
	for _, app := range apps {
		if app.EmployerID != q.EmployerID {
			continue
		}
		items = append(items, dto.MapCandidate(app))
	}
	return dto.CandidateList{Items: items, Limit: limit, Offset: offset}, nil
}

var _ queries.Handler[ListCandidatesQuery, dto.CandidateList] = (*ListCandidatesHandler)(nil)
