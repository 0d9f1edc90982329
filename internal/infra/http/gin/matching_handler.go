package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	matchingapp "kindbossing/internal/app/handlers/matching"
	"kindbossing/internal/app/queries"
	domainmatching "kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/user"
)

type MatchingHTTP interface {
	Candidates(c *gin.Context)
	Approve(c *gin.Context)
	Skip(c *gin.Context)
}

type MatchingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h MatchingHandler) Candidates(c *gin.Context) {
	principal, ok := requireRole(c, user.RoleEmployer)
	if !ok {
		return
	}
	q := matchingapp.ListCandidatesQuery{
		JobID:      strings.TrimSpace(c.Param("id")),
		EmployerID: principal.ID,
		Limit:      parsePositiveIntStrict(c.Query("limit"), 10),
		Offset:     parseOffset(c.Query("offset")),
	}
	list, err := queries.Ask[matchingapp.ListCandidatesQuery, dto.CandidateList](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err, "list candidates", "job_id", q.JobID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h MatchingHandler) Approve(c *gin.Context) {
	h.decide(c, domainmatching.DecisionApprove)
}

func (h MatchingHandler) Skip(c *gin.Context) {
	h.decide(c, domainmatching.DecisionSkip)
}

func (h MatchingHandler) decide(c *gin.Context, decision domainmatching.Decision) {
	principal, ok := requireRole(c, user.RoleEmployer)
	if !ok {
		return
	}
	cmd := matchingapp.DecideApplicationCommand{
		ApplicationID: strings.TrimSpace(c.Param("id")),
		EmployerID:    principal.ID,
		Decision:      string(decision),
	}
	result, err := commands.Dispatch[matchingapp.DecideApplicationCommand, dto.Decision](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "decide application", "application_id", cmd.ApplicationID, "decision", decision)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ MatchingHTTP = MatchingHandler{}
