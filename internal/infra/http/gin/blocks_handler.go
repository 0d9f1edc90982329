package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	blocksapp "kindbossing/internal/app/handlers/blocks"
	"kindbossing/internal/app/queries"
)

type BlocksHTTP interface {
	Status(c *gin.Context)
	Block(c *gin.Context)
	Unblock(c *gin.Context)
}

type BlocksHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

// Status reports whether :user_id has blocked the caller.
func (h BlocksHandler) Status(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	q := blocksapp.IsBlockedQuery{UserID: principal.ID, OtherUserID: strings.TrimSpace(c.Param("user_id"))}
	result, err := queries.Ask[blocksapp.IsBlockedQuery, dto.BlockStatus](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err, "block status", "user_id", principal.ID, "other_user_id", q.OtherUserID)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BlocksHandler) Block(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := blocksapp.BlockUserCommand{BlockerID: principal.ID, BlockedID: strings.TrimSpace(req.UserID)}
	result, err := commands.Dispatch[blocksapp.BlockUserCommand, dto.BlockStatus](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "block user", "user_id", principal.ID, "blocked_id", cmd.BlockedID)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BlocksHandler) Unblock(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	cmd := blocksapp.UnblockUserCommand{BlockerID: principal.ID, BlockedID: strings.TrimSpace(c.Param("user_id"))}
	result, err := commands.Dispatch[blocksapp.UnblockUserCommand, dto.BlockStatus](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "unblock user", "user_id", principal.ID, "blocked_id", cmd.BlockedID)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ BlocksHTTP = BlocksHandler{}
