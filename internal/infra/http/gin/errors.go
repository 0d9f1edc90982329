package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	blocksapp "kindbossing/internal/app/handlers/blocks"
	chatapp "kindbossing/internal/app/handlers/chat"
	matchingapp "kindbossing/internal/app/handlers/matching"
	"kindbossing/internal/app/middleware"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
	mongostore "kindbossing/internal/infra/db/mongo"
)

type errorResponse struct {
	status int
	code   string
}

// classify maps an application error to its HTTP response. The code is a
// stable string clients switch on.
func classify(err error) errorResponse {
	switch {
	case errors.Is(err, chat.ErrRecipientBlocked):
		return errorResponse{http.StatusForbidden, "blocked"}
	case errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, matching.ErrNotMatched),
		errors.Is(err, matching.ErrNotJobOwner),
		errors.Is(err, middleware.ErrForbidden):
		return errorResponse{http.StatusForbidden, "forbidden"}
	case errors.Is(err, middleware.ErrUnauthenticated):
		return errorResponse{http.StatusUnauthorized, "auth required"}
	case errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, matching.ErrApplicationNotFound),
		errors.Is(err, notification.ErrNotFound):
		return errorResponse{http.StatusNotFound, "not found"}
	case errors.Is(err, chat.ErrConversationClosed):
		return errorResponse{http.StatusConflict, "conversation closed"}
	case errors.Is(err, matching.ErrAlreadyDecided):
		return errorResponse{http.StatusConflict, "already decided"}
	case errors.Is(err, chat.ErrConversationExists):
		return errorResponse{http.StatusConflict, "conversation exists"}
	case errors.Is(err, mongostore.ErrConcurrentUpdate):
		return errorResponse{http.StatusConflict, "concurrent update"}
	case errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrInvalidKind),
		errors.Is(err, chat.ErrFileRefRequired),
		errors.Is(err, chat.ErrTemporaryID),
		errors.Is(err, chat.ErrMatchRequired),
		errors.Is(err, chat.ErrSelfConversation),
		errors.Is(err, chat.ErrParticipantsRequired),
		errors.Is(err, chat.ErrSelfBlock),
		errors.Is(err, chatapp.ErrConversationRequired),
		errors.Is(err, matchingapp.ErrApplicationRequired),
		errors.Is(err, matchingapp.ErrJobRequired),
		errors.Is(err, matching.ErrInvalidDecision),
		errors.Is(err, blocksapp.ErrUserRequired):
		return errorResponse{http.StatusBadRequest, err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse{http.StatusServiceUnavailable, "upstream timeout"}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return errorResponse{http.StatusServiceUnavailable, "messaging unavailable"}
		}
	}
	return errorResponse{http.StatusInternalServerError, "internal error"}
}

// respondError writes the mapped response. Server faults are logged at
// Error, client faults at Debug.
func respondError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	resp := classify(err)
	if logger != nil {
		args := append([]any{"action", action, "error", err}, attrs...)
		if resp.status >= http.StatusInternalServerError {
			logger.Error("request failed", args...)
		} else {
			logger.Debug("request rejected", args...)
		}
	}
	c.JSON(resp.status, gin.H{"error": resp.code})
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func parseOffset(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}
