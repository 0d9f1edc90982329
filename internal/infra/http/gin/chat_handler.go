package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kindbossing/internal/infra/messaging"
)

type ChatHTTP interface {
	ListConversations(c *gin.Context)
	OpenConversation(c *gin.Context)
	GetConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

// ChatHandler bridges HTTP with the messaging service, local or remote.
type ChatHandler struct {
	Messaging messaging.Service
	Logger    *slog.Logger
}

func (h ChatHandler) ListConversations(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	list, err := h.Messaging.ListConversations(c.Request.Context(), messaging.ListConversationsRequest{
		UserID: principal.ID,
		Limit:  parsePositiveIntStrict(c.Query("limit"), 20),
		Offset: parseOffset(c.Query("offset")),
	})
	if err != nil {
		respondError(c, h.Logger, err, "list conversations", "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, list)
}

// OpenConversation returns the conversation of a match, creating it on the
// first call.
func (h ChatHandler) OpenConversation(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req struct {
		MatchID string `json:"match_id"`
		PeerID  string `json:"peer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	conv, err := h.Messaging.OpenConversation(c.Request.Context(), messaging.OpenConversationRequest{
		UserID:  principal.ID,
		MatchID: strings.TrimSpace(req.MatchID),
		PeerID:  strings.TrimSpace(req.PeerID),
	})
	if err != nil {
		respondError(c, h.Logger, err, "open conversation", "match_id", req.MatchID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	conv, err := h.Messaging.GetConversation(c.Request.Context(), messaging.GetConversationRequest{
		ViewerID:       principal.ID,
		ConversationID: conversationID,
	})
	if err != nil {
		respondError(c, h.Logger, err, "get conversation", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	page, err := h.Messaging.ListMessages(c.Request.Context(), messaging.ListMessagesRequest{
		ViewerID:       principal.ID,
		ConversationID: conversationID,
		Limit:          parsePositiveIntStrict(c.Query("limit"), 20),
		Offset:         parseOffset(c.Query("offset")),
	})
	if err != nil {
		respondError(c, h.Logger, err, "list messages", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	var req struct {
		ClientID string `json:"client_id"`
		Content  string `json:"content"`
		Kind     string `json:"kind"`
		FileRef  string `json:"file_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	msg, err := h.Messaging.SendMessage(c.Request.Context(), messaging.SendMessageRequest{
		SenderID:       principal.ID,
		ConversationID: conversationID,
		Content:        req.Content,
		Kind:           req.Kind,
		FileRef:        req.FileRef,
		ClientID:       clientID,
	})
	if err != nil {
		respondError(c, h.Logger, err, "send message", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	receipt, err := h.Messaging.MarkRead(c.Request.Context(), messaging.MarkReadRequest{
		ReaderID:       principal.ID,
		ConversationID: conversationID,
	})
	if err != nil {
		respondError(c, h.Logger, err, "mark read", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

var _ ChatHTTP = ChatHandler{}
