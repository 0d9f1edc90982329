package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/policies"
	"kindbossing/internal/infra/messaging"
)

type AttachmentsHTTP interface {
	Upload(c *gin.Context)
}

// AttachmentHandler stores a file for a conversation. The returned file ref
// goes into a file message's file_ref.
type AttachmentHandler struct {
	Uploader  policies.Uploader
	Messaging messaging.Service
	MaxBytes  int64
	Logger    *slog.Logger
}

func (h AttachmentHandler) Upload(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachments unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if _, err := h.Messaging.GetConversation(c.Request.Context(), messaging.GetConversationRequest{
		ViewerID:       principal.ID,
		ConversationID: conversationID,
	}); err != nil {
		respondError(c, h.Logger, err, "load conversation", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}

	if h.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := path.Join("conversations", conversationID, uuid.NewString()+"-"+name)
	ref, err := h.Uploader.Upload(c.Request.Context(), key, contentType, header.Size, file)
	if err != nil {
		respondError(c, h.Logger, err, "upload attachment", "conversation_id", conversationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.Attachment{
		FileRef:     ref,
		Name:        name,
		ContentType: contentType,
		Size:        header.Size,
	})
}

var _ AttachmentsHTTP = AttachmentHandler{}
