package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	notificationsapp "kindbossing/internal/app/handlers/notifications"
	"kindbossing/internal/app/queries"
)

type NotificationsHTTP interface {
	List(c *gin.Context)
	MarkRead(c *gin.Context)
}

type NotificationsHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h NotificationsHandler) List(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	q := notificationsapp.ListNotificationsQuery{
		UserID: principal.ID,
		Limit:  parsePositiveIntStrict(c.Query("limit"), 20),
		Offset: parseOffset(c.Query("offset")),
	}
	list, err := queries.Ask[notificationsapp.ListNotificationsQuery, dto.NotificationList](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err, "list notifications", "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h NotificationsHandler) MarkRead(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	cmd := notificationsapp.MarkNotificationReadCommand{UserID: principal.ID, NotificationID: strings.TrimSpace(c.Param("id"))}
	n, err := commands.Dispatch[notificationsapp.MarkNotificationReadCommand, dto.Notification](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "mark notification read", "notification_id", cmd.NotificationID, "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, n)
}

var _ NotificationsHTTP = NotificationsHandler{}
