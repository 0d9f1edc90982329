package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	"nhooyr.io/websocket"

	"kindbossing/internal/app/middleware"
	"kindbossing/internal/infra/realtime"
)

// RealtimeHandler upgrades to a websocket. It is mounted next to the gin
// engine rather than on it: gin's writer counts the 101 as written and then
// refuses the hijack. Browsers cannot set headers on the handshake, so the
// token may come in the query string.
type RealtimeHandler struct {
	Hub            *realtime.Hub
	Auth           Authenticator
	OriginPatterns []string
	Logger         *slog.Logger
}

func (h RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	actor, err := h.Auth.Verify(token)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "auth required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket accept failed", "error", err, "user_id", actor.ID)
		}
		return
	}
	ctx := middleware.WithActor(r.Context(), actor)
	h.Hub.Serve(ctx, actor.ID, conn)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

var _ http.Handler = RealtimeHandler{}
