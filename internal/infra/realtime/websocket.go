package realtime

import (
	"context"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"kindbossing/internal/app/dto"
)

// WebsocketTransport adapts a websocket connection to Transport.
type WebsocketTransport struct {
	Conn *websocket.Conn
}

func (t WebsocketTransport) Write(ctx context.Context, f dto.Frame) error {
	return wsjson.Write(ctx, t.Conn, f)
}

func (t WebsocketTransport) Ping(ctx context.Context) error {
	return t.Conn.Ping(ctx)
}

func (t WebsocketTransport) Close(reason string) error {
	return t.Conn.Close(websocket.StatusNormalClosure, reason)
}

// Serve reads frames from conn until it closes and hands them to the hub.
func (h *Hub) Serve(ctx context.Context, userID string, conn *websocket.Conn) {
	c := h.AddClient(userID, WebsocketTransport{Conn: conn})
	defer h.RemoveClient(c)

	for {
		var f dto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug("realtime read ended", "user_id", userID, "error", err)
			}
			return
		}
		h.HandleFrame(ctx, c, f)
	}
}
