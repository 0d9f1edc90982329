package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/policies"
	"kindbossing/internal/domain/chat"
)

// Reactor fans committed chat events out to conversation rooms.
type Reactor struct {
	Hub *Hub
}

func (r Reactor) Name() string { return "realtime" }

func (r Reactor) OnEvent(_ context.Context, ev outbox.EventRecord) error {
	switch ev.Name {
	case chat.MessageSent{}.EventName():
		var payload chat.MessageSent
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Name, err)
		}
		f, err := dto.NewFrame(dto.FrameMessageNew, string(payload.ConversationID), dto.MapMessage(payload.Message()))
		if err != nil {
			return err
		}
		r.Hub.PublishToConversation(string(payload.ConversationID), f, nil)
	case chat.ConversationRead{}.EventName():
		var payload chat.ConversationRead
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Name, err)
		}
		f, err := dto.NewFrame(dto.FrameMessageRead, string(payload.ConversationID), dto.ReadReceipt{
			ConversationID: string(payload.ConversationID),
			ReaderID:       payload.ReaderID,
			MessageIDs:     dto.MessageIDs(payload.MessageIDs),
			ReadAt:         payload.At,
		})
		if err != nil {
			return err
		}
		r.Hub.PublishToConversation(string(payload.ConversationID), f, nil)
	}
	return nil
}

var (
	_ policies.Reactor  = Reactor{}
	_ policies.Notifier = (*Hub)(nil)
)
