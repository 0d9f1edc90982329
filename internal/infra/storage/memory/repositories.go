package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
)

// Repositories hand out copies so a handler never mutates stored state
// outside Save.

type ConversationRepository struct {
	mu      sync.RWMutex
	items   map[chat.ConversationID]*chat.Conversation
	byMatch map[string]chat.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items:   make(map[chat.ConversationID]*chat.Conversation),
		byMatch: make(map[string]chat.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) ByMatch(ctx context.Context, matchID string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMatch[matchID]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return cloneConversation(r.items[id]), nil
}

// Save upserts conv. A second conversation for the same match is rejected.
func (r *ConversationRepository) Save(ctx context.Context, conv *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.byMatch[conv.MatchID]; ok && owner != conv.ID {
		return chat.ErrConversationExists
	}
	conv.Version++
	r.items[conv.ID] = cloneConversation(conv)
	r.byMatch[conv.MatchID] = conv.ID
	return nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	return r.filter(func(c *chat.Conversation) bool { return c.HasParticipant(userID) }), nil
}

func (r *ConversationRepository) ListBetween(ctx context.Context, a, b string) ([]*chat.Conversation, error) {
	return r.filter(func(c *chat.Conversation) bool { return c.HasParticipant(a) && c.HasParticipant(b) }), nil
}

func (r *ConversationRepository) filter(keep func(*chat.Conversation) bool) []*chat.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*chat.Conversation, 0)
	for _, conv := range r.items {
		if keep(conv) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if ai.Equal(aj) {
			return out[i].ID < out[j].ID
		}
		return ai.After(aj)
	})
	return out
}

func cloneConversation(c *chat.Conversation) *chat.Conversation {
	cp := &chat.Conversation{
		ID:                 c.ID,
		MatchID:            c.MatchID,
		EmployerID:         c.EmployerID,
		SeekerID:           c.SeekerID,
		CreatedAt:          c.CreatedAt,
		LastMessageID:      c.LastMessageID,
		LastMessagePreview: c.LastMessagePreview,
		LastSenderID:       c.LastSenderID,
		LastMessageAt:      c.LastMessageAt,
		ReadMarkers:        maps.Clone(c.ReadMarkers),
		Closed:             c.Closed,
		ClosedAt:           c.ClosedAt,
		Version:            c.Version,
	}
	if cp.ReadMarkers == nil {
		cp.ReadMarkers = map[string]time.Time{}
	}
	return cp
}

// MessageRepository keeps each conversation's messages in write order.
type MessageRepository struct {
	mu    sync.RWMutex
	items map[chat.ConversationID][]chat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{items: make(map[chat.ConversationID][]chat.Message)}
}

func (r *MessageRepository) Save(ctx context.Context, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[msg.ConversationID]
	for i := range list {
		if list[i].ID == msg.ID {
			list[i] = msg
			return nil
		}
	}
	r.items[msg.ConversationID] = append(list, msg)
	return nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, id chat.ConversationID, limit, offset int) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.items[id]
	newest := make([]chat.Message, len(list))
	for i, m := range list {
		newest[len(list)-1-i] = m
	}
	sort.SliceStable(newest, func(i, j int) bool { return newest[i].CreatedAt.After(newest[j].CreatedAt) })
	if offset >= len(newest) {
		return []chat.Message{}, nil
	}
	end := len(newest)
	if limit > 0 {
		end = min(offset+limit, len(newest))
	}
	return slices.Clone(newest[offset:end]), nil
}

func (r *MessageRepository) ByClientID(ctx context.Context, id chat.ConversationID, senderID, clientID string) (chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.items[id] {
		if m.SenderID == senderID && m.ClientID == clientID {
			return m, nil
		}
	}
	return chat.Message{}, chat.ErrMessageNotFound
}

func (r *MessageRepository) MarkRead(ctx context.Context, id chat.ConversationID, readerID string, upTo time.Time) ([]chat.MessageID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []chat.MessageID
	list := r.items[id]
	for i := range list {
		m := &list[i]
		if m.SenderID == readerID || m.Status == chat.StatusRead || m.CreatedAt.After(upTo) {
			continue
		}
		m.Status = chat.StatusRead
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, id chat.ConversationID, readerID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.items[id] {
		if m.SenderID != readerID && m.Status != chat.StatusRead && m.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

type BlockRepository struct {
	mu    sync.RWMutex
	items map[string]chat.Block
}

func NewBlockRepository() *BlockRepository {
	return &BlockRepository{items: make(map[string]chat.Block)}
}

func (r *BlockRepository) Exists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[blockKey(blockerID, blockedID)]
	return ok, nil
}

func (r *BlockRepository) Save(ctx context.Context, block chat.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := blockKey(block.BlockerID, block.BlockedID)
	if _, ok := r.items[key]; !ok {
		r.items[key] = block
	}
	return nil
}

func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, blockKey(blockerID, blockedID))
	return nil
}

func blockKey(blockerID, blockedID string) string {
	return blockerID + "->" + blockedID
}

type ApplicationRepository struct {
	mu    sync.RWMutex
	items map[matching.ApplicationID]*matching.Application
}

func NewApplicationRepository() *ApplicationRepository {
	return &ApplicationRepository{items: make(map[matching.ApplicationID]*matching.Application)}
}

func (r *ApplicationRepository) ByID(ctx context.Context, id matching.ApplicationID) (*matching.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.items[id]
	if !ok {
		return nil, matching.ErrApplicationNotFound
	}
	return cloneApplication(app), nil
}

func (r *ApplicationRepository) Save(ctx context.Context, app *matching.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[app.ID] = cloneApplication(app)
	return nil
}

func (r *ApplicationRepository) ListPending(ctx context.Context, jobID string, limit, offset int) ([]*matching.Application, error) {
	r.mu.RLock()
	pending := make([]*matching.Application, 0)
	for _, app := range r.items {
		if app.JobID == jobID && app.Status == matching.StatusPending {
			pending = append(pending, cloneApplication(app))
		}
	}
	r.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].AppliedAt.Equal(pending[j].AppliedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].AppliedAt.Before(pending[j].AppliedAt)
	})
	if offset >= len(pending) {
		return []*matching.Application{}, nil
	}
	end := len(pending)
	if limit > 0 {
		end = min(offset+limit, len(pending))
	}
	return pending[offset:end], nil
}

func cloneApplication(a *matching.Application) *matching.Application {
	return &matching.Application{
		ID:            a.ID,
		JobID:         a.JobID,
		EmployerID:    a.EmployerID,
		ApplicantID:   a.ApplicantID,
		ApplicantName: a.ApplicantName,
		Headline:      a.Headline,
		Status:        a.Status,
		AppliedAt:     a.AppliedAt,
		DecidedAt:     a.DecidedAt,
	}
}

type NotificationRepository struct {
	mu    sync.RWMutex
	items map[notification.ID]notification.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: make(map[notification.ID]notification.Notification)}
}

func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = *n
	return nil
}

func (r *NotificationRepository) ByID(ctx context.Context, id notification.ID) (*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return &n, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*notification.Notification, error) {
	r.mu.RLock()
	out := make([]*notification.Notification, 0)
	for _, n := range r.items {
		if n.UserID == userID {
			cp := n
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*notification.Notification{}, nil
	}
	end := len(out)
	if limit > 0 {
		end = min(offset+limit, len(out))
	}
	return out[offset:end], nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, item := range r.items {
		if item.UserID == userID && item.Unread() {
			n++
		}
	}
	return n, nil
}

var (
	_ chat.ConversationRepository = (*ConversationRepository)(nil)
	_ chat.MessageRepository      = (*MessageRepository)(nil)
	_ chat.BlockRepository        = (*BlockRepository)(nil)
	_ matching.Repository         = (*ApplicationRepository)(nil)
	_ notification.Repository     = (*NotificationRepository)(nil)
)
