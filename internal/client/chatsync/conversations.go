package chatsync

import (
	"slices"
	"strings"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
)

const previewLength = 80

// Summary is one row of the conversation list.
type Summary struct {
	ID                 chat.ConversationID
	MatchID            string
	PeerID             string
	PeerName           string
	LastMessageID      chat.MessageID
	LastMessagePreview string
	LastSenderID       string
	LastMessageAt      time.Time
	UnreadCount        int
}

type listEntry struct {
	Summary
	localAt  time.Time
	lastSeen chat.MessageID
}

func (e *listEntry) activity() time.Time {
	if !e.localAt.IsZero() {
		return e.localAt
	}
	return e.LastMessageAt
}

// ConversationList keeps previews and unread counters in step with messages
// seen by the client.
type ConversationList struct {
	userID string

	mu       sync.Mutex
	entries  map[chat.ConversationID]*listEntry
	open     chat.ConversationID
	watchers []func([]Summary)
}

func NewConversationList(userID string) *ConversationList {
	return &ConversationList{userID: userID, entries: make(map[chat.ConversationID]*listEntry)}
}

func (l *ConversationList) Watch(fn func([]Summary)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.watchers = append(l.watchers, fn)
	l.mu.Unlock()
}

// Load seeds the list from the backend, replacing previous entries.
func (l *ConversationList) Load(summaries []Summary) {
	l.mu.Lock()
	l.entries = make(map[chat.ConversationID]*listEntry, len(summaries))
	for _, s := range summaries {
		if s.ID == l.open {
			s.UnreadCount = 0
		}
		l.entries[s.ID] = &listEntry{Summary: s, lastSeen: s.LastMessageID}
	}
	l.mu.Unlock()
	l.changed()
}

// Upsert adds a single row without touching local counters of existing ones.
func (l *ConversationList) Upsert(s Summary) {
	l.mu.Lock()
	if e, ok := l.entries[s.ID]; ok {
		e.MatchID = s.MatchID
		e.PeerID = s.PeerID
		e.PeerName = s.PeerName
	} else {
		l.entries[s.ID] = &listEntry{Summary: s, lastSeen: s.LastMessageID}
	}
	l.mu.Unlock()
	l.changed()
}

// Observe applies a message to its conversation row. Provisional messages,
// repeats of the last processed message and messages older than the row's
// latest activity are ignored. It reports whether the row changed.
func (l *ConversationList) Observe(id chat.ConversationID, msg chat.Message) bool {
	if msg.IsProvisional() || id == "" {
		return false
	}
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &listEntry{Summary: Summary{ID: id}}
		l.entries[id] = e
	}
	if e.lastSeen == msg.ID || msg.CreatedAt.Before(e.activity()) {
		l.mu.Unlock()
		return false
	}
	e.lastSeen = msg.ID
	e.localAt = msg.CreatedAt
	e.LastMessageID = msg.ID
	e.LastSenderID = msg.SenderID
	e.LastMessagePreview = preview(msg)
	if msg.SenderID != l.userID && id != l.open {
		e.UnreadCount++
	}
	l.mu.Unlock()
	l.changed()
	return true
}

// Open marks id as the conversation on screen and clears its unread counter.
// An empty id closes the current one.
func (l *ConversationList) Open(id chat.ConversationID) {
	l.mu.Lock()
	l.open = id
	if e, ok := l.entries[id]; ok {
		e.UnreadCount = 0
	}
	l.mu.Unlock()
	l.changed()
}

// Rename moves a temporary row to its durable id.
func (l *ConversationList) Rename(from, to chat.ConversationID) {
	if from == to {
		return
	}
	l.mu.Lock()
	if e, ok := l.entries[from]; ok {
		delete(l.entries, from)
		if existing, ok := l.entries[to]; ok {
			existing.PeerName = firstNonEmpty(existing.PeerName, e.PeerName)
		} else {
			e.ID = to
			l.entries[to] = e
		}
	}
	if l.open == from {
		l.open = to
	}
	l.mu.Unlock()
	l.changed()
}

func (l *ConversationList) Get(id chat.ConversationID) (Summary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return Summary{}, false
	}
	return e.Summary, true
}

func (l *ConversationList) OpenID() chat.ConversationID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *ConversationList) TotalUnread() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, e := range l.entries {
		total += e.UnreadCount
	}
	return total
}

// Sorted returns rows by latest activity, newest first.
func (l *ConversationList) Sorted() []Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

func (l *ConversationList) sortedLocked() []Summary {
	entries := make([]*listEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *listEntry) int {
		if c := b.activity().Compare(a.activity()); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	out := make([]Summary, len(entries))
	for i, e := range entries {
		out[i] = e.Summary
		out[i].LastMessageAt = e.activity()
	}
	return out
}

func (l *ConversationList) changed() {
	l.mu.Lock()
	if len(l.watchers) == 0 {
		l.mu.Unlock()
		return
	}
	rows := l.sortedLocked()
	watchers := slices.Clone(l.watchers)
	l.mu.Unlock()
	for _, fn := range watchers {
		fn(rows)
	}
}

func preview(msg chat.Message) string {
	text := chat.Snippet(msg.Content, previewLength)
	if msg.Kind == chat.KindFile {
		return "[file] " + text
	}
	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
