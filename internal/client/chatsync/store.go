package chatsync

import (
	"slices"
	"sync"

	"kindbossing/internal/domain/chat"
)

// Store holds the ordered messages of one conversation. Every mutation swaps
// in a freshly built slice so readers never observe a half-applied change.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	index    map[chat.MessageID]struct{}
	watchers []func([]chat.Message)
}

func NewStore() *Store {
	return &Store{index: make(map[chat.MessageID]struct{})}
}

// Watch registers fn to receive a snapshot after every mutation.
func (s *Store) Watch(fn func([]chat.Message)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// Prepend inserts an older page given in chronological order, skipping ids
// already present. It returns the number of inserted messages.
func (s *Store) Prepend(page []chat.Message) int {
	s.mu.Lock()
	fresh := make([]chat.Message, 0, len(page))
	for _, msg := range page {
		if _, ok := s.index[msg.ID]; ok {
			continue
		}
		s.index[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		s.mu.Unlock()
		return 0
	}
	next := make([]chat.Message, 0, len(fresh)+len(s.messages))
	next = append(next, fresh...)
	next = append(next, s.messages...)
	sortByCreated(next)
	s.messages = next
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
	return len(fresh)
}

// Append inserts a single message at its chronological position. It reports
// false when a message with the same id is already held.
func (s *Store) Append(msg chat.Message) bool {
	s.mu.Lock()
	if _, ok := s.index[msg.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.index[msg.ID] = struct{}{}
	s.messages = insertSorted(s.messages, msg)
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
	return true
}

// Replace swaps a provisional message for its durable counterpart in one
// update. When the durable id already arrived through another path only the
// provisional entry is dropped.
func (s *Store) Replace(tempID chat.MessageID, durable chat.Message) bool {
	s.mu.Lock()
	_, hadTemp := s.index[tempID]
	_, hadDurable := s.index[durable.ID]
	if !hadTemp && hadDurable {
		s.mu.Unlock()
		return false
	}
	next := make([]chat.Message, 0, len(s.messages)+1)
	for _, msg := range s.messages {
		if msg.ID == tempID {
			continue
		}
		next = append(next, msg)
	}
	delete(s.index, tempID)
	if !hadDurable {
		s.index[durable.ID] = struct{}{}
		next = insertSorted(next, durable)
	}
	s.messages = next
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
	return true
}

// Remove drops a message by id.
func (s *Store) Remove(id chat.MessageID) bool {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.index, id)
	next := make([]chat.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.ID != id {
			next = append(next, msg)
		}
	}
	s.messages = next
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
	return true
}

// Update overwrites a held message in place, keeping its position.
func (s *Store) Update(msg chat.Message) bool {
	return s.mutate(func(next []chat.Message) bool {
		for i := range next {
			if next[i].ID == msg.ID {
				next[i] = msg
				return true
			}
		}
		return false
	})
}

// MarkRead flips the given ids to read.
func (s *Store) MarkRead(ids []chat.MessageID) int {
	if len(ids) == 0 {
		return 0
	}
	wanted := make(map[chat.MessageID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	changed := 0
	s.mutate(func(next []chat.Message) bool {
		for i := range next {
			if _, ok := wanted[next[i].ID]; ok && next[i].Status != chat.StatusRead {
				next[i].Status = chat.StatusRead
				changed++
			}
		}
		return changed > 0
	})
	return changed
}

// Rekey moves every held message to a new conversation id.
func (s *Store) Rekey(id chat.ConversationID) {
	s.mutate(func(next []chat.Message) bool {
		for i := range next {
			next[i].ConversationID = id
		}
		return len(next) > 0
	})
}

// Reset drops all messages.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.index = make(map[chat.MessageID]struct{})
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
}

func (s *Store) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

func (s *Store) Has(id chat.MessageID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

func (s *Store) Get(id chat.MessageID) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return chat.Message{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the newest message.
func (s *Store) Last() (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return chat.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func (s *Store) mutate(fn func(next []chat.Message) bool) bool {
	s.mu.Lock()
	next := slices.Clone(s.messages)
	if !fn(next) {
		s.mu.Unlock()
		return false
	}
	s.messages = next
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
	return true
}

func (s *Store) snapshotLocked() ([]chat.Message, []func([]chat.Message)) {
	if len(s.watchers) == 0 {
		return nil, nil
	}
	return slices.Clone(s.messages), slices.Clone(s.watchers)
}

func notify(watchers []func([]chat.Message), snapshot []chat.Message) {
	for _, fn := range watchers {
		fn(snapshot)
	}
}

func sortByCreated(msgs []chat.Message) {
	slices.SortStableFunc(msgs, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// insertSorted places msg after every message created at or before it.
func insertSorted(msgs []chat.Message, msg chat.Message) []chat.Message {
	pos := len(msgs)
	for pos > 0 && msgs[pos-1].CreatedAt.After(msg.CreatedAt) {
		pos--
	}
	next := make([]chat.Message, 0, len(msgs)+1)
	next = append(next, msgs[:pos]...)
	next = append(next, msg)
	next = append(next, msgs[pos:]...)
	return next
}
