package scylla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"kindbossing/internal/domain/chat"
)

const messageColumns = `conversation_id, created_at, message_id, sender_id, content, kind, file_ref, status, client_id`

// MessageRepository keeps chat messages in one partition per conversation,
// newest first. Conversations themselves stay in the primary store.
type MessageRepository struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewMessageRepository(session *gocql.Session, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{session: session, logger: logger}
}

var errSessionMissing = errors.New("scylla session not initialized")

func (r *MessageRepository) Save(ctx context.Context, msg chat.Message) error {
	if r.session == nil {
		return errSessionMissing
	}
	if err := r.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(msg.ConversationID), msg.CreatedAt.UTC(), string(msg.ID), msg.SenderID,
			msg.Content, string(msg.Kind), msg.FileRef, string(msg.Status), msg.ClientID).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return err
	}
	if msg.ClientID == "" {
		return nil
	}
	return r.session.
		Query(`INSERT INTO messages_by_client (conversation_id, sender_id, client_id, message_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			string(msg.ConversationID), msg.SenderID, msg.ClientID, string(msg.ID), msg.CreatedAt.UTC()).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

// ListByConversation walks the partition newest first. CQL has no offset,
// so the first offset rows are read and discarded.
func (r *MessageRepository) ListByConversation(ctx context.Context, id chat.ConversationID, limit, offset int) ([]chat.Message, error) {
	if r.session == nil {
		return nil, errSessionMissing
	}
	q := r.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, string(id)).
		WithContext(ctx).
		Consistency(gocql.One)
	if limit > 0 {
		q = q.PageSize(limit + offset)
	}
	iter := q.Iter()

	out := make([]chat.Message, 0, max(limit, 0))
	skipped := 0
	for {
		msg, ok := scanMessage(iter)
		if !ok {
			break
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MessageRepository) ByClientID(ctx context.Context, id chat.ConversationID, senderID, clientID string) (chat.Message, error) {
	if r.session == nil {
		return chat.Message{}, errSessionMissing
	}
	var (
		messageID string
		createdAt time.Time
	)
	err := r.session.
		Query(`SELECT message_id, created_at FROM messages_by_client WHERE conversation_id = ? AND sender_id = ? AND client_id = ?`,
			string(id), senderID, clientID).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&messageID, &createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return chat.Message{}, chat.ErrMessageNotFound
		}
		return chat.Message{}, err
	}
	iter := r.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
			string(id), createdAt, messageID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	msg, ok := scanMessage(iter)
	if err := iter.Close(); err != nil {
		return chat.Message{}, err
	}
	if !ok {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	return msg, nil
}

// MarkRead flips unread messages from other senders in one unlogged batch;
// every row lives in the same partition.
func (r *MessageRepository) MarkRead(ctx context.Context, id chat.ConversationID, readerID string, upTo time.Time) ([]chat.MessageID, error) {
	if r.session == nil {
		return nil, errSessionMissing
	}
	iter := r.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at <= ?`, string(id), upTo.UTC()).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Iter()
	var unread []chat.Message
	for {
		msg, ok := scanMessage(iter)
		if !ok {
			break
		}
		if msg.SenderID != readerID && msg.Status != chat.StatusRead {
			unread = append(unread, msg)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		return nil, nil
	}

	batch := r.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	ids := make([]chat.MessageID, 0, len(unread))
	// oldest first, matching the order readers saw them
	for i := len(unread) - 1; i >= 0; i-- {
		msg := unread[i]
		batch.Query(`UPDATE messages SET status = ? WHERE conversation_id = ? AND created_at = ? AND message_id = ?`,
			string(chat.StatusRead), string(id), msg.CreatedAt, string(msg.ID))
		ids = append(ids, msg.ID)
	}
	if err := r.session.ExecuteBatch(batch); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, id chat.ConversationID, readerID string, since time.Time) (int, error) {
	if r.session == nil {
		return 0, errSessionMissing
	}
	iter := r.session.
		Query(`SELECT sender_id, status FROM messages WHERE conversation_id = ? AND created_at > ?`, string(id), since.UTC()).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		sender string
		status string
		n      int
	)
	for iter.Scan(&sender, &status) {
		if sender != readerID && status != string(chat.StatusRead) {
			n++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	return n, nil
}

func scanMessage(iter *gocql.Iter) (chat.Message, bool) {
	var (
		convID, messageID, sender, content string
		kind, fileRef, status, clientID    string
		createdAt                          time.Time
	)
	if !iter.Scan(&convID, &createdAt, &messageID, &sender, &content, &kind, &fileRef, &status, &clientID) {
		return chat.Message{}, false
	}
	return chat.Message{
		ID:             chat.MessageID(messageID),
		ConversationID: chat.ConversationID(convID),
		SenderID:       sender,
		Content:        content,
		Kind:           chat.Kind(kind),
		FileRef:        fileRef,
		Status:         chat.Status(status),
		ClientID:       clientID,
		CreatedAt:      createdAt.UTC(),
	}, true
}

var _ chat.MessageRepository = (*MessageRepository)(nil)
