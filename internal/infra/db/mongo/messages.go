package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kindbossing/internal/domain/chat"
)

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(ctx context.Context, db *mongo.Database) (*MessageRepository, error) {
	col := db.Collection("chat_messages")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"client_id": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return nil, err
	}
	return &MessageRepository{col: col}, nil
}

func (r *MessageRepository) Save(ctx context.Context, msg chat.Message) error {
	doc := newMessageDocument(msg)
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

func (r *MessageRepository) ListByConversation(ctx context.Context, id chat.ConversationID, limit, offset int) ([]chat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"conversation_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toMessage())
	}
	return out, nil
}

func (r *MessageRepository) ByClientID(ctx context.Context, id chat.ConversationID, senderID, clientID string) (chat.Message, error) {
	var doc messageDocument
	filter := bson.M{"conversation_id": string(id), "sender_id": senderID, "client_id": clientID}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.Message{}, chat.ErrMessageNotFound
		}
		return chat.Message{}, err
	}
	return doc.toMessage(), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id chat.ConversationID, readerID string, upTo time.Time) ([]chat.MessageID, error) {
	filter := bson.M{
		"conversation_id": string(id),
		"sender_id":       bson.M{"$ne": readerID},
		"status":          bson.M{"$ne": string(chat.StatusRead)},
		"created_at":      bson.M{"$lte": upTo},
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]chat.MessageID, 0, len(rows))
	raw := make(bson.A, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, chat.MessageID(row.ID))
		raw = append(raw, row.ID)
	}
	_, err = r.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": raw}}, bson.M{"$set": bson.M{"status": string(chat.StatusRead)}})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, id chat.ConversationID, readerID string, since time.Time) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"conversation_id": string(id),
		"sender_id":       bson.M{"$ne": readerID},
		"status":          bson.M{"$ne": string(chat.StatusRead)},
		"created_at":      bson.M{"$gt": since},
	})
	return int(n), err
}

type messageDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	SenderID       string    `bson:"sender_id"`
	Content        string    `bson:"content"`
	Kind           string    `bson:"kind"`
	FileRef        string    `bson:"file_ref,omitempty"`
	Status         string    `bson:"status"`
	ClientID       string    `bson:"client_id,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

func newMessageDocument(m chat.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Kind:           string(m.Kind),
		FileRef:        m.FileRef,
		Status:         string(m.Status),
		ClientID:       m.ClientID,
		CreatedAt:      m.CreatedAt,
	}
}

func (d messageDocument) toMessage() chat.Message {
	return chat.Message{
		ID:             chat.MessageID(d.ID),
		ConversationID: chat.ConversationID(d.ConversationID),
		SenderID:       d.SenderID,
		Content:        d.Content,
		Kind:           chat.Kind(d.Kind),
		FileRef:        d.FileRef,
		Status:         chat.Status(d.Status),
		ClientID:       d.ClientID,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}
