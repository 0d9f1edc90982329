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

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

type ConversationRepository struct {
	col *mongo.Collection
}

// NewConversationRepository ensures one conversation per match through a
// unique index on match_id.
func NewConversationRepository(ctx context.Context, db *mongo.Database) (*ConversationRepository, error) {
	col := db.Collection("agg_conversation")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "match_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_activity", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}
	return &ConversationRepository{col: col}, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByMatch(ctx context.Context, matchID string) (*chat.Conversation, error) {
	return r.findOne(ctx, bson.M{"match_id": matchID})
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save writes conv if its version still matches the stored one.
func (r *ConversationRepository) Save(ctx context.Context, conv *chat.Conversation) error {
	doc := newConversationDocument(conv)
	filter := bson.M{"_id": doc.ID, "version": conv.Version}
	doc.Version = conv.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return r.classifyDuplicate(ctx, conv)
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	conv.Version = doc.Version
	return nil
}

// classifyDuplicate tells a second conversation for the same match apart
// from a stale version of this one.
func (r *ConversationRepository) classifyDuplicate(ctx context.Context, conv *chat.Conversation) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"match_id": conv.MatchID, "_id": bson.M{"$ne": string(conv.ID)}})
	if err == nil && n > 0 {
		return chat.ErrConversationExists
	}
	return ErrConcurrentUpdate
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	return r.find(ctx, bson.M{"participants": userID})
}

func (r *ConversationRepository) ListBetween(ctx context.Context, a, b string) ([]*chat.Conversation, error) {
	return r.find(ctx, bson.M{"participants": bson.M{"$all": bson.A{a, b}}})
}

func (r *ConversationRepository) find(ctx context.Context, filter bson.M) ([]*chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*chat.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type conversationDocument struct {
	ID                 string               `bson:"_id"`
	MatchID            string               `bson:"match_id"`
	EmployerID         string               `bson:"employer_id"`
	SeekerID           string               `bson:"seeker_id"`
	Participants       []string             `bson:"participants"`
	CreatedAt          time.Time            `bson:"created_at"`
	LastMessageID      string               `bson:"last_message_id,omitempty"`
	LastMessagePreview string               `bson:"last_message_preview,omitempty"`
	LastSenderID       string               `bson:"last_sender_id,omitempty"`
	LastMessageAt      time.Time            `bson:"last_message_at,omitempty"`
	LastActivity       time.Time            `bson:"last_activity"`
	ReadMarkers        map[string]time.Time `bson:"read_markers"`
	Closed             bool                 `bson:"closed"`
	ClosedAt           time.Time            `bson:"closed_at,omitempty"`
	Version            int64                `bson:"version"`
}

func newConversationDocument(c *chat.Conversation) conversationDocument {
	return conversationDocument{
		ID:                 string(c.ID),
		MatchID:            c.MatchID,
		EmployerID:         c.EmployerID,
		SeekerID:           c.SeekerID,
		Participants:       c.Participants(),
		CreatedAt:          c.CreatedAt,
		LastMessageID:      string(c.LastMessageID),
		LastMessagePreview: c.LastMessagePreview,
		LastSenderID:       c.LastSenderID,
		LastMessageAt:      c.LastMessageAt,
		LastActivity:       c.LastActivity(),
		ReadMarkers:        c.ReadMarkers,
		Closed:             c.Closed,
		ClosedAt:           c.ClosedAt,
		Version:            c.Version,
	}
}

func (d conversationDocument) toAggregate() *chat.Conversation {
	markers := make(map[string]time.Time, len(d.ReadMarkers))
	for k, v := range d.ReadMarkers {
		markers[k] = v.UTC()
	}
	return &chat.Conversation{
		ID:                 chat.ConversationID(d.ID),
		MatchID:            d.MatchID,
		EmployerID:         d.EmployerID,
		SeekerID:           d.SeekerID,
		CreatedAt:          d.CreatedAt.UTC(),
		LastMessageID:      chat.MessageID(d.LastMessageID),
		LastMessagePreview: d.LastMessagePreview,
		LastSenderID:       d.LastSenderID,
		LastMessageAt:      utcOrZero(d.LastMessageAt),
		ReadMarkers:        markers,
		Closed:             d.Closed,
		ClosedAt:           utcOrZero(d.ClosedAt),
		Version:            d.Version,
	}
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
