package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kindbossing/internal/domain/notification"
)

type NotificationRepository struct {
	col *mongo.Collection
}

func NewNotificationRepository(ctx context.Context, db *mongo.Database) (*NotificationRepository, error) {
	col := db.Collection("notifications")
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, err
	}
	return &NotificationRepository{col: col}, nil
}

func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	doc := notificationDocument{
		ID:        string(n.ID),
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		SourceID:  n.SourceID,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

func (r *NotificationRepository) ByID(ctx context.Context, id notification.ID) (*notification.Notification, error) {
	var doc notificationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notification.ErrNotFound
		}
		return nil, err
	}
	return doc.toNotification(), nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*notification.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []notificationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*notification.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toNotification())
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{"read_at": bson.M{"$exists": false}},
			bson.M{"read_at": time.Time{}},
		},
	})
	return int(n), err
}

type notificationDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Kind      string    `bson:"kind"`
	Title     string    `bson:"title"`
	Body      string    `bson:"body"`
	Link      string    `bson:"link,omitempty"`
	SourceID  string    `bson:"source_id,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	ReadAt    time.Time `bson:"read_at,omitempty"`
}

func (d notificationDocument) toNotification() *notification.Notification {
	return &notification.Notification{
		ID:        notification.ID(d.ID),
		UserID:    d.UserID,
		Kind:      notification.Kind(d.Kind),
		Title:     d.Title,
		Body:      d.Body,
		Link:      d.Link,
		SourceID:  d.SourceID,
		CreatedAt: d.CreatedAt.UTC(),
		ReadAt:    utcOrZero(d.ReadAt),
	}
}
