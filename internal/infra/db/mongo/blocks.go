package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kindbossing/internal/domain/chat"
)

type BlockRepository struct {
	col *mongo.Collection
}

func NewBlockRepository(db *mongo.Database) *BlockRepository {
	return &BlockRepository{col: db.Collection("user_blocks")}
}

func (r *BlockRepository) Exists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": blockKey(blockerID, blockedID)}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Save keeps the first block's timestamp when the pair is blocked again.
func (r *BlockRepository) Save(ctx context.Context, block chat.Block) error {
	doc := blockDocument{
		ID:        blockKey(block.BlockerID, block.BlockedID),
		BlockerID: block.BlockerID,
		BlockedID: block.BlockedID,
		CreatedAt: block.CreatedAt,
	}
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	return err
}

func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": blockKey(blockerID, blockedID)})
	return err
}

func blockKey(blockerID, blockedID string) string {
	return blockerID + "->" + blockedID
}

type blockDocument struct {
	ID        string    `bson:"_id"`
	BlockerID string    `bson:"blocker_id"`
	BlockedID string    `bson:"blocked_id"`
	CreatedAt time.Time `bson:"created_at"`
}
