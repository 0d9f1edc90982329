package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kindbossing/internal/domain/matching"
)

type ApplicationRepository struct {
	col *mongo.Collection
}

func NewApplicationRepository(ctx context.Context, db *mongo.Database) (*ApplicationRepository, error) {
	col := db.Collection("job_applications")
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "status", Value: 1}, {Key: "applied_at", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return &ApplicationRepository{col: col}, nil
}

func (r *ApplicationRepository) ByID(ctx context.Context, id matching.ApplicationID) (*matching.Application, error) {
	var doc applicationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, matching.ErrApplicationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ApplicationRepository) Save(ctx context.Context, app *matching.Application) error {
	doc := applicationDocument{
		ID:            string(app.ID),
		JobID:         app.JobID,
		EmployerID:    app.EmployerID,
		ApplicantID:   app.ApplicantID,
		ApplicantName: app.ApplicantName,
		Headline:      app.Headline,
		Status:        string(app.Status),
		AppliedAt:     app.AppliedAt,
		DecidedAt:     app.DecidedAt,
	}
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

func (r *ApplicationRepository) ListPending(ctx context.Context, jobID string, limit, offset int) ([]*matching.Application, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "applied_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"job_id": jobID, "status": string(matching.StatusPending)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []applicationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*matching.Application, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type applicationDocument struct {
	ID            string    `bson:"_id"`
	JobID         string    `bson:"job_id"`
	EmployerID    string    `bson:"employer_id"`
	ApplicantID   string    `bson:"applicant_id"`
	ApplicantName string    `bson:"applicant_name"`
	Headline      string    `bson:"headline,omitempty"`
	Status        string    `bson:"status"`
	AppliedAt     time.Time `bson:"applied_at"`
	DecidedAt     time.Time `bson:"decided_at,omitempty"`
}

func (d applicationDocument) toAggregate() *matching.Application {
	return &matching.Application{
		ID:            matching.ApplicationID(d.ID),
		JobID:         d.JobID,
		EmployerID:    d.EmployerID,
		ApplicantID:   d.ApplicantID,
		ApplicantName: d.ApplicantName,
		Headline:      d.Headline,
		Status:        matching.Status(d.Status),
		AppliedAt:     d.AppliedAt.UTC(),
		DecidedAt:     utcOrZero(d.DecidedAt),
	}
}
