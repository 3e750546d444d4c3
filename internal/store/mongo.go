package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"heartstage/internal/model"
)

// snapshotKeep is how many blobs are left behind after a save. More than
// one, so a reader racing a prune never comes up empty.
const snapshotKeep = 5

type snapshotDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Version   int64              `bson:"version"`
	Payload   []byte             `bson:"payload"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type mongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore returns a SnapshotStore backed by a MongoDB collection.
// Each save inserts a fresh blob document; LoadLatest takes the newest by
// insertion order, so a crashed or retried save can never shadow a newer
// one.
func NewMongoStore(db *mongo.Database) SnapshotStore {
	return &mongoStore{
		collection: db.Collection("snapshots"),
	}
}

func (s *mongoStore) Save(ctx context.Context, env model.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.collection.InsertOne(ctx, snapshotDoc{
		Version:   env.SavedVersion,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	// Prune older blobs. Best effort: a failed prune only costs storage.
	s.prune(ctx)
	return nil
}

func (s *mongoStore) LoadLatest(ctx context.Context) (model.Envelope, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var doc snapshotDoc
	err := s.collection.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return model.Envelope{}, ErrNotFound
	}
	if err != nil {
		return model.Envelope{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var env model.Envelope
	if err := json.Unmarshal(doc.Payload, &env); err != nil {
		return model.Envelope{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return env, nil
}

func (s *mongoStore) prune(ctx context.Context) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(snapshotKeep).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err == nil {
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) > 0 {
		s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	}
}
