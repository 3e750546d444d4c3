package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"heartstage/internal/model"
)

// RegistrationRepo is the roster source boundary: the ordered list of
// sign-up form submissions the director seeds rosters from. Entries are
// addressed by their position in submission order, like rows in the sheet
// they are reviewed in.
type RegistrationRepo interface {
	Create(ctx context.Context, entry *model.RegistrationEntry) error
	ListEntries(ctx context.Context, gender string) ([]model.RegistrationEntry, error)
	DeleteEntry(ctx context.Context, gender string, rowIndex int) error
}

type registrationRepo struct {
	collection *mongo.Collection
}

// NewRegistrationRepo creates a MongoDB-backed registration repository
func NewRegistrationRepo(db *mongo.Database) RegistrationRepo {
	return &registrationRepo{
		collection: db.Collection("registrations"),
	}
}

func (r *registrationRepo) Create(ctx context.Context, entry *model.RegistrationEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to save registration: %w", err)
	}
	return nil
}

func (r *registrationRepo) ListEntries(ctx context.Context, gender string) ([]model.RegistrationEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"gender": gender}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []model.RegistrationEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode registrations: %w", err)
	}
	return entries, nil
}

func (r *registrationRepo) DeleteEntry(ctx context.Context, gender string, rowIndex int) error {
	entries, err := r.ListEntries(ctx, gender)
	if err != nil {
		return err
	}
	if rowIndex < 0 || rowIndex >= len(entries) {
		return fmt.Errorf("registration row %d out of range", rowIndex)
	}
	_, err = r.collection.DeleteOne(ctx, bson.M{"id": entries[rowIndex].ID})
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	return nil
}
