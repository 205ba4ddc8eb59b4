package audit

import (
	"PhonePilot/internal/models"
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is an insert-only audit sink backed by MongoDB.
// Events are queryable after the fact; the in-memory task registry stays the
// single source of truth for live task state.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and returns a MongoStore.
func NewMongoStore(ctx context.Context, address, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(address))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// LogStep inserts one audit event.
func (s *MongoStore) LogStep(ctx context.Context, event *models.StepEvent) error {
	_, err := s.collection.InsertOne(ctx, event)
	return err
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
