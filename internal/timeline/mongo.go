package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "emergency_timeline"

// MongoRecorder stores events in a MongoDB collection.
type MongoRecorder struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// ConnectMongo dials MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoRecorder, error) {
	if uri == "" || database == "" {
		return nil, errors.New("timeline: mongo uri and database are required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("timeline: connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("timeline: ping mongo: %w", err)
	}

	return &MongoRecorder{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}, nil
}

// Record implements Recorder.
func (r *MongoRecorder) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("timeline: insert %s: %w", event.Type, err)
	}
	return nil
}

// List implements Recorder.
func (r *MongoRecorder) List(ctx context.Context, emergencyID string) ([]Event, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"emergency_id": emergencyID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("timeline: find: %w", err)
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("timeline: decode: %w", err)
	}
	return events, nil
}

// Ping reports whether MongoDB is reachable.
func (r *MongoRecorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *MongoRecorder) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
