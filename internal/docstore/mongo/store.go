// Package mongostore stores documents in MongoDB, one collection per document collection.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/and161185/earn-hire/internal/docstore"
	"github.com/and161185/earn-hire/internal/errs"
)

type document struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Data      bson.M    `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store implements docstore.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*Store)(nil)

// Connect dials uri and selects database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the lookup index on data.<field> for each collection.
func (s *Store) EnsureIndexes(ctx context.Context, field string, collections ...string) error {
	for _, c := range collections {
		_, err := s.db.Collection(c).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "data." + field, Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", c, err)
		}
	}
	return nil
}

// Ping checks server reachability.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// QueryByField returns the oldest document whose data.<field> equals value.
func (s *Store) QueryByField(ctx context.Context, collection, field, value string) (*docstore.Document, error) {
	var d document
	err := s.db.Collection(collection).
		FindOne(ctx, bson.D{{Key: "data." + field, Value: value}}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})).
		Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return toDocument(d)
}

// Create inserts data under a generated UUIDv4 id.
func (s *Store) Create(ctx context.Context, collection string, data map[string]any, ownerID string) (*docstore.Document, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	d := document{ID: id.String(), OwnerID: ownerID, Data: bson.M{}, CreatedAt: now, UpdatedAt: now}
	for k, v := range data {
		d.Data[k] = v
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	return toDocument(d)
}

// Update sets each partial key under data and returns the updated document.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) (*docstore.Document, error) {
	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	for k, v := range partial {
		set = append(set, bson.E{Key: "data." + k, Value: v})
	}
	var d document
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return toDocument(d)
}

// toDocument round-trips data through JSON so BSON numeric and array types
// come back in the same shape as the other backends.
func toDocument(d document) (*docstore.Document, error) {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return &docstore.Document{ID: d.ID, OwnerID: d.OwnerID, Data: data, UpdatedAt: d.UpdatedAt}, nil
}
