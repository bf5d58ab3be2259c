// Package mongo provides a MongoDB implementation of the registry store,
// suitable for deployments where several processes share one catalog.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/socaity/fastsdk-go/registry/store"
	"github.com/socaity/fastsdk-go/service"
)

// Store is a MongoDB store.Store implementation.
type Store struct {
	collection *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// definitionDocument wraps a definition with the indexed lookup fields. The
// definition itself travels as extended JSON inside the document so schema
// changes in the service model never require a migration.
type definitionDocument struct {
	ID             string `bson:"_id"`
	NormalizedName string `bson:"normalized_name"`
	Version        string `bson:"version"`
	Definition     []byte `bson:"definition"`
}

// New creates a MongoDB store using the provided collection. The collection
// should come from a connected client.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// Save stores or replaces a definition.
func (s *Store) Save(ctx context.Context, def *service.Definition) error {
	doc, err := toDocument(def)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": def.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongodb save definition %q: %w", def.ID, err)
	}
	return nil
}

// Get retrieves a definition by id or normalized display name.
func (s *Store) Get(ctx context.Context, idOrName string) (*service.Definition, error) {
	filter := bson.M{"$or": []bson.M{
		{"_id": idOrName},
		{"normalized_name": service.NormalizeName(idOrName)},
	}}
	var doc definitionDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get definition %q: %w", idOrName, err)
	}
	return fromDocument(&doc)
}

// Delete removes a definition by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb delete definition %q: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns every stored definition.
func (s *Store) List(ctx context.Context) ([]*service.Definition, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb list definitions: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []definitionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list definitions decode: %w", err)
	}
	defs := make([]*service.Definition, len(docs))
	for i := range docs {
		if defs[i], err = fromDocument(&docs[i]); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// VersionIndex returns the id to spec-hash map using a projection so full
// definitions stay on the server.
func (s *Store) VersionIndex(ctx context.Context) (map[string]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "version": 1})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb version index: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []definitionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb version index decode: %w", err)
	}
	index := make(map[string]string, len(docs))
	for _, doc := range docs {
		index[doc.ID] = doc.Version
	}
	return index, nil
}

func toDocument(def *service.Definition) (*definitionDocument, error) {
	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode definition %q: %w", def.ID, err)
	}
	return &definitionDocument{
		ID:             def.ID,
		NormalizedName: service.NormalizeName(def.DisplayName),
		Version:        def.Version,
		Definition:     payload,
	}, nil
}

func fromDocument(doc *definitionDocument) (*service.Definition, error) {
	var def service.Definition
	if err := json.Unmarshal(doc.Definition, &def); err != nil {
		return nil, fmt.Errorf("decode definition %q: %w", doc.ID, err)
	}
	return &def, nil
}
