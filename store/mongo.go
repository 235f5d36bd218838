// MongoDB document store backend.
//
// Information Hiding:
// - Predicate translation to BSON filters
// - Per-user database naming and index management
// - The ready->processed transition rides on a conditional UpdateOne, so
//   the server arbitrates concurrent consumers

package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri and scopes all collections to dbName.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	s.ensureIndexes(ctx)
	return s, nil
}

// ensureIndexes creates the query indexes. Failures are non-fatal; the
// store works without them, only slower.
func (s *MongoStore) ensureIndexes(ctx context.Context) {
	timestampDesc := mongo.IndexModel{Keys: bson.D{{Key: "timestamp", Value: -1}}}
	for _, name := range []string{Conversations, Events, Interactions, ActiveThoughts} {
		_, _ = s.db.Collection(name).Indexes().CreateOne(ctx, timestampDesc)
	}
	_, _ = s.db.Collection(Conversations).Indexes().CreateOne(ctx,
		mongo.IndexModel{Keys: bson.D{{Key: "semantic_tags", Value: 1}}})
	_, _ = s.db.Collection(ActiveThoughts).Indexes().CreateOne(ctx,
		mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}})
}

// Close disconnects from the server.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Insert stores one document.
func (s *MongoStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	stamped := stamp(doc)

	if _, err := s.db.Collection(collection).InsertOne(ctx, bson.M(stamped)); err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return stamped.ID(), nil
}

// InsertMany stores several documents.
func (s *MongoStore) InsertMany(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	payload := make([]any, 0, len(docs))
	for _, doc := range docs {
		stamped := stamp(doc)
		ids = append(ids, stamped.ID())
		payload = append(payload, bson.M(stamped))
	}
	if len(payload) == 0 {
		return ids, nil
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, payload); err != nil {
		return nil, fmt.Errorf("insert many into %s: %w", collection, err)
	}
	return ids, nil
}

// Find returns matching documents, newest first.
func (s *MongoStore) Find(ctx context.Context, collection string, pred Predicate, limit int) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, toBSON(pred), opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var results []Document
	for cursor.Next(ctx) {
		var doc Document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document from %s: %w", collection, err)
		}
		if t, ok := doc.Time("timestamp"); ok {
			doc["timestamp"] = t
		}
		results = append(results, doc)
	}
	return results, cursor.Err()
}

// Count returns the number of matching documents.
func (s *MongoStore) Count(ctx context.Context, collection string, pred Predicate) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, toBSON(pred))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Update applies change to every matching document.
func (s *MongoStore) Update(ctx context.Context, collection string, pred Predicate, change Change) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	update := bson.M{}
	if len(change.Set) > 0 {
		update["$set"] = bson.M(change.Set)
	}
	if len(change.AddToSet) > 0 {
		add := bson.M{}
		for field, values := range change.AddToSet {
			add[field] = bson.M{"$each": values}
		}
		update["$addToSet"] = add
	}
	if len(update) == 0 {
		return nil
	}

	opts := options.Update().SetUpsert(change.Upsert)
	if _, err := s.db.Collection(collection).UpdateMany(ctx, toBSON(pred), update, opts); err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	return nil
}

// ClaimThought transitions an active thought ready -> processed.
func (s *MongoStore) ClaimThought(ctx context.Context, id string) (bool, error) {
	filter := bson.M{"_id": id, "status": StatusReady}
	update := bson.M{"$set": bson.M{
		"status":       StatusProcessed,
		"processed_at": time.Now().UTC(),
	}}

	res, err := s.db.Collection(ActiveThoughts).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("claim thought %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

// Reset drops all documents belonging to userID.
func (s *MongoStore) Reset(ctx context.Context, userID string) error {
	filter := bson.M{"user_id": userID}
	for name := range knownCollections {
		if _, err := s.db.Collection(name).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	return nil
}

// toBSON translates a typed predicate into a BSON filter.
func toBSON(pred Predicate) bson.M {
	filter := bson.M{}
	for field, cond := range pred {
		switch {
		case cond.In != nil:
			filter[field] = bson.M{"$in": cond.In}
		case cond.Exists != nil:
			filter[field] = bson.M{"$exists": *cond.Exists}
		case cond.After != nil:
			filter[field] = bson.M{"$gte": *cond.After}
		case cond.Nested != nil:
			filter[field] = toBSON(cond.Nested)
		default:
			filter[field] = cond.Eq
		}
	}
	return filter
}

// Verify MongoStore implements Store
var _ Store = (*MongoStore)(nil)
