// Package mongodoc is a storage.Adapter backed by a real mongo.Collection,
// generalizing the teacher's StorageImpl from one Cachable[T] document
// type with optimistic-concurrency versioning down to arbitrary
// JSON-shaped documents keyed by a string "id" field, which is all
// SignalDB's async backend needs from storage (spec.md's durability and
// index-acceleration concerns, not Mongo's full document-versioning API).
package mongodoc

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/signaldb-go/signaldb/bsonkit"
	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/storage"
)

// Adapter is a storage.Adapter over a mongo.Collection. Documents are
// stored exactly as the caller's map[string]any, with "id" as the
// collection's natural key (a unique index is created on it in Setup).
type Adapter struct {
	collection *mongo.Collection
}

// New wraps an already-constructed *mongo.Collection.
func New(collection *mongo.Collection) *Adapter {
	return &Adapter{collection: collection}
}

func (a *Adapter) Setup(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (a *Adapter) Teardown(ctx context.Context) error {
	return a.collection.Drop(ctx)
}

func (a *Adapter) ReadAll(ctx context.Context) ([]map[string]any, error) {
	cur, err := a.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (a *Adapter) ReadIDs(ctx context.Context, ids []string) ([]map[string]any, error) {
	cur, err := a.collection.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur)
}

func (a *Adapter) ReadIndex(ctx context.Context, field string, value any) ([]string, error) {
	cur, err := a.collection.Find(ctx, bson.M{field: value}, options.Find().SetProjection(bson.M{"id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []string
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if id, ok := bsonkit.ToItemDoc(doc)["id"].(string); ok {
			out = append(out, id)
		}
	}
	return out, cur.Err()
}

func (a *Adapter) CreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: spec.Field, Value: 1}},
		Options: options.Index().SetUnique(spec.Unique),
	})
	return err
}

func (a *Adapter) DropIndex(ctx context.Context, field string) error {
	_, err := a.collection.Indexes().DropOne(ctx, field+"_1")
	return err
}

func (a *Adapter) Insert(ctx context.Context, item map[string]any) error {
	_, err := a.collection.InsertOne(ctx, bsonkit.ToBSONDoc(item))
	if mongo.IsDuplicateKeyError(err) {
		id, _ := item["id"].(string)
		return sderrors.NewDuplicateIDError(id)
	}
	return err
}

func (a *Adapter) Replace(ctx context.Context, id string, item map[string]any) error {
	_, err := a.collection.ReplaceOne(ctx, bson.M{"id": id}, bsonkit.ToBSONDoc(item), options.Replace().SetUpsert(true))
	return err
}

func (a *Adapter) Remove(ctx context.Context, id string) error {
	_, err := a.collection.DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (a *Adapter) RemoveAll(ctx context.Context, selectorDescription string, ids []string) error {
	_, err := a.collection.DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}})
	return err
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]map[string]any, error) {
	var out []map[string]any
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, bsonkit.ToItemDoc(doc))
	}
	return out, cur.Err()
}
