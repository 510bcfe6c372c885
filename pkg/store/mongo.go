package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the production Store implementation backed by
// go.mongodb.org/mongo-driver. It is the Go counterpart of the original
// pymongo-backed coordination-store client (spec.md §6).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and selects dbName, verifying connectivity with a
// ping before returning.
func Connect(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

func toBSON(m map[string]any) bson.M {
	out := bson.M(m)
	if out == nil {
		out = bson.M{}
	}
	return out
}

func (s *MongoStore) FindAndModify(ctx context.Context, collection string, q Query, u Update, fields Fields) (map[string]any, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(fields) > 0 {
		opts = opts.SetProjection(toBSON(fields))
	}
	var result bson.M
	err := s.db.Collection(collection).FindOneAndUpdate(ctx, toBSON(q), toBSON(u), opts).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find_and_modify on %s: %w", collection, err)
	}
	return map[string]any(result), nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query) (Cursor, error) {
	cur, err := s.db.Collection(collection).Find(ctx, toBSON(q))
	if err != nil {
		return nil, fmt.Errorf("store: find on %s: %w", collection, err)
	}
	return &mongoCursor{cur: cur}, nil
}

func (s *MongoStore) Update(ctx context.Context, collection string, q Query, u Update) error {
	_, err := s.db.Collection(collection).UpdateMany(ctx, toBSON(q), toBSON(u))
	if err != nil {
		return fmt.Errorf("store: update on %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) Bulk(collection string) BulkOp {
	return &mongoBulkOp{coll: s.db.Collection(collection)}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCursor struct {
	cur *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) bool    { return c.cur.Next(ctx) }
func (c *mongoCursor) Decode(v any) error               { return c.cur.Decode(v) }
func (c *mongoCursor) Err() error                       { return c.cur.Err() }
func (c *mongoCursor) Close(ctx context.Context) error   { return c.cur.Close(ctx) }

// mongoBulkOp accumulates find/update pairs into an ordered bulk write,
// the Go equivalent of the original client's
// `bulk = collection.initialize_ordered_bulk_op(); bulk.find(q).update(u)`
// pattern (spec.md §6), used by the updater (§4.8) to flush batched
// lifecycle-state writes in one round trip.
type mongoBulkOp struct {
	coll    *mongo.Collection
	models  []mongo.WriteModel
	pending Query
}

func (b *mongoBulkOp) Find(q Query) BulkOp {
	b.pending = q
	return b
}

func (b *mongoBulkOp) Update(u Update) BulkOp {
	b.models = append(b.models, mongo.NewUpdateManyModel().SetFilter(toBSON(b.pending)).SetUpdate(toBSON(u)))
	b.pending = nil
	return b
}

func (b *mongoBulkOp) Execute(ctx context.Context) (int, error) {
	if len(b.models) == 0 {
		return 0, nil
	}
	res, err := b.coll.BulkWrite(ctx, b.models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("store: bulk write: %w", err)
	}
	return int(res.ModifiedCount), nil
}
