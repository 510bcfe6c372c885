package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process fake of Store, used by component and
// end-to-end tests in place of a running Mongo deployment. It mirrors the
// teacher's approach of testing its worker pool against a hand-written
// fake executor rather than a real database.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
}

// NewMemoryStore returns an empty fake store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]map[string]any)}
}

// Seed inserts docs into collection directly, for test setup.
func (s *MemoryStore) Seed(collection string, docs ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], docs...)
}

// Snapshot returns a shallow copy of every document currently stored in
// collection, for test assertions.
func (s *MemoryStore) Snapshot(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	out := make([]map[string]any, len(docs))
	copy(out, docs)
	return out
}

func matches(doc map[string]any, q Query) bool {
	for k, v := range q {
		if doc[k] != v {
			return false
		}
	}
	return true
}

// applySet applies the subset of Mongo update-operator semantics the
// agent actually emits: $set and $push. An update with neither operator
// has its keys merged into the document as literal fields (other fields
// are kept), which is sufficient for tests.
func applySet(doc map[string]any, u Update) map[string]any {
	if doc == nil {
		doc = map[string]any{}
	}
	if set, ok := u["$set"].(map[string]any); ok {
		for k, v := range set {
			doc[k] = v
		}
	}
	if push, ok := u["$push"].(map[string]any); ok {
		for k, v := range push {
			existing, _ := doc[k].([]any)
			doc[k] = append(existing, v)
		}
	}
	if len(u) == 0 || (u["$set"] == nil && u["$push"] == nil) {
		for k, v := range u {
			doc[k] = v
		}
	}
	return doc
}

func (s *MemoryStore) FindAndModify(_ context.Context, collection string, q Query, u Update, fields Fields) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, doc := range docs {
		if matches(doc, q) {
			updated := applySet(doc, u)
			docs[i] = updated
			s.collections[collection] = docs
			return project(updated, fields), nil
		}
	}
	return nil, nil
}

func project(doc map[string]any, fields Fields) map[string]any {
	if len(fields) == 0 {
		out := make(map[string]any, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(fields))
	for k := range fields {
		out[k] = doc[k]
	}
	return out
}

func (s *MemoryStore) Find(_ context.Context, collection string, q Query) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []map[string]any
	for _, doc := range s.collections[collection] {
		if matches(doc, q) {
			matched = append(matched, doc)
		}
	}
	return &memoryCursor{docs: matched, pos: -1}, nil
}

func (s *MemoryStore) Update(_ context.Context, collection string, q Query, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, doc := range docs {
		if matches(doc, q) {
			docs[i] = applySet(doc, u)
		}
	}
	s.collections[collection] = docs
	return nil
}

func (s *MemoryStore) Bulk(collection string) BulkOp {
	return &memoryBulkOp{store: s, collection: collection}
}

func (s *MemoryStore) Close(context.Context) error { return nil }

type memoryCursor struct {
	docs []map[string]any
	pos  int
}

func (c *memoryCursor) Next(context.Context) bool {
	c.pos++
	return c.pos < len(c.docs)
}

func (c *memoryCursor) Decode(v any) error {
	ptr, ok := v.(*map[string]any)
	if !ok {
		return errDecodeTarget
	}
	*ptr = c.docs[c.pos]
	return nil
}

func (c *memoryCursor) Err() error                 { return nil }
func (c *memoryCursor) Close(context.Context) error { return nil }

var errDecodeTarget = &decodeError{}

type decodeError struct{}

func (*decodeError) Error() string {
	return "store: memory cursor Decode requires a *map[string]any target"
}

// memoryBulkOp mirrors mongoBulkOp's find/update accumulation: each pair
// is queued and applied against the fake store's locked state when
// Execute runs, in submission order, satisfying the "ordered bulk op"
// contract closely enough for tests.
type memoryBulkOp struct {
	store      *MemoryStore
	collection string
	pending    Query
	ops        []func() int
}

func (b *memoryBulkOp) Find(q Query) BulkOp {
	b.pending = q
	return b
}

func (b *memoryBulkOp) Update(u Update) BulkOp {
	q := b.pending
	b.pending = nil
	b.ops = append(b.ops, func() int {
		b.store.mu.Lock()
		defer b.store.mu.Unlock()
		docs := b.store.collections[b.collection]
		n := 0
		for i, doc := range docs {
			if matches(doc, q) {
				docs[i] = applySet(doc, u)
				n++
			}
		}
		b.store.collections[b.collection] = docs
		return n
	})
	return b
}

func (b *memoryBulkOp) Execute(context.Context) (int, error) {
	total := 0
	for _, op := range b.ops {
		total += op()
	}
	b.ops = nil
	return total, nil
}
