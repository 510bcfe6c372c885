package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FindAndModify(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("rp.session.1.cu", map[string]any{"uid": "unit.0001", "state": "NEW"})

	ctx := context.Background()
	got, err := s.FindAndModify(ctx,
		"rp.session.1.cu",
		Query{"uid": "unit.0001"},
		Update{"$set": map[string]any{"state": "PENDING_EXECUTION"}},
		Fields{"state": 1},
	)
	require.NoError(t, err)
	assert.Equal(t, "PENDING_EXECUTION", got["state"])

	snap := s.Snapshot("rp.session.1.cu")
	require.Len(t, snap, 1)
	assert.Equal(t, "PENDING_EXECUTION", snap[0]["state"])
}

func TestMemoryStore_FindAndModify_NoMatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	got, err := s.FindAndModify(ctx, "rp.session.1.cu", Query{"uid": "missing"}, Update{"$set": map[string]any{"state": "X"}}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_Find_StreamsMatches(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("rp.session.1.cu",
		map[string]any{"uid": "unit.0001", "state": "NEW"},
		map[string]any{"uid": "unit.0002", "state": "DONE"},
		map[string]any{"uid": "unit.0003", "state": "NEW"},
	)

	ctx := context.Background()
	cur, err := s.Find(ctx, "rp.session.1.cu", Query{"state": "NEW"})
	require.NoError(t, err)
	defer cur.Close(ctx)

	var uids []string
	var doc map[string]any
	for cur.Next(ctx) {
		require.NoError(t, cur.Decode(&doc))
		uids = append(uids, doc["uid"].(string))
	}
	require.NoError(t, cur.Err())
	assert.ElementsMatch(t, []string{"unit.0001", "unit.0003"}, uids)
}

func TestMemoryStore_Update_AppliesToAllMatches(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("rp.session.1.cu",
		map[string]any{"uid": "unit.0001", "state": "EXECUTING"},
		map[string]any{"uid": "unit.0002", "state": "EXECUTING"},
	)
	ctx := context.Background()
	err := s.Update(ctx, "rp.session.1.cu", Query{"state": "EXECUTING"}, Update{"$set": map[string]any{"state": "DONE"}})
	require.NoError(t, err)

	for _, doc := range s.Snapshot("rp.session.1.cu") {
		assert.Equal(t, "DONE", doc["state"])
	}
}

func TestMemoryStore_Bulk_OrderedExecute(t *testing.T) {
	s := NewMemoryStore()
	s.Seed("rp.session.1.cu",
		map[string]any{"uid": "unit.0001", "state": "EXECUTING"},
		map[string]any{"uid": "unit.0002", "state": "STAGING_OUTPUT"},
	)

	bulk := s.Bulk("rp.session.1.cu")
	bulk.Find(Query{"uid": "unit.0001"}).Update(Update{"$set": map[string]any{"state": "DONE"}})
	bulk.Find(Query{"uid": "unit.0002"}).Update(Update{"$set": map[string]any{"state": "FAILED"}})

	n, err := bulk.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap := s.Snapshot("rp.session.1.cu")
	byUID := map[string]string{}
	for _, d := range snap {
		byUID[d["uid"].(string)] = d["state"].(string)
	}
	assert.Equal(t, "DONE", byUID["unit.0001"])
	assert.Equal(t, "FAILED", byUID["unit.0002"])
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "rp.session.1.cu", CollectionName("rp.session.1", CollectionUnits))
	assert.Equal(t, "rp.session.1.p", CollectionName("rp.session.1", CollectionPilots))
}
