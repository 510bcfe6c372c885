package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-pilot/agent/pkg/store"
)

func TestUpdater_EnqueueFlushesToStore(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed("rp.session.1.cu", map[string]any{"uid": "unit.0001", "state": "NEW"})

	u := New(st, 10*time.Millisecond, 64)
	defer u.Shutdown(context.Background())

	err := u.Enqueue(context.Background(), UpdateRequest{
		Collection: "rp.session.1.cu",
		Query:      store.Query{"uid": "unit.0001"},
		Update:     store.Update{"$set": store.Fields{"state": "EXECUTING"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		docs := st.Snapshot("rp.session.1.cu")
		return len(docs) == 1 && docs[0]["state"] == "EXECUTING"
	}, time.Second, 5*time.Millisecond)
}

func TestUpdater_GroupsRequestsByCollectionInOneFlush(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed("rp.session.1.cu", map[string]any{"uid": "unit.a", "state": "NEW"})
	st.Seed("rp.session.1.p", map[string]any{"uid": "pilot.0000", "state": "LAUNCHING"})

	u := New(st, 10*time.Millisecond, 64)
	defer u.Shutdown(context.Background())
	err := u.flush(context.Background(), []UpdateRequest{
		{Collection: "rp.session.1.cu", Query: store.Query{"uid": "unit.a"}, Update: store.Update{"$set": store.Fields{"state": "DONE"}}},
		{Collection: "rp.session.1.p", Query: store.Query{"uid": "pilot.0000"}, Update: store.Update{"$set": store.Fields{"state": "ACTIVE"}}},
	})
	require.NoError(t, err)

	cuDocs := st.Snapshot("rp.session.1.cu")
	pDocs := st.Snapshot("rp.session.1.p")
	require.Len(t, cuDocs, 1)
	require.Len(t, pDocs, 1)
	assert.Equal(t, "DONE", cuDocs[0]["state"])
	assert.Equal(t, "ACTIVE", pDocs[0]["state"])
}

// failingStore is always unreachable, exercising the updater's bounded
// retry and Fatal channel (spec.md §7 "StoreUnreachable").
type failingStore struct{ store.Store }

func (failingStore) Bulk(collection string) store.BulkOp { return &failingBulkOp{} }

type failingBulkOp struct{}

func (b *failingBulkOp) Find(store.Query) store.BulkOp    { return b }
func (b *failingBulkOp) Update(store.Update) store.BulkOp { return b }
func (b *failingBulkOp) Execute(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func TestUpdater_SustainedFailureReportsFatal(t *testing.T) {
	u := New(failingStore{}, 10*time.Millisecond, 64)
	defer u.Shutdown(context.Background())

	// flush's own backoff has a 30s MaxElapsedTime; bounding the call's
	// context instead keeps this test fast without weakening the
	// assertion, since backoff.WithContext also stops on ctx expiry.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := u.flush(ctx, []UpdateRequest{
		{Collection: "rp.session.1.cu", Query: store.Query{"uid": "unit.a"}, Update: store.Update{"$set": store.Fields{"state": "DONE"}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnreachable)

	select {
	case fatal := <-u.Fatal():
		assert.ErrorIs(t, fatal, store.ErrUnreachable)
	case <-time.After(time.Second):
		t.Fatal("expected a fatal error on the Fatal channel")
	}
}
