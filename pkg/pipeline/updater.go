package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joeycumines/go-microbatch"

	"github.com/hpc-pilot/agent/pkg/store"
)

// UpdateRequest is one lifecycle-state write, the unit the updater
// coalesces into per-collection ordered bulk operations (spec.md §4.7).
type UpdateRequest struct {
	Collection string
	Query      store.Query
	Update     store.Update

	// err is not set by the updater: Enqueue reports only submission
	// errors, and a flush that exhausts its retries is reported on Fatal().
	err error
}

// Updater batches update requests on BULK_COLLECTION_TIME and flushes
// them as ordered bulk writes per collection (spec.md §4.7). It is built
// on github.com/joeycumines/go-microbatch, which already implements the
// "flush after N items or T elapsed" policy the updater needs.
type Updater struct {
	st      store.Store
	batcher *microbatch.Batcher[UpdateRequest]
	fatalCh chan error
}

// New builds an Updater flushing every flushInterval (default
// BULK_COLLECTION_TIME, spec.md §4.7) or every maxBatchSize requests,
// whichever comes first.
func New(st store.Store, flushInterval time.Duration, maxBatchSize int) *Updater {
	u := &Updater{st: st, fatalCh: make(chan error, 1)}
	u.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       maxBatchSize,
		FlushInterval: flushInterval,
	}, u.flush)
	return u
}

// Enqueue submits one update request, blocking only long enough to hand
// it to the batcher.
func (u *Updater) Enqueue(ctx context.Context, req UpdateRequest) error {
	result, err := u.batcher.Submit(ctx, req)
	if err != nil {
		return err
	}
	_ = result
	return nil
}

// Fatal returns a channel that receives an error if the store becomes
// unreachable after the backoff policy is exhausted (spec.md §7
// "StoreUnreachable: the updater retries with bounded backoff; sustained
// failure is fatal").
func (u *Updater) Fatal() <-chan error {
	return u.fatalCh
}

// Shutdown flushes any pending batch and stops the updater.
func (u *Updater) Shutdown(ctx context.Context) error {
	return u.batcher.Shutdown(ctx)
}

// flush is the microbatch.BatchProcessor: it groups the batch's requests
// by collection into one ordered bulk op each and executes them,
// retrying transient store errors with bounded backoff before declaring
// the failure fatal.
func (u *Updater) flush(ctx context.Context, reqs []UpdateRequest) error {
	byCollection := map[string][]UpdateRequest{}
	var order []string
	for _, r := range reqs {
		if _, seen := byCollection[r.Collection]; !seen {
			order = append(order, r.Collection)
		}
		byCollection[r.Collection] = append(byCollection[r.Collection], r)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	for _, coll := range order {
		group := byCollection[coll]
		op := func() error {
			bulk := u.st.Bulk(coll)
			for _, r := range group {
				bulk.Find(r.Query).Update(r.Update)
			}
			_, err := bulk.Execute(ctx)
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
			wrapped := fmt.Errorf("%w: collection %s: %v", store.ErrUnreachable, coll, err)
			select {
			case u.fatalCh <- wrapped:
			default:
			}
			return wrapped
		}
	}
	return nil
}
