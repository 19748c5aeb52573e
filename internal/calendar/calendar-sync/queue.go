// internal/calendar/calendar-sync/queue.go
package calendarsync

import (
	"context"
	"sync"
	"time"

	"office-affinity/internal/models"
)

// pendingQueue is the session's FIFO of records awaiting sync. A key already
// queued keeps its position and takes the newer snapshot. The queue holds at
// most one entry per key, so it never grows past the tracker's record count
// and never turns a record away.
type pendingQueue struct {
	mu     sync.Mutex
	order  []models.PresenceKey
	items  map[models.PresenceKey]models.PresenceRecord
	busy   int
	notify chan struct{}
}

// newPendingQueue preallocates room for capacity keys.
func newPendingQueue(capacity int) *pendingQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &pendingQueue{
		order:  make([]models.PresenceKey, 0, capacity),
		items:  make(map[models.PresenceKey]models.PresenceRecord, capacity),
		notify: make(chan struct{}, 1),
	}
}

func (q *pendingQueue) push(rec models.PresenceRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := rec.Key()
	if _, ok := q.items[key]; !ok {
		q.order = append(q.order, key)
	}
	q.items[key] = rec
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks for the next record. The caller must call done afterwards.
func (q *pendingQueue) pop(ctx context.Context) (models.PresenceRecord, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			key := q.order[0]
			q.order[0] = models.PresenceKey{}
			q.order = q.order[1:]
			rec := q.items[key]
			delete(q.items, key)
			q.busy++
			q.mu.Unlock()
			return rec, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.PresenceRecord{}, false
		case <-q.notify:
		}
	}
}

func (q *pendingQueue) done() {
	q.mu.Lock()
	q.busy--
	q.mu.Unlock()
}

// len counts queued plus in-flight records.
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order) + q.busy
}

// waitIdle polls until nothing is queued or in flight, or ctx ends.
func (q *pendingQueue) waitIdle(ctx context.Context) bool {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.len() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// keyLocks serializes syncs of the same presence key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[models.PresenceKey]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[models.PresenceKey]*keyLock)}
}

// lock acquires key or fails when ctx ends first.
func (k *keyLocks) lock(ctx context.Context, key models.PresenceKey) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	release := func() {
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
