// Package testutil holds in-memory collaborators shared by package tests.
package testutil

import (
	"context"
	"sort"
	"sync"

	"office-affinity/internal/models"
)

// FakeProvider is an in-memory calendar provider. CreateEvent upserts by
// idempotency key, so Events never holds two events for one key.
type FakeProvider struct {
	mu       sync.Mutex
	authErr  error
	failures []error
	events   map[string]models.CalendarEvent
	calls    int
	signOuts int
	gate     chan struct{}
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{events: make(map[string]models.CalendarEvent)}
}

func (f *FakeProvider) Name() string { return "fake" }

// RejectAuth makes Authenticate fail with err.
func (f *FakeProvider) RejectAuth(err error) {
	f.mu.Lock()
	f.authErr = err
	f.mu.Unlock()
}

// FailNext queues errors returned by the next CreateEvent calls, in order.
func (f *FakeProvider) FailNext(errs ...error) {
	f.mu.Lock()
	f.failures = append(f.failures, errs...)
	f.mu.Unlock()
}

// Block makes CreateEvent wait until the returned release func is called or
// the call's context ends.
func (f *FakeProvider) Block() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeProvider) Authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authErr
}

func (f *FakeProvider) CreateEvent(ctx context.Context, event models.CalendarEvent) (string, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return "", err
	}
	event.ID = "evt-" + event.IdempotencyKey
	f.events[event.IdempotencyKey] = event
	return event.ID, nil
}

func (f *FakeProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	return nil
}

// Events returns stored events sorted by idempotency key.
func (f *FakeProvider) Events() []models.CalendarEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CalendarEvent, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdempotencyKey < out[j].IdempotencyKey })
	return out
}

// Calls counts CreateEvent invocations, failed ones included.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeProvider) SignOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}
