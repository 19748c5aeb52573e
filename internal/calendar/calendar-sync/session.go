// internal/calendar/calendar-sync/session.go
package calendarsync

import (
	"context"

	"office-affinity/internal/models"
)

// session is one connect..disconnect lifetime. It owns the pending queue and
// the background worker; cancelling ctx stops both.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	queue  *pendingQueue
	done   chan struct{}
	// connected remembers whether the provider accepted us, for sign-out.
	connected bool
}

func newSession(queueSize int) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		ctx:    ctx,
		cancel: cancel,
		queue:  newPendingQueue(queueSize),
		done:   make(chan struct{}),
	}
}

// joinContext returns a context cancelled when either parent or the session
// ends.
func (s *session) joinContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func modeLabel(state models.ConnectionState) string {
	if state == models.StateDemoFallback {
		return "demo"
	}
	return "provider"
}
