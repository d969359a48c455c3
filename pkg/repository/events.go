package repository

import "github.com/jdziat/simple-job-worker/pkg/core"

// Events returns a channel that receives repository events.
// Events are dropped for subscribers that fall behind.
func (r *Repository[P, R]) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	r.mu.Lock()
	r.eventSubs = append(r.eventSubs, ch)
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed.
func (r *Repository[P, R]) Unsubscribe(ch <-chan core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.eventSubs {
		if sub == ch {
			r.eventSubs = append(r.eventSubs[:i], r.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers without blocking.
func (r *Repository[P, R]) Emit(e core.Event) {
	r.mu.RLock()
	subs := make([]chan core.Event, len(r.eventSubs))
	copy(subs, r.eventSubs)
	r.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
