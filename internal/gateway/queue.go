package gateway

import (
	"sync"

	"github.com/openagents/network/internal/event"
)

// agentQueue is the bounded, per-recipient delivery queue spec.md §9
// describes as "a bounded channel per agent". Enqueue is serialized per
// agent via mu so concurrent submits fanning out to the same recipient
// never interleave (spec.md §4.2's ordering requirement).
type agentQueue struct {
	mu     sync.Mutex
	ch     chan event.Event
	policy event.OverflowPolicy
}

func newAgentQueue(capacity int, policy event.OverflowPolicy) *agentQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &agentQueue{ch: make(chan event.Event, capacity), policy: policy}
}

// enqueue returns delivered=true if e was queued (possibly after
// dropping an older event), or disconnect=true if the policy is
// Disconnect and the queue was full — the caller must evict the agent.
func (q *agentQueue) enqueue(e event.Event) (delivered bool, disconnect bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- e:
		return true, false
	default:
	}

	switch q.policy {
	case event.Disconnect:
		return false, true
	default: // DropOldest
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- e:
			return true, false
		default:
			return false, false
		}
	}
}
