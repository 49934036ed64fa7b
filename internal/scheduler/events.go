package scheduler

import (
	"sync"

	"github.com/meow-stack/actiondeck/internal/types"
)

// EventKind tags scheduler events.
type EventKind string

const (
	EventStatus   EventKind = "status"   // action status changed
	EventLog      EventKind = "log"      // a run log line
	EventFinished EventKind = "finished" // a run completed; Record is set
)

// Event is delivered to subscribers in the order the scheduler produced it.
type Event struct {
	Kind     EventKind
	ActionID string
	RunID    string
	Status   types.ActionStatus
	Line     string
	Record   *types.RunRecord
}

// subscriber queues events without bounding so a slow reader never blocks
// the sink; a pump goroutine delivers them in order.
type subscriber struct {
	out chan Event

	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	closed bool
}

func newSubscriber(buffer int) *subscriber {
	s := &subscriber{
		out:  make(chan Event, buffer),
		wake: make(chan struct{}, 1),
	}
	go s.pump()
	return s
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into out; after close it flushes what is queued
// and closes out.
func (s *subscriber) pump() {
	for range s.wake {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				closed := s.closed
				s.mu.Unlock()
				if closed {
					close(s.out)
					return
				}
				break
			}
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.out <- e
		}
	}
}
