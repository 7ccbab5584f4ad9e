package bus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// molecule is one priority-stage queue item: a single action, or an ordered
// group of actions belonging to one synchronized operation. Expansion into
// elementary actions happens when the item leaves the stage.
type molecule []*Action

// clearedForRelease reports whether every member is clear to go out.
func (m molecule) clearedForRelease() bool {
	for _, a := range m {
		if !a.ClearedForRelease() {
			return false
		}
	}
	return true
}

// PriorityStage is the ordered commit queue in front of the access stage.
// Items leave in the exact order they were committed, but only once their
// owner has cleared them for release, which happens out of band.
type PriorityStage struct {
	mu    sync.Mutex
	queue []molecule

	next       *AccessStage
	idle       time.Duration
	shutdownCh chan struct{}
	logger     *logrus.Entry
}

func newPriorityStage(next *AccessStage, idle time.Duration, shutdownCh chan struct{}, logger *logrus.Entry) *PriorityStage {
	return &PriorityStage{
		next:       next,
		idle:       idle,
		shutdownCh: shutdownCh,
		logger:     logger.WithField("stage", "priority"),
	}
}

func (s *PriorityStage) enqueue(m molecule) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
}

func (s *PriorityStage) pop() (molecule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, true
}

func (s *PriorityStage) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// run is the stage worker: pop the head, poll until it is cleared for
// release, then push its actions in order onto the access stage. The head
// blocks the queue while uncleared, which is what preserves commit order.
func (s *PriorityStage) run() {
	for {
		select {
		case <-s.shutdownCh:
			return
		default:
		}

		m, ok := s.pop()
		if !ok {
			time.Sleep(s.idle)
			continue
		}

		for !m.clearedForRelease() {
			select {
			case <-s.shutdownCh:
				return
			default:
				time.Sleep(s.idle)
			}
		}

		for _, a := range m {
			s.next.enqueue(a)
		}
	}
}
