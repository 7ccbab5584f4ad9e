package bus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AccessStage is the single-slot mutual-exclusion arbiter in front of the
// transport. It grants a fresh exclusive token to one action at a time and
// blocks until the holder releases it, so at most one action can ever be
// writing to the channel.
type AccessStage struct {
	mu    sync.Mutex
	queue []*Action

	transport  Transport
	idle       time.Duration
	shutdownCh chan struct{}
	logger     *logrus.Entry
}

func newAccessStage(transport Transport, idle time.Duration, shutdownCh chan struct{}, logger *logrus.Entry) *AccessStage {
	return &AccessStage{
		transport:  transport,
		idle:       idle,
		shutdownCh: shutdownCh,
		logger:     logger.WithField("stage", "access"),
	}
}

func (s *AccessStage) enqueue(a *Action) {
	s.mu.Lock()
	s.queue = append(s.queue, a)
	s.mu.Unlock()
}

func (s *AccessStage) pop() (*Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false
	}
	a := s.queue[0]
	s.queue = s.queue[1:]
	return a, true
}

func (s *AccessStage) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// run grants the channel to queued actions one at a time, in priority-stage
// order, waiting for each token to come back before moving on.
func (s *AccessStage) run() {
	for {
		select {
		case <-s.shutdownCh:
			return
		default:
		}

		a, ok := s.pop()
		if !ok {
			time.Sleep(s.idle)
			continue
		}

		token := newAccessToken(s.transport)

		s.logger.WithFields(logrus.Fields{
			"address": a.Addr,
			"port":    a.Port,
		}).Debug("channel access granted")

		a.grantAccess(token)

		select {
		case <-token.Released():
		case <-s.shutdownCh:
			return
		}
	}
}
