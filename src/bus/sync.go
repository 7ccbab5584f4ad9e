package bus

import "sync"

// SyncToken is the rendezvous shared by the actions of one grouped call
// across several nodes. Each participant pushes its candidate value for a
// named parameter while building its payload, then pulls the aggregate
// before finalizing, so every participant encodes the same agreed value.
// The token lives exactly as long as the distributed call that created it.
type SyncToken struct {
	mu      sync.Mutex
	parties int
	pushed  map[string][]float64
}

// NewSyncToken creates a token shared by the given number of participants.
func NewSyncToken(parties int) *SyncToken {
	return &SyncToken{
		parties: parties,
		pushed:  make(map[string][]float64),
	}
}

// Parties returns the number of participants sharing the token.
func (s *SyncToken) Parties() int {
	return s.parties
}

// Push records one participant's candidate value for a named parameter.
func (s *SyncToken) Push(name string, v float64) {
	s.mu.Lock()
	s.pushed[name] = append(s.pushed[name], v)
	s.mu.Unlock()
}

// Ready reports whether every participant has pushed the named parameter.
func (s *SyncToken) Ready(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushed[name]) >= s.parties
}

// Max returns the largest pushed value for the named parameter. The second
// result is false when nothing has been pushed yet.
func (s *SyncToken) Max(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.pushed[name]
	if len(vs) == 0 {
		return 0, false
	}

	max := vs[0]
	for _, v := range vs[1:] {
		if v > max {
			max = v
		}
	}
	return max, true
}
