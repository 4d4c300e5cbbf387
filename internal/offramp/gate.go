package offramp

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionGate serializes submissions per wallet. The wallet's signing
// capability must never be used by two executions at once, and sessions
// are constructed per request, so the guard lives outside any single
// session and is shared through the session factory.
type SubmissionGate struct {
	mu       sync.Mutex
	inFlight map[common.Address]struct{}
}

func NewSubmissionGate() *SubmissionGate {
	return &SubmissionGate{inFlight: make(map[common.Address]struct{})}
}

func (g *SubmissionGate) tryAcquire(holder common.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[holder]; busy {
		return false
	}
	g.inFlight[holder] = struct{}{}
	return true
}

func (g *SubmissionGate) release(holder common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, holder)
}
