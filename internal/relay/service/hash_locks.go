package service

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const lockStripes = 64

// hashLocks serializes mutations per order hash with striped mutexes. A
// stripe collision only costs throughput, never correctness, so a fixed
// stripe count avoids per-hash lock bookkeeping.
type hashLocks struct {
	stripes [lockStripes]sync.Mutex
}

// lock acquires the stripe for h and returns its release function.
func (l *hashLocks) lock(h common.Hash) func() {
	m := &l.stripes[h[len(h)-1]%lockStripes]
	m.Lock()
	return m.Unlock
}
