package blockcache

import (
	"math/bits"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
)

// log2 returns log2(n) for a power-of-two n, or an error otherwise.
func log2(n uint64) (uint, error) {
	if n == 0 || bits.OnesCount64(n) != 1 {
		return 0, blkerr.New(blkerr.InvalidArgument, "%d is not a power of two", n)
	}
	return uint(bits.TrailingZeros64(n)), nil
}

// setIndex computes hash(dbn) per spec §4.4.2:
//
//	hash(dbn) = (dbn >> (block_shift + consecutive_shift)) mod (size_blocks >> consecutive_shift)
func (c *Cache) setIndex(dbn uint64) uint64 {
	return (dbn >> (c.blockShift + c.consecutiveShift)) % c.numSets
}

// setRange returns the half-open [start, end) entry index range for set s.
func (c *Cache) setRange(s uint64) (uint64, uint64) {
	start := s * c.assoc
	return start, start + c.assoc
}

// lookupResult is the outcome of scanning one set for dbn, per §4.4.2.
type lookupResult struct {
	hit          bool
	state        State
	index        int64 // valid when hit, or the chosen slot for a miss; -1 if no slot available
	wasValidVictim bool
}

// lookupSet scans the assoc entries of dbn's set. Callers must hold c.lock.
func (c *Cache) lookupSet(dbn uint64) lookupResult {
	s := c.setIndex(dbn)
	start, end := c.setRange(s)

	invalidSlot := int64(-1)
	for i := start; i < end; i++ {
		e := &c.entries[i]
		if e.Dbn == dbn && (e.State == StateValid || e.State == StateInProg || e.State == StateCacheReadInProg) {
			return lookupResult{hit: true, state: e.State, index: int64(i)}
		}
		if e.State == StateInvalid && invalidSlot < 0 {
			invalidSlot = int64(i)
		}
	}
	if invalidSlot >= 0 {
		return lookupResult{index: invalidSlot}
	}

	// Sweep from set_lru_next[s] forward, wrapping, for the first VALID
	// slot (spec §4.4.2's replacement policy).
	next := c.setLRUNext[s]
	for i := uint64(0); i < c.assoc; i++ {
		idx := start + (next-start+i)%c.assoc
		if c.entries[idx].State == StateValid {
			c.setLRUNext[s] = start + (idx-start+1)%c.assoc
			return lookupResult{index: int64(idx), wasValidVictim: true}
		}
	}
	return lookupResult{index: -1}
}
