package blockcache

// overlaps reports whether [aStart, aStart+aLen) and [bStart, bStart+bLen)
// intersect.
func overlaps(aStart, aLen, bStart, bLen uint64) bool {
	aEnd := aStart + aLen
	bEnd := bStart + bLen
	return aStart < bEnd && bStart < aEnd
}

// invalidateOverlap implements spec §4.4.5: for each of the start- and
// end-sets of [ioStart, ioEnd), invalidate every non-INVALID entry whose
// cached range overlaps the I/O range. Returns the number of entries that
// were in-progress and got demoted to INPROG_INVALID, which callers use to
// decide whether to bypass. Callers must hold c.lock.
func (c *Cache) invalidateOverlap(ioStart, ioEnd uint64, isWrite bool) int {
	ioLen := ioEnd - ioStart
	sets := c.boundingSets(ioStart, ioEnd)

	inProgInvalidated := 0
	for _, s := range sets {
		start, end := c.setRange(s)
		for i := start; i < end; i++ {
			e := &c.entries[i]
			if e.State == StateInvalid {
				continue
			}
			if !overlaps(e.Dbn, c.blockSizeSectors, ioStart, ioLen) {
				continue
			}
			switch e.State {
			case StateValid:
				e.State = StateInvalid
				c.counters.CachedBlocks--
				c.metrics.CachedBlocks.Dec()
			case StateInProg, StateCacheReadInProg:
				e.State = StateInProgInvalid
				inProgInvalidated++
			}
			if isWrite {
				c.counters.WrInvalidates++
				c.metrics.WrInvalidates.Inc()
			} else {
				c.counters.RdInvalidates++
				c.metrics.RdInvalidates.Inc()
			}
		}
	}
	return inProgInvalidated
}

// boundingSets returns the (at most two) distinct sets touched by
// [ioStart, ioEnd): the set of the request's starting dbn and the set of
// its last covered sector, per §4.4.5 ("the start sector's set and the end
// sector's set").
func (c *Cache) boundingSets(ioStart, ioEnd uint64) []uint64 {
	startSet := c.setIndex(ioStart)
	endSet := c.setIndex(ioEnd - 1)
	if endSet == startSet {
		return []uint64{startSet}
	}
	return []uint64{startSet, endSet}
}
