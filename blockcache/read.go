package blockcache

import (
	"context"

	"github.com/rapiddisk/rapiddisk-go/internal/jobpool"
)

// readPath implements the §4.4.3 read algorithm for a single-block-sized
// request.
func (c *Cache) readPath(req *Request) {
	dbn := req.Sector

	c.lock.Lock()
	res := c.lookupSet(dbn)
	if res.hit {
		if res.state == StateValid {
			idx := res.index
			c.entries[idx].State = StateCacheReadInProg
			c.lock.Unlock()
			c.issueCacheRead(req, idx)
			return
		}
		// A matching entry exists but is INPROG or CACHE_READ_INPROG — an
		// in-flight fill or read owns it. The spec treats this and the
		// case where the set-scan helper would have reported an
		// overlapping in-progress entry as INPROG_INVALID identically:
		// bypass to the source uncached (DESIGN.md resolves this Open
		// Question).
		c.lock.Unlock()
		c.bypassUncached(req, false)
		return
	}
	if res.index < 0 {
		// Miss, no slot available in the set.
		c.lock.Unlock()
		c.bypassUncached(req, false)
		return
	}

	idx := res.index
	if res.wasValidVictim {
		c.counters.CachedBlocks--
		c.counters.Replace++
		c.metrics.CachedBlocks.Dec()
		c.metrics.Replace.Inc()
	}
	c.entries[idx].Dbn = dbn
	c.entries[idx].State = StateInProg
	c.lock.Unlock()
	c.issueSourceReadForFill(req, idx)
}

// issueCacheRead dispatches an asynchronous read against the cache device
// for a hit, directly from a goroutine rather than the worker's queues —
// there is no further state transition to serialize through the single
// worker until the read completes.
func (c *Cache) issueCacheRead(req *Request, idx int64) {
	job, err := c.getJob()
	if err != nil {
		c.lock.Lock()
		c.entries[idx].State = StateValid
		c.lock.Unlock()
		req.Done(err)
		return
	}
	job.RW = jobpool.ReadCache
	job.Index = int32(idx)
	job.Cache = jobpool.Region{Sector: c.cacheSector(idx), Count: c.blockSizeSectors}

	go func() {
		err := c.cacheDev.ReadAt(context.Background(), req.Buf, job.Cache.Sector)
		c.completeCacheRead(req, idx, job, err)
	}()
}

// issueSourceReadForFill dispatches an asynchronous read against the
// source device to fill a cache miss.
func (c *Cache) issueSourceReadForFill(req *Request, idx int64) {
	job, err := c.getJob()
	if err != nil {
		c.lock.Lock()
		c.entries[idx].State = StateInvalid
		c.lock.Unlock()
		req.Done(err)
		return
	}
	job.RW = jobpool.ReadSource
	job.Index = int32(idx)
	job.Disk = jobpool.Region{Sector: req.Sector, Count: c.blockSizeSectors}

	go func() {
		err := c.sourceDev.ReadAt(context.Background(), req.Buf, job.Disk.Sector)
		c.completeSourceFillRead(req, idx, job, err)
	}()
}
