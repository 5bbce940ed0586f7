package blockcache

import (
	"context"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
	"github.com/rapiddisk/rapiddisk-go/internal/blockio"
	"github.com/rapiddisk/rapiddisk-go/internal/jobpool"
)

// Submit is the BlockCache's single entry point for an upper-layer I/O
// request (spec §4.4.1). Done is invoked exactly once, synchronously or
// from a later goroutine, with the request's outcome.
func (c *Cache) Submit(req *Request) {
	if c.closing.isClosing() {
		req.Done(blkerr.Sentinel(blkerr.Busy))
		return
	}
	if req.Flush {
		req.Done(blkerr.New(blkerr.InvalidArgument, "flush/barrier requests are not supported"))
		return
	}

	blockBytes := c.blockSizeSectors * blockio.SectorSize

	c.lock.Lock()
	if req.Write {
		c.counters.Writes++
		c.metrics.Writes.Inc()
	} else {
		c.counters.Reads++
		c.metrics.Reads.Inc()
	}
	c.lock.Unlock()

	if req.byteLen() != blockBytes {
		// Non-block-sized requests are always served uncached (spec §4.4.1);
		// any overlapping cache entries must still be invalidated first so a
		// later cached read can't observe stale data underneath this I/O.
		c.bypassUncached(req, true)
		return
	}

	if req.Write {
		c.writePath(req)
	} else {
		c.readPath(req)
	}
}

// bypassUncached services req directly against the source device,
// optionally invalidating any overlapping cache entries first.
func (c *Cache) bypassUncached(req *Request, invalidateFirst bool) {
	if invalidateFirst {
		c.lock.Lock()
		c.invalidateOverlap(req.Sector, req.endSector(), req.Write)
		c.lock.Unlock()
	}

	c.lock.Lock()
	if req.Write {
		c.counters.UncachedWrites++
		c.metrics.UncachedWrites.Inc()
	} else {
		c.counters.UncachedReads++
		c.metrics.UncachedReads.Inc()
	}
	c.lock.Unlock()

	c.dispatchSourceIO(req)
}

// dispatchSourceIO issues an asynchronous, uncached I/O directly against
// the source device.
func (c *Cache) dispatchSourceIO(req *Request) {
	job, err := c.getJob()
	if err != nil {
		req.Done(err)
		return
	}
	job.Index = -1
	job.Disk = jobpool.Region{Sector: req.Sector, Count: req.byteLen() / blockio.SectorSize}

	if req.Write {
		job.RW = jobpool.WriteSource
		go func() {
			err := c.sourceDev.WriteAt(context.Background(), req.Buf, req.Sector)
			if err == nil {
				c.lock.Lock()
				c.counters.DiskWrites++
				c.lock.Unlock()
				c.metrics.DiskWrites.Inc()
			}
			c.finishJob(job)
			req.Done(err)
		}()
		return
	}

	job.RW = jobpool.ReadSource
	go func() {
		err := c.sourceDev.ReadAt(context.Background(), req.Buf, req.Sector)
		if err == nil {
			c.lock.Lock()
			c.counters.DiskReads++
			c.lock.Unlock()
			c.metrics.DiskReads.Inc()
		}
		c.finishJob(job)
		req.Done(err)
	}()
}
