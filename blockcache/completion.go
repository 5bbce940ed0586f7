package blockcache

import (
	"context"

	"github.com/rapiddisk/rapiddisk-go/internal/jobpool"
)

// completeCacheRead handles a finished READ_CACHE job (spec §4.4.6): on
// success, while the entry is still CACHE_READ_INPROG, promote it to VALID
// and deliver the data. Otherwise — the entry was invalidated out from
// under the read, or the cache device itself failed — the job is re-tagged
// READ_CACHE_DONE and pushed to the completion queue so the worker can run
// the bypass retry under the single completion-processing path. That entry
// was counted in cached_blocks while VALID, so finalizing it to INVALID here
// must undo that count exactly once (spec §3.4's cached_blocks invariant).
func (c *Cache) completeCacheRead(req *Request, idx int64, job *jobpool.Job, err error) {
	c.lock.Lock()
	still := c.entries[idx].State == StateCacheReadInProg
	if err == nil && still {
		c.entries[idx].State = StateValid
		c.counters.CacheHits++
		c.counters.CacheReads++
		c.lock.Unlock()
		c.metrics.CacheHits.Inc()
		c.metrics.CacheReads.Inc()
		c.finishJob(job)
		req.Done(nil)
		return
	}
	c.lock.Unlock()

	job.RW = jobpool.ReadCacheDone
	job.Done = func(j *jobpool.Job) {
		c.lock.Lock()
		c.entries[idx].State = StateInvalid
		c.counters.CachedBlocks--
		c.lock.Unlock()
		c.metrics.CachedBlocks.Dec()
		c.releaseJob()
		c.bypassUncached(req, false)
	}
	if subErr := c.sub.Worker.SubmitCompletion(job); subErr != nil {
		job.Done(job)
		c.sub.Pool.Put(job)
	}
}

// completeSourceFillRead handles a finished READ_SOURCE job issued to fill a
// cache miss (spec §4.4.3 step 4, §4.4.6). On error or concurrent
// invalidation the data already read is delivered immediately and the cache
// copy is dropped. On success the request is NOT ended here: per §4.4.6
// ("WRITE_CACHE: end the original request successfully"), the request ends
// only once the populate write reaches the cache device, so a caller that
// reuses req.Buf right after Done can never race the background cache
// write with its own buffer.
func (c *Cache) completeSourceFillRead(req *Request, idx int64, job *jobpool.Job, err error) {
	c.lock.Lock()
	invalidated := c.entries[idx].State == StateInProgInvalid
	if err != nil || invalidated {
		c.entries[idx].State = StateInvalid
		if err == nil {
			c.counters.DiskReads++
		}
		c.lock.Unlock()
		if err == nil {
			c.metrics.DiskReads.Inc()
		}
		c.finishJob(job)
		req.Done(err)
		return
	}
	c.counters.DiskReads++
	c.lock.Unlock()
	c.metrics.DiskReads.Inc()

	job.RW = jobpool.WriteCache
	job.Cache = jobpool.Region{Sector: c.cacheSector(idx), Count: c.blockSizeSectors}
	buf := req.Buf
	job.Action = func(ctx context.Context) error { return c.cacheDev.WriteAt(ctx, buf, job.Cache.Sector) }
	job.Done = func(j *jobpool.Job) {
		c.completeWriteCache(req, idx, j.Err)
		c.releaseJob()
	}
	if subErr := c.sub.Worker.SubmitIO(job); subErr != nil {
		c.completeWriteCache(req, idx, subErr)
		c.finishJob(job)
	}
}

// completeWriteCache finalizes a cache-populate write (spec §4.4.6's
// WRITE_CACHE case): the original request always ends successfully here —
// the read or write it asked for already reached source or cache-read
// before this job was even issued — while the entry itself is promoted to
// VALID on success, or reverted to INVALID if the write failed or the entry
// was invalidated while in flight.
func (c *Cache) completeWriteCache(req *Request, idx int64, err error) {
	c.lock.Lock()
	if err != nil {
		c.entries[idx].State = StateInvalid
		c.lock.Unlock()
		req.Done(nil)
		return
	}
	if c.entries[idx].State == StateInProgInvalid {
		c.entries[idx].State = StateInvalid
		c.lock.Unlock()
		req.Done(nil)
		return
	}
	c.entries[idx].State = StateValid
	c.counters.CachedBlocks++
	c.counters.CacheWrites++
	c.lock.Unlock()
	c.metrics.CachedBlocks.Inc()
	c.metrics.CacheWrites.Inc()
	req.Done(nil)
}

// completeSourceWrite finalizes the write-through path's source write (spec
// §4.4.4, §4.4.6's WRITE_SOURCE case): failure reverts the entry to INVALID
// and ends the request with the error immediately. Success does not end the
// request yet — it re-tags the job WRITE_CACHE and hands it to the I/O
// queue; the request ends once that populate write completes, per
// completeWriteCache's doc comment above.
func (c *Cache) completeSourceWrite(req *Request, idx int64, job *jobpool.Job, err error) {
	if err != nil {
		c.lock.Lock()
		c.entries[idx].State = StateInvalid
		c.lock.Unlock()
		c.finishJob(job)
		req.Done(err)
		return
	}
	c.lock.Lock()
	c.counters.DiskWrites++
	c.lock.Unlock()
	c.metrics.DiskWrites.Inc()

	job.RW = jobpool.WriteCache
	job.Cache = jobpool.Region{Sector: c.cacheSector(idx), Count: c.blockSizeSectors}
	buf := req.Buf
	job.Action = func(ctx context.Context) error { return c.cacheDev.WriteAt(ctx, buf, job.Cache.Sector) }
	job.Done = func(j *jobpool.Job) {
		c.completeWriteCache(req, idx, j.Err)
		c.releaseJob()
	}
	if subErr := c.sub.Worker.SubmitIO(job); subErr != nil {
		c.completeWriteCache(req, idx, subErr)
		c.finishJob(job)
	}
}
