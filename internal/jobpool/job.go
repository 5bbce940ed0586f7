// Package jobpool implements the bounded job pool and single-worker
// completion/dispatch queues shared by every BlockCache instance in the
// process (spec §3.5, §4.3, §9's "Global process state" scoped to the
// cache subsystem). It generalizes the teacher's process-wide, sync.Map-
// backed bookkeeping and the owned-vector-vs-intrusive-FIFO distinction
// from spec §9's design notes: the pool itself is a fixed array with an
// index-based freelist (no per-job heap churn on the hot path), while the
// two work queues are plain Go channels, the idiomatic Go substitute for
// an intrusive linked FIFO drained by one consumer goroutine.
package jobpool

import "context"

// RW tags what a Job does, per spec §3.5.
type RW int

const (
	ReadCache RW = iota
	WriteCache
	ReadSource
	WriteSource
	ReadCacheDone
)

func (rw RW) String() string {
	switch rw {
	case ReadCache:
		return "READ_CACHE"
	case WriteCache:
		return "WRITE_CACHE"
	case ReadSource:
		return "READ_SOURCE"
	case WriteSource:
		return "WRITE_SOURCE"
	case ReadCacheDone:
		return "READ_CACHE_DONE"
	default:
		return "UNKNOWN"
	}
}

// Region is a sector range on some device.
type Region struct {
	Sector uint64
	Count  uint64
}

// Job is the unit passed between a BlockCache instance and the job pool
// worker (spec §3.5). Action performs the job's actual work (a device I/O
// call, or a bypass resubmission) and is invoked by the worker; Done is
// invoked exactly once, with the result, after Action returns — callers use
// it to run the state-machine transition from spec §4.4.6. The worker
// returns the job to its Pool once Done returns.
type Job struct {
	// Disk is the region on the source device this job addresses.
	Disk Region
	// Cache is the region on the cache device this job addresses.
	Cache Region
	// Index is the cache entry this job is acting on, or -1 for a bypass.
	Index int32
	// RW is this job's operation tag.
	RW RW
	// Err carries the outcome once Action has run.
	Err error
	// Action is the work to perform; set by the caller before SubmitIO.
	Action func(ctx context.Context) error
	// Done is called with the job and its outcome after Action completes
	// (or immediately, for completion-queue jobs that carry no Action).
	// Implementations must not block.
	Done func(job *Job)

	slot int
}
