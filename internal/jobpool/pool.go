package jobpool

import (
	"sync"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
)

// MinPoolSize is the minimum bounded pool size from spec §3.5.
const MinPoolSize = 1024

// Pool is a fixed-size, pre-allocated set of Job records with an
// index-based freelist, avoiding per-job heap allocation on the hot path
// (spec §9's design note on owned containers vs. per-job heap churn).
// Exhaustion is reported immediately rather than blocking, per §7's
// transient-resource-error policy.
type Pool struct {
	jobs      []Job
	free      chan int
	outstanding sync.WaitGroup
}

// NewPool creates a pool of at least MinPoolSize jobs. size is rounded up
// to MinPoolSize if smaller.
func NewPool(size int) *Pool {
	if size < MinPoolSize {
		size = MinPoolSize
	}
	p := &Pool{
		jobs: make([]Job, size),
		free: make(chan int, size),
	}
	for i := range p.jobs {
		p.jobs[i].slot = i
		p.free <- i
	}
	return p
}

// Get returns a fresh Job from the pool, or blkerr.IOError if the pool is
// exhausted. It never blocks. Every successful Get counts toward the
// outstanding-job total that Wait drains on teardown (spec §4.3's
// "destruction barrier"), regardless of whether the job is later dispatched
// directly or pushed onto one of the worker's queues.
func (p *Pool) Get() (*Job, error) {
	select {
	case i := <-p.free:
		j := &p.jobs[i]
		*j = Job{slot: i}
		p.outstanding.Add(1)
		return j, nil
	default:
		return nil, blkerr.New(blkerr.IOError, "job pool exhausted (%d jobs)", len(p.jobs))
	}
}

// Put releases a job back to the pool for reuse and decrements the
// outstanding-job counter.
func (p *Pool) Put(j *Job) {
	p.free <- j.slot
	p.outstanding.Done()
}

// Wait blocks until every job obtained via Get has been returned via Put,
// the destruction barrier from spec §4.3/§5.
func (p *Pool) Wait() {
	p.outstanding.Wait()
}

// Len reports the total pool capacity.
func (p *Pool) Len() int { return len(p.jobs) }
