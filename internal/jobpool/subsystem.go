package jobpool

import "sync"

// Subsystem bundles one process-wide Pool and its Worker, matching spec
// §5's "Shared resources" paragraph: the job pool, and the completion/io
// FIFOs, are shared by every BlockCache instance in the process. Scope this
// singleton to the process the way §9's design note directs ("a 'cache
// subsystem' singleton object initialized at module load and torn down at
// unload"), but expose its lifecycle explicitly via Default/ResetDefault rather
// than a package-init side effect, so a host can restart it between tests.
type Subsystem struct {
	Pool   *Pool
	Worker *Worker
}

var (
	defaultOnce sync.Once
	defaultSub  *Subsystem
	defaultMu   sync.Mutex
)

// Default returns the process-wide job subsystem, creating it with
// MinPoolSize jobs on first use.
func Default() *Subsystem {
	defaultOnce.Do(func() {
		defaultSub = New(MinPoolSize)
	})
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultSub
}

// New creates a standalone Subsystem with its own pool and worker; tests
// use this to avoid sharing state across unrelated BlockCache instances.
func New(poolSize int) *Subsystem {
	pool := NewPool(poolSize)
	return &Subsystem{Pool: pool, Worker: NewWorker(pool)}
}

// ResetDefault tears down and replaces the process-wide subsystem. Intended
// for tests that need a clean pool between cases.
func ResetDefault() {
	defaultMu.Lock()
	old := defaultSub
	defaultMu.Unlock()
	if old != nil {
		old.Worker.Close()
	}
	defaultMu.Lock()
	defaultSub = nil
	defaultMu.Unlock()
	defaultOnce = sync.Once{}
}
