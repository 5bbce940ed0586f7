package blockcache

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
	"github.com/rapiddisk/rapiddisk-go/internal/blockio"
	"github.com/rapiddisk/rapiddisk-go/internal/diag"
	"github.com/rapiddisk/rapiddisk-go/internal/jobpool"
	metricspkg "github.com/rapiddisk/rapiddisk-go/internal/metrics"
	"github.com/rapiddisk/rapiddisk-go/internal/spinlock"
	"github.com/rapiddisk/rapiddisk-go/ramdisk"
)

// Version is the status-readout version string (spec §6.4).
const Version = "rapiddisk-go blockcache 1.0"

// DefaultAssoc is the default associativity from spec §3.4/§6.2.
const DefaultAssoc = 512

// DefaultBlockSizeSectors is PAGE_SIZE/512 for a typical 4 KiB page.
const DefaultBlockSizeSectors = 8

// Config holds the BlockCache construction parameters (spec §4.4.7, §6.2).
type Config struct {
	SourceDev  blockio.BlockDevice
	SourcePath string
	CacheDev   blockio.BlockDevice
	CachePath  string

	// SizeBlocks is the requested cache size in cache blocks. Zero means
	// "default to the cache device's capacity" per §6.2 item 3.
	SizeBlocks uint64
	Mode       Mode
	// Assoc is the associativity; zero means DefaultAssoc.
	Assoc uint64
	// BlockSizeSectors is PAGE_SIZE/512; zero means DefaultBlockSizeSectors.
	BlockSizeSectors uint64

	// Name labels this instance's Prometheus metrics. Registerer may be
	// nil to skip registration (tests constructing many caches typically
	// do this to avoid collector name collisions).
	Name       string
	Registerer prometheus.Registerer

	// Subsystem overrides the process-wide job pool/worker, used by tests
	// that want an isolated pool per case.
	Subsystem *jobpool.Subsystem
}

// Cache is the set-associative BlockCache context (spec §3.4).
type Cache struct {
	sourceDev blockio.BlockDevice
	cacheDev  blockio.BlockDevice

	sourcePath string
	cachePath  string

	blockSizeSectors uint64
	blockShift       uint
	sizeBlocks       uint64
	assoc            uint64
	consecutiveShift uint
	numSets          uint64

	entries    []CacheBlock
	setLRUNext []uint64

	mode Mode

	lock     spinlock.Spinlock
	counters Counters

	metrics *metricspkg.CacheCounters
	sub     *jobpool.Subsystem
	log     *diag.Logger

	outstanding sync.WaitGroup
	closing     atomicClosing
}

// New validates cfg and constructs a Cache ready to serve requests (spec
// §4.4.7's "Construction and teardown").
func New(cfg Config) (*Cache, error) {
	if cfg.SourceDev == nil {
		return nil, blkerr.New(blkerr.InvalidArgument, "source device is required")
	}
	if cfg.CacheDev == nil {
		return nil, blkerr.New(blkerr.InvalidArgument, "cache device is required")
	}
	if cfg.CachePath != "" && !strings.HasPrefix(cfg.CachePath, ramdisk.DevicePathPrefix) {
		return nil, blkerr.New(blkerr.InvalidArgument, "cache path %q must be a RamDisk path (prefix %q)", cfg.CachePath, ramdisk.DevicePathPrefix)
	}

	blockSizeSectors := cfg.BlockSizeSectors
	if blockSizeSectors == 0 {
		blockSizeSectors = DefaultBlockSizeSectors
	}
	blockShift, err := log2(blockSizeSectors)
	if err != nil {
		return nil, blkerr.New(blkerr.InvalidArgument, "block size: %v", err)
	}

	assoc := cfg.Assoc
	if assoc == 0 {
		assoc = DefaultAssoc
	}
	consecutiveShift, err := log2(assoc)
	if err != nil {
		return nil, blkerr.New(blkerr.InvalidArgument, "associativity must be a power of two: %v", err)
	}

	cacheCapacityBlocks := cfg.CacheDev.CapacitySectors() / blockSizeSectors
	sizeBlocks := cfg.SizeBlocks
	if sizeBlocks == 0 {
		sizeBlocks = cacheCapacityBlocks
	}
	if sizeBlocks*blockSizeSectors > cfg.CacheDev.CapacitySectors() {
		return nil, blkerr.New(blkerr.InvalidArgument, "requested cache size (%d blocks) exceeds cache device capacity (%d blocks)", sizeBlocks, cacheCapacityBlocks)
	}
	if assoc > sizeBlocks {
		return nil, blkerr.New(blkerr.InvalidArgument, "associativity %d exceeds size %d", assoc, sizeBlocks)
	}
	// Round size_blocks down to a multiple of assoc (spec §3.4).
	sizeBlocks -= sizeBlocks % assoc
	if sizeBlocks == 0 {
		return nil, blkerr.New(blkerr.InvalidArgument, "cache too small for associativity %d", assoc)
	}

	sub := cfg.Subsystem
	if sub == nil {
		sub = jobpool.Default()
	}

	name := cfg.Name
	if name == "" {
		name = cfg.CachePath
	}

	c := &Cache{
		sourceDev:        cfg.SourceDev,
		cacheDev:         cfg.CacheDev,
		sourcePath:       cfg.SourcePath,
		cachePath:        cfg.CachePath,
		blockSizeSectors: blockSizeSectors,
		blockShift:       blockShift,
		sizeBlocks:       sizeBlocks,
		assoc:            assoc,
		consecutiveShift: consecutiveShift,
		numSets:          sizeBlocks >> consecutiveShift,
		entries:          make([]CacheBlock, sizeBlocks),
		setLRUNext:       make([]uint64, sizeBlocks>>consecutiveShift),
		mode:             cfg.Mode,
		sub:              sub,
		metrics:          metricspkg.NewCacheCounters(cfg.Registerer, name),
		log:              diag.New("blockcache"),
	}
	for s := range c.setLRUNext {
		c.setLRUNext[s] = uint64(s) * assoc
	}
	return c, nil
}

// Stats is the §6.4 status readout.
type Stats struct {
	Version      string
	SourcePath   string
	CachePath    string
	Mode         Mode
	BlockSize    uint64
	Associativity uint64
	TotalBlocks  uint64
	CachedBlocks uint64
	Counters     Counters
}

// Stats returns a snapshot of the cache's current statistics.
func (c *Cache) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return Stats{
		Version:       Version,
		SourcePath:    c.sourcePath,
		CachePath:     c.cachePath,
		Mode:          c.mode,
		BlockSize:     c.blockSizeSectors * blockio.SectorSize,
		Associativity: c.assoc,
		TotalBlocks:   c.sizeBlocks,
		CachedBlocks:  c.counters.CachedBlocks,
		Counters:      c.counters,
	}
}

// Close waits for all outstanding jobs this cache issued to drain, emits
// summary statistics, and releases its device handles (spec §4.4.7).
func (c *Cache) Close() {
	c.closing.begin()
	c.outstanding.Wait()
	st := c.Stats()
	c.log.Printf("closing %s: reads=%d writes=%d cache_hits=%d cached_blocks=%d",
		c.cachePath, st.Counters.Reads, st.Counters.Writes, st.Counters.CacheHits, st.CachedBlocks)
}

// getJob allocates a job from this cache's subsystem pool and tracks it
// against the cache's own outstanding-job barrier (spec §4.4.7's
// per-instance teardown wait), independent of the pool's own global
// exhaustion bookkeeping.
func (c *Cache) getJob() (*jobpool.Job, error) {
	j, err := c.sub.Pool.Get()
	if err != nil {
		return nil, err
	}
	c.outstanding.Add(1)
	return j, nil
}

func (c *Cache) releaseJob() {
	c.outstanding.Done()
}

// finishJob releases a job back to both the cache's own outstanding-job
// barrier and the shared pool's free list. Use this for jobs this cache
// drives directly from a goroutine it spawned itself; jobs routed through
// the worker's queues must instead call only releaseJob from their Done
// callback, since the worker itself returns them to the pool once Done
// returns (see internal/jobpool/worker.go).
func (c *Cache) finishJob(j *jobpool.Job) {
	c.releaseJob()
	c.sub.Pool.Put(j)
}

// cacheSector returns the cache-device starting sector backing entry idx:
// the cache device is partitioned into sizeBlocks fixed-size slots, one per
// entry, addressed directly by entry index (spec §4.4's cache storage
// layout).
func (c *Cache) cacheSector(idx int64) uint64 {
	return uint64(idx) * c.blockSizeSectors
}
