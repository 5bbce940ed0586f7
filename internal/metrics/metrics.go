// Package metrics mirrors the plain-unsigned counters each engine keeps
// in-struct (spec §3.4) into Prometheus collectors, the way
// buildbarn-bb-storage's block allocator registers a CounterVec alongside
// its own bookkeeping. The core engines never read these back — they exist
// purely so an external formatter (explicitly out of scope for this module,
// per spec §1) has something to scrape without the engines depending on any
// particular wire format.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheCounters is the Prometheus-backed mirror of blockcache.Counters.
type CacheCounters struct {
	Reads           prometheus.Counter
	Writes          prometheus.Counter
	CacheHits       prometheus.Counter
	Replace         prometheus.Counter
	WrInvalidates   prometheus.Counter
	RdInvalidates   prometheus.Counter
	CachedBlocks    prometheus.Gauge
	CacheWrReplace  prometheus.Counter
	UncachedReads   prometheus.Counter
	UncachedWrites  prometheus.Counter
	CacheReads      prometheus.Counter
	CacheWrites     prometheus.Counter
	DiskReads       prometheus.Counter
	DiskWrites      prometheus.Counter
}

// NewCacheCounters builds a CacheCounters set labeled with the given cache
// instance name, registering each collector against reg. reg may be a
// fresh *prometheus.Registry per instance (the default, to keep multiple
// BlockCache instances from colliding on metric names) or nil to skip
// registration entirely (useful in unit tests that construct many caches).
func NewCacheCounters(reg prometheus.Registerer, name string) *CacheCounters {
	mk := func(metric, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rapiddisk",
			Subsystem:   "blockcache",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": name},
		})
		if reg != nil {
			reg.MustRegister(c)
		}
		return c
	}
	mkGauge := func(metric, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rapiddisk",
			Subsystem:   "blockcache",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": name},
		})
		if reg != nil {
			reg.MustRegister(g)
		}
		return g
	}
	return &CacheCounters{
		Reads:          mk("reads_total", "Total read requests."),
		Writes:         mk("writes_total", "Total write requests."),
		CacheHits:      mk("cache_hits_total", "Reads served directly from a VALID cache entry."),
		Replace:        mk("replace_total", "VALID entries evicted to service a read fill."),
		WrInvalidates:  mk("write_invalidates_total", "Entries invalidated by an overlapping write."),
		RdInvalidates:  mk("read_invalidates_total", "Entries invalidated by an overlapping read bypass."),
		CachedBlocks:   mkGauge("cached_blocks", "Entries currently in state VALID."),
		CacheWrReplace: mk("cache_write_replace_total", "VALID entries evicted to service a write fill."),
		UncachedReads:  mk("uncached_reads_total", "Reads bypassed directly to source."),
		UncachedWrites: mk("uncached_writes_total", "Writes bypassed directly to source."),
		CacheReads:     mk("cache_reads_total", "Physical reads issued against the cache device."),
		CacheWrites:    mk("cache_writes_total", "Physical writes issued against the cache device."),
		DiskReads:      mk("disk_reads_total", "Physical reads issued against the source device."),
		DiskWrites:     mk("disk_writes_total", "Physical writes issued against the source device."),
	}
}

// RamdiskGauges mirrors the per-volume stats from spec §4.2 get_stats.
type RamdiskGauges struct {
	MaxBlkAlloc    prometheus.Gauge
	MaxPageCount   prometheus.Gauge
	ErrorCount     prometheus.Counter
}

// NewRamdiskGauges builds a RamdiskGauges set labeled with the volume id.
func NewRamdiskGauges(reg prometheus.Registerer, volumeID int32) *RamdiskGauges {
	labels := prometheus.Labels{"volume": strconv.Itoa(int(volumeID))}
	maxBlk := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rapiddisk", Subsystem: "ramdisk", Name: "max_blk_alloc", Help: "Highest sector ever written.", ConstLabels: labels,
	})
	maxPage := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rapiddisk", Subsystem: "ramdisk", Name: "max_page_count", Help: "Pages currently allocated.", ConstLabels: labels,
	})
	errs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rapiddisk", Subsystem: "ramdisk", Name: "errors_total", Help: "I/O errors observed by this volume.", ConstLabels: labels,
	})
	if reg != nil {
		reg.MustRegister(maxBlk, maxPage, errs)
	}
	return &RamdiskGauges{MaxBlkAlloc: maxBlk, MaxPageCount: maxPage, ErrorCount: errs}
}
