// Package ramdisk implements the RAM-backed block device engine (spec §3.2,
// §4.2): a lazily-allocated, page-backed volume exposed as a seekable block
// device with create/detach/resize/flush/discard/lock lifecycle
// operations. Page storage itself lives in the sibling pagestore package;
// this package adds device identity, capacity/lock state, and the
// administrative surface from §6.3.
package ramdisk

import (
	"context"
	"sync/atomic"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
	"github.com/rapiddisk/rapiddisk-go/internal/blockio"
	"github.com/rapiddisk/rapiddisk-go/internal/metrics"
	"github.com/rapiddisk/rapiddisk-go/pagestore"
)

// Volume is one RAM-backed block device. It implements blockio.BlockDevice.
type Volume struct {
	id            int32
	store         *pagestore.Store
	capacitySects uint64 // atomic
	locked        int32  // atomic bool: 1 = read-only
	errorCount    int64  // atomic
	openHandles   int32  // atomic
	gauges        *metrics.RamdiskGauges
}

var _ blockio.BlockDevice = (*Volume)(nil)

func newVolume(id int32, capacityBytes uint64, pageShift uint, gauges *metrics.RamdiskGauges) *Volume {
	return &Volume{
		id:            id,
		store:         pagestore.New(pageShift),
		capacitySects: capacityBytes / pagestore.SectorSize,
		gauges:        gauges,
	}
}

// ID returns the volume's namespace-unique identifier.
func (v *Volume) ID() int32 { return v.id }

// CapacitySectors returns the device's current capacity in sectors.
func (v *Volume) CapacitySectors() uint64 {
	return atomic.LoadUint64(&v.capacitySects)
}

// ReadOnly reports whether the volume is currently locked against writes.
func (v *Volume) ReadOnly() bool {
	return atomic.LoadInt32(&v.locked) != 0
}

func (v *Volume) boundsCheck(sector uint64, sectors uint64) error {
	if sector+sectors > v.CapacitySectors() {
		atomic.AddInt64(&v.errorCount, 1)
		if v.gauges != nil {
			v.gauges.ErrorCount.Inc()
		}
		return blkerr.New(blkerr.IOError, "request [%d,%d) exceeds capacity %d sectors", sector, sector+sectors, v.CapacitySectors())
	}
	return nil
}

// ReadAt delegates to the page store; reads are unaffected by the lock
// state.
func (v *Volume) ReadAt(_ context.Context, dst []byte, sector uint64) error {
	n := uint32(len(dst))
	if err := v.boundsCheck(sector, uint64(n)/pagestore.SectorSize); err != nil {
		return err
	}
	v.store.Read(dst, pagestore.SectorIndex(sector), n)
	return nil
}

// WriteAt delegates to the page store unless the volume is locked, in which
// case it fails with read-only without mutating any state (spec §4.2 "Lock
// state contract").
func (v *Volume) WriteAt(_ context.Context, src []byte, sector uint64) error {
	if v.ReadOnly() {
		return blkerr.Sentinel(blkerr.ReadOnly)
	}
	n := uint32(len(src))
	if err := v.boundsCheck(sector, uint64(n)/pagestore.SectorSize); err != nil {
		return err
	}
	if err := v.store.Write(src, pagestore.SectorIndex(sector), n); err != nil {
		return err
	}
	if v.gauges != nil {
		v.gauges.MaxBlkAlloc.Set(float64(v.store.MaxBlkAlloc()))
		v.gauges.MaxPageCount.Set(float64(v.store.MaxPageCount()))
	}
	return nil
}

// Discard routes both DISCARD and WRITE-ZEROS requests to the page store's
// discard semantics.
func (v *Volume) Discard(_ context.Context, sector uint64, count uint64) error {
	if v.ReadOnly() {
		return blkerr.Sentinel(blkerr.ReadOnly)
	}
	if err := v.boundsCheck(sector, count); err != nil {
		return err
	}
	if err := v.store.Discard(pagestore.SectorIndex(sector), uint32(count)); err != nil {
		return err
	}
	if v.gauges != nil {
		v.gauges.MaxPageCount.Set(float64(v.store.MaxPageCount()))
	}
	return nil
}

// Flush is reported supported but is a no-op: the RAM store is volatile by
// contract (spec §4.2).
func (v *Volume) Flush(_ context.Context) error { return nil }

// Open registers one open handle against the volume. Detach and the
// BLKFLSBUF semantics of administrative Flush both require this count to be
// zero.
func (v *Volume) Open() { atomic.AddInt32(&v.openHandles, 1) }

// Close releases one open handle.
func (v *Volume) Close() { atomic.AddInt32(&v.openHandles, -1) }

func (v *Volume) handleCount() int32 { return atomic.LoadInt32(&v.openHandles) }

// Stats is the §6.1/§6.4 status readout for one volume.
type Stats struct {
	ID           int32
	CapacitySects uint64
	MaxBlkAlloc  uint64
	MaxPageCount int64
	ErrorCount   int64
	ReadOnly     bool
}

// GetStats returns the volume's current statistics.
func (v *Volume) GetStats() Stats {
	return Stats{
		ID:            v.id,
		CapacitySects: v.CapacitySectors(),
		MaxBlkAlloc:   v.store.MaxBlkAlloc(),
		MaxPageCount:  v.store.MaxPageCount(),
		ErrorCount:    atomic.LoadInt64(&v.errorCount),
		ReadOnly:      v.ReadOnly(),
	}
}

func (v *Volume) setLock(locked bool) {
	var want int32
	if locked {
		want = 1
	}
	atomic.StoreInt32(&v.locked, want)
}

// resize grows the volume's capacity; callers must reject shrink requests
// before calling this (see Namespace.Resize).
func (v *Volume) resize(newCapacityBytes uint64) {
	atomic.StoreUint64(&v.capacitySects, newCapacityBytes/pagestore.SectorSize)
}

// flsbuf implements BLKFLSBUF semantics: drop every page and reset
// counters. Callers must have already checked the open-handle count
// (Detach: none open; Flush: at most one).
func (v *Volume) flsbuf() {
	v.store.FreeAll()
	atomic.StoreInt64(&v.errorCount, 0)
	if v.gauges != nil {
		v.gauges.MaxBlkAlloc.Set(0)
		v.gauges.MaxPageCount.Set(0)
	}
}
