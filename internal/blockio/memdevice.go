package blockio

import (
	"context"
	"sync"

	"github.com/dsnet/golib/memfile"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
)

// MemDevice is an in-memory BlockDevice backed by memfile.File, the same
// in-memory ReadWriteSeeker the teacher repo's test fixtures are built on.
// It stands in for a "slower backing block device" in tests and scenarios
// that do not need a real source device.
type MemDevice struct {
	mu       sync.Mutex
	f        *memfile.File
	sectors  uint64
	readOnly bool
}

// NewMemDevice allocates a zero-filled in-memory device of the given
// capacity in sectors.
func NewMemDevice(sectors uint64) *MemDevice {
	buf := make([]byte, sectors*SectorSize)
	return &MemDevice{
		f:       memfile.New(buf),
		sectors: sectors,
	}
}

func (d *MemDevice) CapacitySectors() uint64 { return d.sectors }
func (d *MemDevice) ReadOnly() bool          { return d.readOnly }

// SetReadOnly toggles the lock state, mirroring ramdisk.Volume.SetLock so
// tests can exercise the same read-only contract against a plain device.
func (d *MemDevice) SetReadOnly(ro bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly = ro
}

func (d *MemDevice) checkBounds(sector, n uint64) error {
	if sector+n > d.sectors {
		return blkerr.New(blkerr.IOError, "request [%d,%d) exceeds capacity %d sectors", sector, sector+n, d.sectors)
	}
	return nil
}

func (d *MemDevice) ReadAt(_ context.Context, dst []byte, sector uint64) error {
	n := uint64(len(dst)) / SectorSize
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBounds(sector, n); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(dst, int64(sector*SectorSize)); err != nil {
		return blkerr.New(blkerr.IOError, "%v", err)
	}
	return nil
}

func (d *MemDevice) WriteAt(_ context.Context, src []byte, sector uint64) error {
	n := uint64(len(src)) / SectorSize
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return blkerr.Sentinel(blkerr.ReadOnly)
	}
	if err := d.checkBounds(sector, n); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(src, int64(sector*SectorSize)); err != nil {
		return blkerr.New(blkerr.IOError, "%v", err)
	}
	return nil
}

func (d *MemDevice) Discard(_ context.Context, sector uint64, count uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return blkerr.Sentinel(blkerr.ReadOnly)
	}
	if err := d.checkBounds(sector, count); err != nil {
		return err
	}
	zeros := make([]byte, count*SectorSize)
	if _, err := d.f.WriteAt(zeros, int64(sector*SectorSize)); err != nil {
		return blkerr.New(blkerr.IOError, "%v", err)
	}
	return nil
}

func (d *MemDevice) Flush(_ context.Context) error { return nil }
