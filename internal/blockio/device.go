// Package blockio defines the BlockDevice abstraction both engines sit on
// top of. It generalizes the interface-plus-implementation split the buffer
// manager this engine is descended from used for its parent page store
// (ParentBufMgr/ParentPage, backed either by an in-memory dummy map or by a
// real buffer pool manager): one interface, one in-memory implementation
// for tests and fixtures, and one real-device implementation for
// production use against an actual block device.
package blockio

import "context"

// SectorSize is the fixed logical sector size, per spec §3.1.
const SectorSize = 512

// BlockDevice is the minimal contract both the RamDisk volume (as the cache
// device, or stood in for the source in tests) and a real backing device
// must satisfy for the BlockCache engine to drive them.
type BlockDevice interface {
	// ReadAt copies len(dst) bytes starting at the given sector into dst.
	// len(dst) must be a multiple of SectorSize.
	ReadAt(ctx context.Context, dst []byte, sector uint64) error
	// WriteAt writes src to the device starting at the given sector.
	// len(src) must be a multiple of SectorSize.
	WriteAt(ctx context.Context, src []byte, sector uint64) error
	// Discard releases count sectors starting at sector; a subsequent read
	// of that range observes zeros.
	Discard(ctx context.Context, sector uint64, count uint64) error
	// Flush is reported supported but is a no-op for volatile devices.
	Flush(ctx context.Context) error
	// CapacitySectors returns the device's total addressable size in
	// sectors.
	CapacitySectors() uint64
	// ReadOnly reports whether writes are currently rejected.
	ReadOnly() bool
}
