//go:build linux

package blockio

import (
	"context"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ncw/directio"
	"github.com/rapiddisk/rapiddisk-go/blkerr"
)

// RealDevice adapts a genuine host block device (or a regular file standing
// in for one) to BlockDevice using page-aligned, unbuffered I/O via
// directio, the way the teacher's buffer manager sources its page buffers.
// Flush and Discard issue BLKFLSBUF/BLKDISCARD through golang.org/x/sys/unix
// the way a kernel-backed source device would expect; this is the only
// component in the module that talks to a real /dev node, kept behind a
// linux build tag so the rest of the engine stays portable.
type RealDevice struct {
	mu       sync.Mutex
	file     *os.File
	sectors  uint64
	readOnly bool
}

const (
	blkFlsbuf  = 0x1261
	blkDiscard = 0x1277
)

// OpenRealDevice opens path with O_DIRECT and reports it as a BlockDevice of
// the given capacity in sectors.
func OpenRealDevice(path string, sectors uint64, readOnly bool) (*RealDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := directio.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, blkerr.New(blkerr.IOError, "open %s: %v", path, err)
	}
	return &RealDevice{file: f, sectors: sectors, readOnly: readOnly}, nil
}

func (d *RealDevice) CapacitySectors() uint64 { return d.sectors }
func (d *RealDevice) ReadOnly() bool          { return d.readOnly }

func (d *RealDevice) alignedBuf(n int) []byte {
	return directio.AlignedBlock(n)
}

func (d *RealDevice) ReadAt(_ context.Context, dst []byte, sector uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.alignedBuf(len(dst))
	if _, err := d.file.ReadAt(buf, int64(sector*SectorSize)); err != nil {
		return blkerr.New(blkerr.IOError, "%v", err)
	}
	copy(dst, buf)
	return nil
}

func (d *RealDevice) WriteAt(_ context.Context, src []byte, sector uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return blkerr.Sentinel(blkerr.ReadOnly)
	}
	buf := d.alignedBuf(len(src))
	copy(buf, src)
	if _, err := d.file.WriteAt(buf, int64(sector*SectorSize)); err != nil {
		return blkerr.New(blkerr.IOError, "%v", err)
	}
	return nil
}

func (d *RealDevice) Discard(_ context.Context, sector uint64, count uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return blkerr.Sentinel(blkerr.ReadOnly)
	}
	rng := [2]uint64{sector * SectorSize, count * SectorSize}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), uintptr(blkDiscard), uintptr(unsafe.Pointer(&rng)))
	if errno != 0 {
		return blkerr.New(blkerr.IOError, "BLKDISCARD: %v", errno)
	}
	return nil
}

func (d *RealDevice) Flush(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), uintptr(blkFlsbuf), 0)
	if errno != 0 {
		return blkerr.New(blkerr.IOError, "BLKFLSBUF: %v", errno)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (d *RealDevice) Close() error {
	return d.file.Close()
}
