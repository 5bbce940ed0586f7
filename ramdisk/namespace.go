package ramdisk

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
	"github.com/rapiddisk/rapiddisk-go/internal/metrics"
	"github.com/rapiddisk/rapiddisk-go/pagestore"
)

// MaxVolumeID bounds the id namespace, the "over-limit id" rejection from
// §4.2's attach() contract.
const MaxVolumeID = 1 << 16

// Namespace is the process-wide RamDisk device registry (spec §9's "Global
// process state" scoped to this engine): attach/detach/resize/flush/
// set_lock/get_stats all operate against one Namespace, the way the
// teacher's BufMgr keeps one process-wide page-id conversion table backed
// by sync.Map. Here the registry holds many independently attached
// volumes rather than one tree's page ids, since RamDisk is explicitly
// multi-instance (§3.2).
type Namespace struct {
	mu       sync.Mutex
	volumes  map[int32]*Volume
	reg      prometheus.Registerer
	pageShift uint
}

// NewNamespace creates an empty device namespace. reg may be nil to skip
// Prometheus registration (as unit tests typically do to avoid collector
// name collisions across many namespaces).
func NewNamespace(reg prometheus.Registerer) *Namespace {
	return &Namespace{
		volumes:   make(map[int32]*Volume),
		reg:       reg,
		pageShift: pagestore.DefaultPageShift,
	}
}

// Attach creates a new volume with the given id and capacity. id must be
// free and within range; sizeBytes must be a multiple of 512 (spec §4.2).
func (ns *Namespace) Attach(id int32, sizeBytes uint64) (*Volume, error) {
	if id < 0 || id >= MaxVolumeID {
		return nil, blkerr.New(blkerr.InvalidArgument, "volume id %d out of range", id)
	}
	if sizeBytes%pagestore.SectorSize != 0 {
		return nil, blkerr.New(blkerr.InvalidArgument, "size %d is not a multiple of %d", sizeBytes, pagestore.SectorSize)
	}
	if sizeBytes == 0 {
		return nil, blkerr.New(blkerr.InvalidArgument, "size must be non-zero")
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, exists := ns.volumes[id]; exists {
		return nil, blkerr.New(blkerr.InvalidArgument, "volume id %d already attached", id)
	}
	gauges := metrics.NewRamdiskGauges(ns.reg, id)
	vol := newVolume(id, sizeBytes, ns.pageShift, gauges)
	ns.volumes[id] = vol
	return vol, nil
}

// Lookup returns the volume for id, or a not-found error.
func (ns *Namespace) Lookup(id int32) (*Volume, error) {
	ns.mu.Lock()
	vol, ok := ns.volumes[id]
	ns.mu.Unlock()
	if !ok {
		return nil, blkerr.New(blkerr.NotFound, "volume id %d not attached", id)
	}
	return vol, nil
}

// Detach removes id from the namespace and frees all of its pages. It is
// idempotent only when no handles are open on the volume.
func (ns *Namespace) Detach(id int32) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	vol, ok := ns.volumes[id]
	if !ok {
		return blkerr.New(blkerr.NotFound, "volume id %d not attached", id)
	}
	if vol.handleCount() > 0 {
		return blkerr.New(blkerr.Busy, "volume id %d has open handles", id)
	}
	vol.flsbuf()
	delete(ns.volumes, id)
	return nil
}

// Resize grows a volume's capacity. Shrinking is rejected with
// invalid-argument per §4.2 and the "Grow-only resize" testable property.
func (ns *Namespace) Resize(id int32, newSizeBytes uint64) error {
	vol, err := ns.Lookup(id)
	if err != nil {
		return err
	}
	if newSizeBytes%pagestore.SectorSize != 0 {
		return blkerr.New(blkerr.InvalidArgument, "size %d is not a multiple of %d", newSizeBytes, pagestore.SectorSize)
	}
	current := vol.CapacitySectors() * pagestore.SectorSize
	if newSizeBytes < current {
		return blkerr.New(blkerr.InvalidArgument, "resize to %d is smaller than current capacity %d", newSizeBytes, current)
	}
	vol.resize(newSizeBytes)
	return nil
}

// SetLock toggles the read-only state of a volume.
func (ns *Namespace) SetLock(id int32, locked bool) error {
	vol, err := ns.Lookup(id)
	if err != nil {
		return err
	}
	vol.setLock(locked)
	return nil
}

// Flush implements BLKFLSBUF semantics for id: when the volume has at most
// one open handle (the caller's own), all buffered data is invalidated and
// every page freed; with more than one open handle the call fails as busy.
func (ns *Namespace) Flush(id int32) error {
	vol, err := ns.Lookup(id)
	if err != nil {
		return err
	}
	if vol.handleCount() > 1 {
		return blkerr.New(blkerr.Busy, "volume id %d has other open handles", id)
	}
	vol.flsbuf()
	return nil
}

// GetStats returns the current stats for id.
func (ns *Namespace) GetStats(id int32) (Stats, error) {
	vol, err := ns.Lookup(id)
	if err != nil {
		return Stats{}, err
	}
	return vol.GetStats(), nil
}

// ParseMessage dispatches one of the §6.3 management-surface text lines
// ("attach <id> <size_bytes>", "detach <id>", "resize <id> <new_size_bytes>")
// against this namespace. It exists so a kernel-compatible front end can
// still be bolted on per §9's design note, without the core depending on a
// text-protocol parser anywhere in its hot path.
func (ns *Namespace) ParseMessage(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return blkerr.New(blkerr.InvalidArgument, "empty message")
	}
	switch fields[0] {
	case "attach":
		if len(fields) != 3 {
			return blkerr.New(blkerr.InvalidArgument, "usage: attach <id> <size_bytes>")
		}
		id, sz, err := parseIDAndSize(fields[1], fields[2])
		if err != nil {
			return err
		}
		_, err = ns.Attach(id, sz)
		return err
	case "detach":
		if len(fields) != 2 {
			return blkerr.New(blkerr.InvalidArgument, "usage: detach <id>")
		}
		id, err := parseID(fields[1])
		if err != nil {
			return err
		}
		return ns.Detach(id)
	case "resize":
		if len(fields) != 3 {
			return blkerr.New(blkerr.InvalidArgument, "usage: resize <id> <new_size_bytes>")
		}
		id, sz, err := parseIDAndSize(fields[1], fields[2])
		if err != nil {
			return err
		}
		return ns.Resize(id, sz)
	default:
		return blkerr.New(blkerr.InvalidArgument, "unknown message %q", fields[0])
	}
}

func parseID(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, blkerr.New(blkerr.InvalidArgument, "bad id %q: %v", s, err)
	}
	return int32(v), nil
}

func parseIDAndSize(idStr, sizeStr string) (int32, uint64, error) {
	id, err := parseID(idStr)
	if err != nil {
		return 0, 0, err
	}
	sz, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return 0, 0, blkerr.New(blkerr.InvalidArgument, "bad size %q: %v", sizeStr, err)
	}
	return id, sz, nil
}

// DevicePathPrefix is the well-known path prefix RamDisk volumes are
// addressed under, matching the original source's /dev/rd<n> convention
// (rapiddisk.c / rxdsk.c). BlockCache's constructor-string parser requires
// its cache device path to start with this prefix (spec §6.2 item 2).
const DevicePathPrefix = "/dev/rd"

// DevicePath returns the canonical path for a volume id.
func DevicePath(id int32) string {
	return fmt.Sprintf("%s%d", DevicePathPrefix, id)
}
