// Package pagestore implements the sparse sector-to-page map backing one
// RamDisk volume (spec §3.1, §4.1). It is grounded on two pack examples:
// the teacher's pageIdConvMap (a process-wide sync.Map keyed by page id,
// guarded for insertion by the buffer manager's allocation spinlock) and
// jpittis-persistent-bplus's PageStore (a mutex-guarded map[PageID]int
// lookup table with lazily-allocated, fixed-size pages). This package
// generalizes both into a per-volume map guarded by a sync.RWMutex so
// lookups and range scans run fully concurrently with each other and only
// serialize against the rare insert, per §4.1's "Concurrency" paragraph.
package pagestore

import (
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
)

// SectorSize is the fixed logical sector size (§3.1).
const SectorSize = 512

// SectorIndex is a 64-bit logical sector number.
type SectorIndex uint64

// PageIndex identifies one page within a volume.
type PageIndex uint64

// Page is a fixed-size, zero-initialized buffer identified by its
// PageIndex. Its backing array is allocated page-aligned via directio so it
// can be handed to an O_DIRECT-backed device downstream without copying.
type Page struct {
	Index PageIndex
	Data  []byte
}

// Store is the sparse PageIndex -> Page map for one RamDisk volume.
type Store struct {
	pageShift    uint  // log2(pageSize)
	pageSize     uint32
	mu           sync.RWMutex
	pages        map[PageIndex]*Page
	maxBlkAlloc  uint64 // highest sector ever written
	maxPageCount int64  // pages currently allocated
}

// DefaultPageShift is log2(4096), the typical page size named in §3.1.
const DefaultPageShift = 12

// New creates an empty Store with the given page size expressed as a
// power-of-two shift (pageSize = 1<<pageShift). pageShift is fixed for the
// lifetime of the store, set once "at boot" per §3.1.
func New(pageShift uint) *Store {
	if pageShift == 0 {
		pageShift = DefaultPageShift
	}
	return &Store{
		pageShift: pageShift,
		pageSize:  1 << pageShift,
		pages:     make(map[PageIndex]*Page),
	}
}

// PageSize returns the fixed page size in bytes.
func (s *Store) PageSize() uint32 { return s.pageSize }

// SectorsPerPage returns pageSize/SectorSize, a power of two (typically 8).
func (s *Store) SectorsPerPage() uint64 { return uint64(s.pageSize) / SectorSize }

// PageIndexOf maps a sector number to the page index that contains it:
// sector >> (pageShift - 9).
func (s *Store) PageIndexOf(sector SectorIndex) PageIndex {
	return PageIndex(uint64(sector) >> (s.pageShift - 9))
}

// pageByteOffset returns the byte offset of sector within its page.
func (s *Store) pageByteOffset(sector SectorIndex) uint32 {
	sectorsPerPage := s.SectorsPerPage()
	return uint32(uint64(sector)%sectorsPerPage) * SectorSize
}

func (s *Store) lookupPage(idx PageIndex) *Page {
	s.mu.RLock()
	p := s.pages[idx]
	s.mu.RUnlock()
	return p
}

// allocPage ensures a zero-initialized page exists at idx and returns it. A
// concurrent insert that loses the race discovers and reuses the winner's
// page rather than leaking its own allocation, per §4.1's allocation policy.
func (s *Store) allocPage(idx PageIndex) *Page {
	if p := s.lookupPage(idx); p != nil {
		return p
	}
	candidate := &Page{Index: idx, Data: directio.AlignedBlock(int(s.pageSize))}
	s.mu.Lock()
	if existing, ok := s.pages[idx]; ok {
		s.mu.Unlock()
		return existing
	}
	s.pages[idx] = candidate
	atomic.AddInt64(&s.maxPageCount, 1)
	s.mu.Unlock()
	return candidate
}

// Read copies n bytes starting at sector into dst. Absent pages read as
// zeros; present pages are read straddled across their overlap with
// [sector, sector+n/512). Read never allocates.
func (s *Store) Read(dst []byte, sector SectorIndex, n uint32) {
	want := n
	cur := sector
	off := 0
	for want > 0 {
		idx := s.PageIndexOf(cur)
		pageOff := s.pageByteOffset(cur)
		chunk := s.pageSize - pageOff
		if chunk > want {
			chunk = want
		}
		if p := s.lookupPage(idx); p != nil {
			copy(dst[off:off+int(chunk)], p.Data[pageOff:pageOff+chunk])
		} else {
			for i := 0; i < int(chunk); i++ {
				dst[off+i] = 0
			}
		}
		off += int(chunk)
		cur += SectorIndex(chunk / SectorSize)
		want -= chunk
	}
}

// Write copies n bytes from src into the store starting at sector,
// allocating pages on first touch. max_blk_alloc is advanced to
// max(old, sector + n/512).
func (s *Store) Write(src []byte, sector SectorIndex, n uint32) error {
	want := n
	cur := sector
	off := 0
	for want > 0 {
		idx := s.PageIndexOf(cur)
		pageOff := s.pageByteOffset(cur)
		chunk := s.pageSize - pageOff
		if chunk > want {
			chunk = want
		}
		p := s.allocPage(idx)
		copy(p.Data[pageOff:pageOff+chunk], src[off:off+int(chunk)])
		off += int(chunk)
		cur += SectorIndex(chunk / SectorSize)
		want -= chunk
	}
	s.advanceMaxBlkAlloc(uint64(sector) + uint64(n)/SectorSize)
	return nil
}

func (s *Store) advanceMaxBlkAlloc(candidate uint64) {
	for {
		cur := atomic.LoadUint64(&s.maxBlkAlloc)
		if candidate <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&s.maxBlkAlloc, cur, candidate) {
			return
		}
	}
}

// Discard zeroes (drops) every page covered by the sector range
// [sector, sector+sectors) — unlike Read/Write, whose n is a byte count,
// sectors here is a sector count, matching blockio.BlockDevice.Discard's
// contract. sector must be page-aligned and sectors a page-size multiple
// (in sectors); a misaligned request is rejected with
// blkerr.InvalidArgument rather than risking corruption of adjacent pages,
// per §4.1's "MUST NOT corrupt other pages" invariant.
func (s *Store) Discard(sector SectorIndex, sectors uint32) error {
	sectorsPerPage := s.SectorsPerPage()
	if uint64(sector)%sectorsPerPage != 0 || uint64(sectors)%sectorsPerPage != 0 {
		return blkerr.New(blkerr.InvalidArgument, "discard range [%d,+%d) is not page-aligned", sector, sectors)
	}
	startIdx := s.PageIndexOf(sector)
	pages := uint64(sectors) / sectorsPerPage
	s.mu.Lock()
	for i := uint64(0); i < pages; i++ {
		idx := startIdx + PageIndex(i)
		if _, ok := s.pages[idx]; ok {
			delete(s.pages, idx)
			atomic.AddInt64(&s.maxPageCount, -1)
		}
	}
	s.mu.Unlock()
	return nil
}

// FreeAll drops every page and resets max_blk_alloc and max_page_count to
// zero, the BLKFLSBUF observable effect from scenario S5.
func (s *Store) FreeAll() {
	s.mu.Lock()
	s.pages = make(map[PageIndex]*Page)
	s.mu.Unlock()
	atomic.StoreInt64(&s.maxPageCount, 0)
	atomic.StoreUint64(&s.maxBlkAlloc, 0)
}

// MaxBlkAlloc returns the highest sector ever written.
func (s *Store) MaxBlkAlloc() uint64 { return atomic.LoadUint64(&s.maxBlkAlloc) }

// MaxPageCount returns the number of pages currently allocated.
func (s *Store) MaxPageCount() int64 { return atomic.LoadInt64(&s.maxPageCount) }
