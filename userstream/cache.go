// Package userstream implements component F: recording and replaying
// the byte sequence between a stream's BeginStream/ReadStream* and
// EndStream operators under a name, and later re-executing it with
// ExecStream, mirroring the PJW-hashed fixed-size cache the original
// PCL-XL interpreter keeps for this purpose.
package userstream

import (
	"fmt"
	"io"
)

// tableSize is the fixed bucket count of the stream cache, matching
// STREAM_CACHE_TABLE_SIZE. It is not configurable: spec.md's Testable
// Properties for this component (P4) are stated against this exact
// table size, not a generic growable map.
const tableSize = 37

// maxNestLevel bounds how many ExecStream calls may be nested, matching
// MAX_STREAM_NEST_LEVEL.
const maxNestLevel = 32

// blockSize is the fixed size of each link in a recorded stream's
// block list, matching USER_STREAM_DATA_BLOCK_SIZE. Recorded bytes are
// never copied on growth: once a block is full, appending allocates a
// new block and links it in rather than reallocating a larger buffer,
// which is what lets a stream of megabytes be recorded without ever
// doubling-and-copying what's already been captured (spec.md's "supports
// very long streams... without ever reallocating recorded bytes").
const blockSize = 1024

// dataBlock is one fixed-size link in a recorded stream's byte chain.
type dataBlock struct {
	bytes [blockSize]byte
	n     int // bytes used in this block, 0 <= n <= blockSize
	next  *dataBlock
}

type entry struct {
	name      string
	head      *dataBlock
	tail      *dataBlock
	total     int
	isRunning bool
	next      *entry
}

// append adds b to the entry's recorded byte chain, filling the current
// tail block before linking a fresh one; it never reallocates or copies
// bytes already recorded in earlier blocks.
func (e *entry) append(b []byte) {
	for len(b) > 0 {
		if e.tail == nil || e.tail.n == blockSize {
			nb := &dataBlock{}
			if e.tail == nil {
				e.head = nb
			} else {
				e.tail.next = nb
			}
			e.tail = nb
		}
		n := copy(e.tail.bytes[e.tail.n:], b)
		e.tail.n += n
		b = b[n:]
		e.total += n
	}
}

// reader returns an io.Reader over the entry's recorded byte chain,
// read in order from the first block without ever flattening the chain
// into a single contiguous slice.
func (e *entry) reader() io.Reader {
	return &blockReader{block: e.head}
}

// blockReader sequentially drains a dataBlock chain.
type blockReader struct {
	block *dataBlock
	pos   int
}

func (r *blockReader) Read(p []byte) (int, error) {
	for r.block != nil && r.pos >= r.block.n {
		r.block = r.block.next
		r.pos = 0
	}
	if r.block == nil {
		return 0, io.EOF
	}
	n := copy(p, r.block.bytes[r.pos:r.block.n])
	r.pos += n
	return n, nil
}

// Cache is the process-wide user-defined-stream cache of spec.md
// component F: a name -> byte-sequence map with PJW hashing into a
// fixed 37-bucket table, exactly like the rest of this module's Filter
// Registry is a fixed, once-populated table read many times.
type Cache struct {
	table        [tableSize]*entry
	beingDefined *entry
	nestLevel    int

	// Warnings accumulates non-fatal diagnostics (spec.md §7: "Warnings
	// accumulate in a list"), such as RemoveStream targeting an unknown
	// or currently-running name.
	Warnings []string
}

// NewCache returns an empty stream cache.
func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) warn(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// pjwHash is the branch-free PJW hash variant pclxl_stream_cache_find
// uses: a per-byte shift-and-fold recurrence, reduced modulo tableSize.
func pjwHash(name string) uint32 {
	var hash uint32
	for i := 0; i < len(name); i++ {
		hash = (hash << 4) + uint32(name[i])
		bits := hash & 0xf0000000
		hash ^= bits | (bits >> 24)
	}
	return hash % tableSize
}

func (c *Cache) find(name string) (bucket uint32, found *entry, prev *entry) {
	bucket = pjwHash(name)
	for curr := c.table[bucket]; curr != nil; curr = curr.next {
		if curr.name == name {
			return bucket, curr, prev
		}
		prev = curr
	}
	return bucket, nil, prev
}
