package simplefs

import (
	"encoding/binary"
	"fmt"
)

// entryKind tags an allocation entry.
type entryKind uint8

const (
	entryFree entryKind = iota
	entryNext
	entryEnd
)

// allocEntry is one allocation-table entry: Free, End, or Next(next).
// next is only meaningful for entryNext.
type allocEntry struct {
	kind entryKind
	next int
}

// On-disk entry encoding (int32 LE). Next(k) is stored as k+1 so that data
// block 0 never collides with Free.
const (
	rawFree int32 = 0
	rawEnd  int32 = -1
)

// chain is a reference to the first block of a file: either empty or a data
// block index.
type chain struct {
	index int
	valid bool
}

func chainAt(index int) chain {
	return chain{index: index, valid: true}
}

// IsEmpty reports whether the chain has no blocks.
func (c chain) IsEmpty() bool {
	return !c.valid
}

// allocator is the block-chain allocator over the data region. Indices are
// data-block indices, not device block numbers.
type allocator struct {
	entries []allocEntry
	free    int
}

func newAllocator(n int) *allocator {
	return &allocator{entries: make([]allocEntry, n), free: n}
}

func (a *allocator) freeCount() int {
	return a.free
}

// allocate returns up to n free indices in ascending order, lowest first.
// Each returned block is marked End; callers link them.
func (a *allocator) allocate(n int) []int {
	if n <= 0 {
		return nil
	}

	got := make([]int, 0, min(n, a.free))

	for i := 0; i < len(a.entries) && len(got) < n; i++ {
		if a.entries[i].kind == entryFree {
			a.entries[i] = allocEntry{kind: entryEnd}
			got = append(got, i)
		}
	}

	a.free -= len(got)

	return got
}

// link makes to the successor of from.
func (a *allocator) link(from, to int) {
	a.entries[from] = allocEntry{kind: entryNext, next: to}
}

// next returns the successor of i, or false at the end of the chain.
func (a *allocator) next(i int) (int, bool) {
	e := a.entries[i]
	if e.kind != entryNext {
		return 0, false
	}

	return e.next, true
}

// walk follows k links from head. It reports false if the chain ends first.
func (a *allocator) walk(head chain, k int) (int, bool) {
	if head.IsEmpty() || k < 0 {
		return 0, false
	}

	cur := head.index

	for range k {
		nxt, ok := a.next(cur)
		if !ok {
			return 0, false
		}

		cur = nxt
	}

	return cur, true
}

// chainLength counts the blocks in the chain.
func (a *allocator) chainLength(head chain) int {
	if head.IsEmpty() {
		return 0
	}

	n := 1

	for cur := head.index; ; n++ {
		nxt, ok := a.next(cur)
		if !ok {
			return n
		}

		cur = nxt
	}
}

// tail returns the last block of a non-empty chain.
func (a *allocator) tail(head chain) (int, bool) {
	if head.IsEmpty() {
		return 0, false
	}

	cur := head.index

	for {
		nxt, ok := a.next(cur)
		if !ok {
			return cur, true
		}

		cur = nxt
	}
}

// release frees every block from head to the end of the chain and returns
// how many were freed.
func (a *allocator) release(head chain) int {
	if head.IsEmpty() {
		return 0
	}

	n := 0
	cur := head.index

	for {
		e := a.entries[cur]
		a.entries[cur] = allocEntry{kind: entryFree}
		n++

		if e.kind != entryNext {
			break
		}

		cur = e.next
	}

	a.free += n

	return n
}

// shrink keeps the first keep blocks of the chain and frees the rest. It
// returns the new head (empty when keep is 0) and the number freed.
func (a *allocator) shrink(head chain, keep int) (chain, int) {
	if keep <= 0 {
		return chain{}, a.release(head)
	}

	last, ok := a.walk(head, keep-1)
	if !ok {
		return head, 0
	}

	e := a.entries[last]
	a.entries[last] = allocEntry{kind: entryEnd}

	if e.kind != entryNext {
		return head, 0
	}

	return head, a.release(chainAt(e.next))
}

// encode writes the table into buf, which must hold len(entries)*4 bytes.
func (a *allocator) encode(buf []byte) {
	for i, e := range a.entries {
		raw := rawFree

		switch e.kind {
		case entryFree:
		case entryEnd:
			raw = rawEnd
		case entryNext:
			raw = int32(e.next + 1)
		}

		binary.LittleEndian.PutUint32(buf[i*fatEntrySize:], uint32(raw))
	}
}

// decodeAllocator parses n entries from buf. Links outside [0, n) and
// unknown negative values are rejected with [ErrCorrupt].
func decodeAllocator(buf []byte, n int) (*allocator, error) {
	a := &allocator{entries: make([]allocEntry, n)}

	for i := range n {
		raw := int32(binary.LittleEndian.Uint32(buf[i*fatEntrySize:]))

		switch {
		case raw == rawFree:
			a.free++
		case raw == rawEnd:
			a.entries[i] = allocEntry{kind: entryEnd}
		case raw > 0 && int(raw) <= n:
			a.entries[i] = allocEntry{kind: entryNext, next: int(raw) - 1}
		default:
			return nil, fmt.Errorf("allocation entry %d: value %d: %w", i, raw, ErrCorrupt)
		}
	}

	return a, nil
}
