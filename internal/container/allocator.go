// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package container implements the chunked-array container format backing
// train files.
//
// A container file is a header, a data region of chunk blocks, and a footer
// describing every array (shape, dtype, filter, chunk addresses). Space is
// handed out by an end-of-file Allocator; freed space is never reclaimed,
// which keeps the layout strictly sequential for a single writer.
package container

import (
	"fmt"
	"sort"
)

// AllocatedBlock tracks one contiguous allocated region of the file.
// Blocks are recorded to prevent overlapping writes and to validate
// allocator integrity during testing.
type AllocatedBlock struct {
	Offset uint64 // Starting address in file
	Size   uint64 // Size of allocated block in bytes
}

// Allocator manages space allocation in container files.
//
// Strategy:
//   - End-of-file allocation: all allocations occur at end of file
//   - No freed space reuse: once allocated, space is never reclaimed
//   - Overlap prevention: all allocations tracked
//
// Not thread-safe; designed for the single-threaded Writer.
type Allocator struct {
	blocks     []AllocatedBlock // All allocated blocks (append-only)
	nextOffset uint64           // Next available address (end-of-file)
}

// NewAllocator creates a space allocator whose first allocation will be
// placed at initialOffset (typically headerSize, so the header region at
// offset 0 is never handed out).
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{
		blocks:     make([]AllocatedBlock, 0, 16),
		nextOffset: initialOffset,
	}
}

// Allocate reserves size bytes at the end of the file and returns the
// address of the reserved block. The space is not zeroed; the caller must
// write it.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("cannot allocate zero bytes")
	}

	addr := a.nextOffset
	a.blocks = append(a.blocks, AllocatedBlock{Offset: addr, Size: size})
	a.nextOffset = addr + size

	return addr, nil
}

// IsAllocated reports whether the range [offset, offset+size) overlaps any
// allocated block. Adjacent blocks (touching boundaries) do not overlap;
// zero-size ranges never overlap.
func (a *Allocator) IsAllocated(offset, size uint64) bool {
	if size == 0 {
		return false
	}

	rangeEnd := offset + size
	for _, block := range a.blocks {
		blockEnd := block.Offset + block.Size
		if offset < blockEnd && block.Offset < rangeEnd {
			return true
		}
	}

	return false
}

// EndOfFile returns the address where the next allocation would occur,
// i.e. the total file size covered by allocations so far.
func (a *Allocator) EndOfFile() uint64 {
	return a.nextOffset
}

// Blocks returns a copy of all allocated blocks, sorted by offset.
func (a *Allocator) Blocks() []AllocatedBlock {
	blocks := make([]AllocatedBlock, len(a.blocks))
	copy(blocks, a.blocks)

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Offset < blocks[j].Offset
	})

	return blocks
}

// ValidateNoOverlaps checks that no allocated blocks overlap. With
// end-of-file allocation overlaps should never occur; a non-nil error
// indicates an allocator bug.
func (a *Allocator) ValidateNoOverlaps() error {
	blocks := a.Blocks()

	for i := 0; i < len(blocks)-1; i++ {
		current := blocks[i]
		next := blocks[i+1]

		if current.Offset+current.Size > next.Offset {
			return fmt.Errorf("overlap detected: block at %d (size %d) overlaps block at %d",
				current.Offset, current.Size, next.Offset)
		}
	}

	return nil
}
