// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package container

import (
	"errors"
	"fmt"
)

// ErrNonContiguous is returned when a write does not start at the current
// end of the stored rows. The container is append-only: rows are written
// exactly once, in order.
var ErrNonContiguous = errors.New("write is not contiguous with stored rows")

// Array is an extensible array inside a container file. Rows are appended
// along the growth axis (axis 0) and stored in chunks of ChunkRows records.
//
// Unfiltered arrays write row bytes straight into preallocated chunk blocks
// with no intermediate copy. Filtered arrays assemble each chunk in a tail
// buffer and compress it when full; the final partial chunk is compressed
// when the array is sealed.
type Array struct {
	w       *Writer
	info    ArrayInfo
	rowSize uint64 // Bytes per record
	filter  Filter

	logicalRows uint64 // Length of the growth axis (Resize)
	storedRows  uint64 // Rows actually written

	tail    []byte // Chunk assembly buffer (filtered arrays only)
	tailLen uint64 // Rows currently in tail

	sealed bool
}

// Path returns the array's path inside the container.
func (ar *Array) Path() string {
	return ar.info.Path
}

// Rows returns the number of rows written so far.
func (ar *Array) Rows() uint64 {
	return ar.storedRows
}

// RowSize returns the bytes per record.
func (ar *Array) RowSize() uint64 {
	return ar.rowSize
}

// Resize extends the growth axis to rows. Shrinking below the stored row
// count is not supported.
func (ar *Array) Resize(rows uint64) error {
	if ar.sealed {
		return fmt.Errorf("array %q is sealed", ar.info.Path)
	}
	if rows < ar.storedRows {
		return fmt.Errorf("array %q: cannot shrink to %d rows, %d already stored",
			ar.info.Path, rows, ar.storedRows)
	}

	ar.logicalRows = rows
	return nil
}

// WriteRows bulk-writes nrec records starting at row index start. The
// write must be contiguous with previously stored rows (start equals the
// stored row count) and must fit the current growth-axis length; call
// Resize first to extend it. src holds nrec*RowSize bytes.
func (ar *Array) WriteRows(src []byte, start, nrec uint64) error {
	if ar.sealed {
		return fmt.Errorf("array %q is sealed", ar.info.Path)
	}
	if nrec == 0 {
		return nil
	}
	if start != ar.storedRows {
		return fmt.Errorf("array %q: %w: start %d, stored %d",
			ar.info.Path, ErrNonContiguous, start, ar.storedRows)
	}
	if start+nrec > ar.logicalRows {
		return fmt.Errorf("array %q: write of %d rows at %d exceeds growth axis length %d",
			ar.info.Path, nrec, start, ar.logicalRows)
	}
	if uint64(len(src)) != nrec*ar.rowSize {
		return fmt.Errorf("array %q: source block is %d bytes, want %d",
			ar.info.Path, len(src), nrec*ar.rowSize)
	}

	if ar.filter == nil {
		return ar.writeRaw(src, nrec)
	}
	return ar.writeFiltered(src, nrec)
}

// SetRows assigns records to the range [start, start+nrec). Range
// assignment degenerates to an append in this engine: rewriting already
// stored rows is rejected.
func (ar *Array) SetRows(src []byte, start, nrec uint64) error {
	return ar.WriteRows(src, start, nrec)
}

// writeRaw writes rows directly into preallocated chunk blocks.
func (ar *Array) writeRaw(src []byte, nrec uint64) error {
	chunkRows := ar.info.ChunkRows
	chunkBytes := chunkRows * ar.rowSize

	for nrec > 0 {
		off := ar.storedRows % chunkRows
		if off == 0 {
			addr, err := ar.w.alloc.Allocate(chunkBytes)
			if err != nil {
				return err
			}
			ar.info.Chunks = append(ar.info.Chunks, ChunkRef{Addr: addr, Size: chunkBytes})
		}

		take := chunkRows - off
		if take > nrec {
			take = nrec
		}

		chunk := ar.info.Chunks[len(ar.info.Chunks)-1]
		if err := ar.w.writeAt(src[:take*ar.rowSize], chunk.Addr+off*ar.rowSize); err != nil {
			return err
		}

		src = src[take*ar.rowSize:]
		ar.storedRows += take
		nrec -= take
	}

	return nil
}

// writeFiltered assembles rows in the tail buffer, compressing and writing
// each chunk as it fills.
func (ar *Array) writeFiltered(src []byte, nrec uint64) error {
	chunkRows := ar.info.ChunkRows

	for nrec > 0 {
		take := chunkRows - ar.tailLen
		if take > nrec {
			take = nrec
		}

		copy(ar.tail[ar.tailLen*ar.rowSize:], src[:take*ar.rowSize])
		src = src[take*ar.rowSize:]
		ar.tailLen += take
		ar.storedRows += take
		nrec -= take

		if ar.tailLen == chunkRows {
			if err := ar.flushTail(); err != nil {
				return err
			}
		}
	}

	return nil
}

// flushTail compresses and writes the assembled chunk.
func (ar *Array) flushTail() error {
	if ar.tailLen == 0 {
		return nil
	}

	stored, err := ar.filter.Apply(ar.tail[:ar.tailLen*ar.rowSize])
	if err != nil {
		return fmt.Errorf("filter %s failed: %w", ar.filter.Name(), err)
	}

	addr, err := ar.w.alloc.Allocate(uint64(len(stored)))
	if err != nil {
		return err
	}
	if err := ar.w.writeAt(stored, addr); err != nil {
		return err
	}

	ar.info.Chunks = append(ar.info.Chunks, ChunkRef{Addr: addr, Size: uint64(len(stored))})
	ar.tailLen = 0

	return nil
}

// seal finalizes the array: the partial tail chunk (if any) is written and
// the footer record is fixed at the stored row count.
func (ar *Array) seal() error {
	if ar.sealed {
		return nil
	}

	if ar.filter != nil {
		if err := ar.flushTail(); err != nil {
			return err
		}
	}

	ar.info.Rows = ar.storedRows
	ar.sealed = true

	return nil
}
