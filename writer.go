// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"fmt"

	"github.com/scigolib/trainfile/internal/container"
)

// recordWriter appends records to one extensible array. Implementations
// must produce identical array contents for identical call sequences;
// buffering is a write-batching optimization, never a reordering.
type recordWriter interface {
	// write appends nrec records held in rows (nrec * entrySize bytes).
	write(rows []byte, nrec uint64) error

	// flush forces staged records to storage. Must be called before the
	// backing file is closed or staged data is lost.
	flush() error
}

// directWriter appends every call straight to the array: one storage write
// per call. Used when buffering is disabled.
type directWriter struct {
	arr *container.Array
	pos uint64 // Next absolute record offset
}

func newDirectWriter(arr *container.Array) *directWriter {
	return &directWriter{arr: arr}
}

func (w *directWriter) write(rows []byte, nrec uint64) error {
	end := w.pos + nrec
	if err := w.arr.Resize(end); err != nil {
		return err
	}
	if err := w.arr.SetRows(rows, w.pos, nrec); err != nil {
		return err
	}
	w.pos = end
	return nil
}

func (w *directWriter) flush() error {
	return nil
}

// bufferedWriter stages records in a chunk-sized block and writes whole
// chunks, so the storage engine sees chunk-aligned bulk writes instead of
// one write per record. Between calls the staging fill level is always
// below the chunk row count; reaching it triggers an internal flush.
type bufferedWriter struct {
	arr       *container.Array
	rowSize   uint64
	chunkRows uint64

	staging []byte // chunkRows * rowSize staging block
	staged  uint64 // Records currently staged
	pos     uint64 // Absolute record offset of the first staged record
}

func newBufferedWriter(arr *container.Array, chunkRows uint64) *bufferedWriter {
	return &bufferedWriter{
		arr:       arr,
		rowSize:   arr.RowSize(),
		chunkRows: chunkRows,
		staging:   make([]byte, chunkRows*arr.RowSize()),
	}
}

func (w *bufferedWriter) write(rows []byte, nrec uint64) error {
	if uint64(len(rows)) != nrec*w.rowSize {
		return fmt.Errorf("record block is %d bytes, want %d", len(rows), nrec*w.rowSize)
	}
	if nrec == 1 {
		return w.writeOne(rows)
	}
	return w.writeMany(rows, nrec)
}

// writeOne stages a single record, flushing when the block fills.
func (w *bufferedWriter) writeOne(row []byte) error {
	copy(w.staging[w.staged*w.rowSize:], row)
	w.staged++
	if w.staged >= w.chunkRows {
		return w.flush()
	}
	return nil
}

// writeMany appends a batch. Three cases:
//
//  1. The batch fits in the remaining staging space: copy, no storage I/O.
//  2. The batch tops off the staging block and the remainder still fits in
//     one more chunk: fill the block, flush it as one chunk-aligned write,
//     stage the remainder.
//  3. The batch spans multiple chunks: flush the partial block, write the
//     whole chunks directly from the batch bypassing staging, stage the
//     trailing remainder.
func (w *bufferedWriter) writeMany(rows []byte, nrec uint64) error {
	bufRest := w.chunkRows - w.staged

	switch {
	case nrec < bufRest:
		copy(w.staging[w.staged*w.rowSize:], rows)
		w.staged += nrec

	case w.staged > 0 && nrec-bufRest < w.chunkRows:
		copy(w.staging[w.staged*w.rowSize:], rows[:bufRest*w.rowSize])
		w.staged = w.chunkRows
		if err := w.flush(); err != nil {
			return err
		}

		rest := nrec - bufRest
		copy(w.staging, rows[bufRest*w.rowSize:])
		w.staged = rest

	default:
		rest := nrec % w.chunkRows
		whole := nrec - rest

		// Extend the growth axis over the staged and whole-chunk range in
		// one step, then write both blocks.
		if err := w.arr.Resize(w.pos + w.staged + whole); err != nil {
			return err
		}
		if w.staged > 0 {
			if err := w.arr.WriteRows(w.staging[:w.staged*w.rowSize], w.pos, w.staged); err != nil {
				return err
			}
			w.pos += w.staged
			w.staged = 0
		}
		if err := w.arr.WriteRows(rows[:whole*w.rowSize], w.pos, whole); err != nil {
			return err
		}
		w.pos += whole

		copy(w.staging, rows[whole*w.rowSize:])
		w.staged = rest
	}

	return nil
}

// flush writes the staged records as one bulk write and empties the block.
// No-op when nothing is staged.
func (w *bufferedWriter) flush() error {
	if w.staged == 0 {
		return nil
	}

	end := w.pos + w.staged
	if err := w.arr.Resize(end); err != nil {
		return err
	}
	if err := w.arr.WriteRows(w.staging[:w.staged*w.rowSize], w.pos, w.staged); err != nil {
		return err
	}

	w.pos = end
	w.staged = 0
	return nil
}
