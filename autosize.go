// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import "fmt"

// Chunk byte budgets and minimum row counts per entry class. Scalars get a
// small budget with a floor tied to the file's train capacity, so a typical
// run fits one chunk; bulky multidimensional entries get a large budget
// with a small row floor.
const (
	scalarChunkBytes   = 16 << 10  // 16 KiB
	vectorChunkBytes   = 512 << 10 // 512 KiB
	multidimChunkBytes = 8 << 20   // 8 MiB

	vectorMinRows   = 32
	multidimMinRows = 32
)

// autosizeChunk picks the chunk row count for a dataset: entries are
// classified as scalar (size 1), vector (rank ≤ 1) or multidimensional,
// each class pairing a chunk byte budget with a minimum row count. Control
// datasets never need more buffered rows than the file holds trains, so
// their row count is clamped to maxTrains.
func autosizeChunk(entryShape []uint64, dtype Dtype, control bool, maxTrains uint64) (uint64, error) {
	if maxTrains == 0 {
		return 0, fmt.Errorf("max trains must be at least 1")
	}

	size := uint64(1)
	for _, d := range entryShape {
		size *= d
	}
	nbytes := size * uint64(dtype.Size())
	if nbytes == 0 {
		return 0, fmt.Errorf("entry has zero byte size")
	}

	var budget, minRows uint64
	switch {
	case size == 1:
		budget, minRows = scalarChunkBytes, maxTrains
	case len(entryShape) <= 1:
		budget, minRows = vectorChunkBytes, vectorMinRows
	default:
		budget, minRows = multidimChunkBytes, multidimMinRows
	}

	rows := budget / nbytes
	if rows < minRows {
		rows = minRows
	}
	if control && rows > maxTrains {
		rows = maxTrains
	}
	if rows < 1 {
		rows = 1
	}

	return rows, nil
}
