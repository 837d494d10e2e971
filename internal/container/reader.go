// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package container

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Reader provides read access to a closed container file. The whole file
// is memory-mapped; chunk data is copied out (and decompressed) on demand,
// so returned slices stay valid after Close.
type Reader struct {
	file *os.File
	data mmap.MMap

	groups []string
	order  []string
	arrays map[string]*ArrayInfo
}

// OpenReader memory-maps a container file and parses its footer. Fails on
// files that were not closed cleanly (zero footer offset).
func OpenReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	r := &Reader{file: file, data: data, arrays: make(map[string]*ArrayInfo)}

	hdr, err := DecodeHeader(data)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	if hdr.FooterOffset == 0 {
		_ = r.Close()
		return nil, fmt.Errorf("file %q was not closed cleanly (no footer)", filename)
	}
	if hdr.FooterOffset+hdr.FooterSize > uint64(len(data)) {
		_ = r.Close()
		return nil, fmt.Errorf("%w: footer extends past end of file", ErrCorruptFooter)
	}

	groups, arrays, err := DecodeFooter(data[hdr.FooterOffset : hdr.FooterOffset+hdr.FooterSize])
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	r.groups = groups
	for i := range arrays {
		ai := &arrays[i]
		r.order = append(r.order, ai.Path)
		r.arrays[ai.Path] = ai
	}

	return r, nil
}

// Close unmaps and closes the file.
func (r *Reader) Close() error {
	var err error
	if r.data != nil {
		err = r.data.Unmap()
		r.data = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}

// Groups returns all group paths in creation order.
func (r *Reader) Groups() []string {
	return r.groups
}

// ArrayPaths returns all array paths in creation order.
func (r *Reader) ArrayPaths() []string {
	return r.order
}

// Array returns the footer record for path.
func (r *Reader) Array(path string) (*ArrayInfo, bool) {
	ai, ok := r.arrays[path]
	return ai, ok
}

// ReadArray returns the full decompressed row data of the array at path:
// Rows records of EntrySize bytes each.
func (r *Reader) ReadArray(path string) ([]byte, *ArrayInfo, error) {
	ai, ok := r.arrays[path]
	if !ok {
		return nil, nil, fmt.Errorf("no such array: %q", path)
	}
	if ai.Dtype == StringDtype {
		return nil, nil, fmt.Errorf("array %q holds strings, use ReadStrings", path)
	}

	filter, err := NewFilter(ai.Filter)
	if err != nil {
		return nil, nil, err
	}

	rowSize := ai.EntrySize()
	out := make([]byte, ai.Rows*rowSize)
	pos := uint64(0)

	for i, chunk := range ai.Chunks {
		validRows := ai.Rows - uint64(i)*ai.ChunkRows
		if validRows > ai.ChunkRows {
			validRows = ai.ChunkRows
		}
		want := validRows * rowSize

		if chunk.Addr+chunk.Size > uint64(len(r.data)) {
			return nil, nil, fmt.Errorf("array %q: chunk %d extends past end of file", path, i)
		}
		stored := r.data[chunk.Addr : chunk.Addr+chunk.Size]

		if filter == nil {
			// Raw chunks are preallocated at full size; only the valid
			// prefix of the final chunk carries data.
			if uint64(len(stored)) < want {
				return nil, nil, fmt.Errorf("array %q: chunk %d is %d bytes, want %d",
					path, i, len(stored), want)
			}
			copy(out[pos:], stored[:want])
		} else {
			raw, err := filter.Remove(stored)
			if err != nil {
				return nil, nil, fmt.Errorf("array %q: chunk %d: %w", path, i, err)
			}
			if uint64(len(raw)) != want {
				return nil, nil, fmt.Errorf("array %q: chunk %d decompressed to %d bytes, want %d",
					path, i, len(raw), want)
			}
			copy(out[pos:], raw)
		}

		pos += want
	}

	return out, ai, nil
}

// ReadStrings returns the string list stored at path.
func (r *Reader) ReadStrings(path string) ([]string, error) {
	ai, ok := r.arrays[path]
	if !ok {
		return nil, fmt.Errorf("no such array: %q", path)
	}
	if ai.Dtype != StringDtype {
		return nil, fmt.Errorf("array %q does not hold strings", path)
	}
	if len(ai.Chunks) != 1 {
		return nil, fmt.Errorf("array %q: string arrays are single-chunk, found %d", path, len(ai.Chunks))
	}

	chunk := ai.Chunks[0]
	if chunk.Addr+chunk.Size > uint64(len(r.data)) {
		return nil, fmt.Errorf("array %q: chunk extends past end of file", path)
	}
	blob := r.data[chunk.Addr : chunk.Addr+chunk.Size]

	if len(blob) < 4 {
		return nil, fmt.Errorf("array %q: truncated string chunk", path)
	}
	count := binary.LittleEndian.Uint32(blob)
	pos := uint64(4)

	values := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > uint64(len(blob)) {
			return nil, fmt.Errorf("array %q: truncated string chunk", path)
		}
		n := uint64(binary.LittleEndian.Uint32(blob[pos:]))
		pos += 4
		if pos+n > uint64(len(blob)) {
			return nil, fmt.Errorf("array %q: truncated string chunk", path)
		}
		values = append(values, string(blob[pos:pos+n]))
		pos += n
	}

	return values, nil
}

// ReadUint64s reads an 8-byte unsigned integer array.
func (r *Reader) ReadUint64s(path string) ([]uint64, error) {
	buf, ai, err := r.ReadArray(path)
	if err != nil {
		return nil, err
	}
	if ai.ElemSize != 8 {
		return nil, fmt.Errorf("array %q: element size %d, want 8", path, ai.ElemSize)
	}

	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out, nil
}

// ReadUint32s reads a 4-byte unsigned integer array.
func (r *Reader) ReadUint32s(path string) ([]uint32, error) {
	buf, ai, err := r.ReadArray(path)
	if err != nil {
		return nil, err
	}
	if ai.ElemSize != 4 {
		return nil, fmt.Errorf("array %q: element size %d, want 4", path, ai.ElemSize)
	}

	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}

// ReadFloat64s reads an 8-byte float array.
func (r *Reader) ReadFloat64s(path string) ([]float64, error) {
	buf, ai, err := r.ReadArray(path)
	if err != nil {
		return nil, err
	}
	if ai.ElemSize != 8 {
		return nil, fmt.Errorf("array %q: element size %d, want 8", path, ai.ElemSize)
	}

	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
