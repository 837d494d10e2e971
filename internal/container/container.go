// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package container

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Writer creates a container file and owns its data region. Arrays are
// created with a zero-length growth axis and extended as rows arrive; the
// footer describing them is written once, on Close.
//
// Not thread-safe. One Writer per file, one goroutine per Writer.
type Writer struct {
	file     *os.File
	alloc    *Allocator
	filename string

	groups   []string
	groupSet map[string]struct{}

	arrays []*Array
	byPath map[string]*Array

	closed bool
}

// Create creates a new container file, truncating any existing file at
// filename. The header is written immediately with a zero footer offset;
// the offset is backpatched on Close, so an unclosed file is detectable.
func Create(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	w := &Writer{
		file:     file,
		alloc:    NewAllocator(HeaderSize),
		filename: filename,
		groupSet: make(map[string]struct{}),
		byPath:   make(map[string]*Array),
	}

	hdr := EncodeHeader(Header{Magic: Magic, Version: FormatVersion})
	if err := w.writeAt(hdr, 0); err != nil {
		_ = file.Close()
		return nil, err
	}

	return w, nil
}

// Filename returns the path this writer was created with.
func (w *Writer) Filename() string {
	return w.filename
}

// CreateGroup records a group path in the footer. Intermediate groups are
// recorded as well ("a/b/c" also records "a" and "a/b").
func (w *Writer) CreateGroup(path string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if path == "" {
		return fmt.Errorf("group path cannot be empty")
	}

	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			prefix := path[:i]
			if prefix == "" {
				continue
			}
			if _, ok := w.groupSet[prefix]; !ok {
				w.groupSet[prefix] = struct{}{}
				w.groups = append(w.groups, prefix)
			}
		}
	}

	return nil
}

// CreateArray creates an extensible array at path with zero rows along the
// growth axis. dtype and elemSize describe the element; entryShape is the
// fixed shape of one record (empty for scalars); chunkRows is the number of
// records per storage chunk; filter may be nil for raw storage.
func (w *Writer) CreateArray(path string, dtype uint8, elemSize uint32, entryShape []uint64,
	chunkRows uint64, filter Filter) (*Array, error) {
	if w.closed {
		return nil, fmt.Errorf("writer is closed")
	}
	if path == "" {
		return nil, fmt.Errorf("array path cannot be empty")
	}
	if _, dup := w.byPath[path]; dup {
		return nil, fmt.Errorf("array already exists: %q", path)
	}
	if elemSize == 0 {
		return nil, fmt.Errorf("array %q: element size cannot be zero", path)
	}
	if chunkRows == 0 {
		return nil, fmt.Errorf("array %q: chunk rows cannot be zero", path)
	}
	for i, d := range entryShape {
		if d == 0 {
			return nil, fmt.Errorf("array %q: entry shape dimension %d cannot be zero", path, i)
		}
	}

	info := ArrayInfo{
		Path:       path,
		Dtype:      dtype,
		ElemSize:   elemSize,
		EntryShape: append([]uint64(nil), entryShape...),
	}
	ar := &Array{
		w:       w,
		info:    info,
		rowSize: info.EntrySize(),
		filter:  filter,
	}
	ar.info.ChunkRows = chunkRows
	if filter != nil {
		ar.info.Filter = filter.ID()
		ar.tail = make([]byte, chunkRows*ar.rowSize)
	}

	w.arrays = append(w.arrays, ar)
	w.byPath[path] = ar

	return ar, nil
}

// CreateStringArray stores a fixed list of strings at path in a single
// chunk. Used for METADATA lists; the array is written immediately and is
// not extensible.
func (w *Writer) CreateStringArray(path string, values []string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if _, dup := w.byPath[path]; dup {
		return fmt.Errorf("array already exists: %q", path)
	}

	size := 4
	for _, v := range values {
		size += 4 + len(v)
	}
	blob := make([]byte, size)
	binary.LittleEndian.PutUint32(blob, uint32(len(values)))
	pos := 4
	for _, v := range values {
		binary.LittleEndian.PutUint32(blob[pos:], uint32(len(v)))
		pos += 4
		copy(blob[pos:], v)
		pos += len(v)
	}

	addr, err := w.alloc.Allocate(uint64(len(blob)))
	if err != nil {
		return err
	}
	if err := w.writeAt(blob, addr); err != nil {
		return err
	}

	ar := &Array{
		w: w,
		info: ArrayInfo{
			Path:      path,
			Dtype:     StringDtype,
			ElemSize:  0,
			ChunkRows: uint64(len(values)),
			Rows:      uint64(len(values)),
			Chunks:    []ChunkRef{{Addr: addr, Size: uint64(len(blob))}},
		},
		sealed: true,
	}
	w.arrays = append(w.arrays, ar)
	w.byPath[path] = ar

	return nil
}

// Sync flushes written data to disk.
func (w *Writer) Sync() error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	return w.file.Sync()
}

// Close seals every array (flushing buffered tail chunks), writes the
// footer, backpatches the header with the footer location and closes the
// file. The writer cannot be used afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	infos := make([]ArrayInfo, 0, len(w.arrays))
	for _, ar := range w.arrays {
		if err := ar.seal(); err != nil {
			return fmt.Errorf("failed to seal array %q: %w", ar.info.Path, err)
		}
		infos = append(infos, ar.info)
	}

	footer, err := EncodeFooter(w.groups, infos)
	if err != nil {
		return fmt.Errorf("failed to encode footer: %w", err)
	}

	addr, err := w.alloc.Allocate(uint64(len(footer)))
	if err != nil {
		return err
	}
	if err := w.writeAt(footer, addr); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	hdr := EncodeHeader(Header{
		Magic:        Magic,
		Version:      FormatVersion,
		FooterOffset: addr,
		FooterSize:   uint64(len(footer)),
	})
	if err := w.writeAt(hdr, 0); err != nil {
		return fmt.Errorf("failed to rewrite header: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	w.closed = true
	err = w.file.Close()
	w.file = nil
	return err
}

// writeAt writes data at a specific address in the file.
func (w *Writer) writeAt(data []byte, addr uint64) error {
	if len(data) == 0 {
		return nil
	}

	n, err := w.file.WriteAt(data, int64(addr))
	if err != nil {
		return fmt.Errorf("write at address %d failed: %w", addr, err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write at address %d: wrote %d of %d bytes", addr, n, len(data))
	}

	return nil
}
