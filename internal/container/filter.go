// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// FilterID identifies the transformation applied to stored chunk data.
type FilterID uint16

// Supported chunk filters.
const (
	FilterNone    FilterID = 0 // Raw chunk bytes
	FilterDeflate FilterID = 1 // DEFLATE via gzip framing
	FilterZstd    FilterID = 2 // Zstandard
	FilterLZ4     FilterID = 3 // LZ4 frame format
)

// Filter transforms chunk data on its way to and from storage.
// Apply runs on the write path, Remove reverses it on the read path.
type Filter interface {
	// ID returns the filter identifier recorded in the footer.
	ID() FilterID

	// Name returns a human-readable filter name.
	Name() string

	// Apply transforms a chunk for storage (compression on write path).
	Apply(data []byte) ([]byte, error)

	// Remove reverses Apply (decompression on read path).
	Remove(data []byte) ([]byte, error)
}

// NewFilter returns the filter implementation for id. Used by the read
// path, where only the identifier is known.
func NewFilter(id FilterID) (Filter, error) {
	switch id {
	case FilterNone:
		return nil, nil
	case FilterDeflate:
		return NewDeflateFilter(6), nil
	case FilterZstd:
		return NewZstdFilter(3), nil
	case FilterLZ4:
		return NewLZ4Filter(), nil
	default:
		return nil, fmt.Errorf("unknown filter id: %d", id)
	}
}

// DeflateFilter compresses chunks with DEFLATE (gzip framing).
//
// Compression levels:
//
//	1 = fastest compression, larger files
//	6 = balanced (default)
//	9 = best compression, slower
type DeflateFilter struct {
	level int
}

// NewDeflateFilter creates a DEFLATE filter with the specified compression
// level. Invalid levels are adjusted to 6 (default).
func NewDeflateFilter(level int) *DeflateFilter {
	if level < 1 || level > 9 {
		level = 6
	}
	return &DeflateFilter{level: level}
}

// ID returns the filter identifier for DEFLATE.
func (f *DeflateFilter) ID() FilterID { return FilterDeflate }

// Name returns the filter name.
func (f *DeflateFilter) Name() string { return "deflate" }

// Apply compresses data using the DEFLATE algorithm.
func (f *DeflateFilter) Apply(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer creation failed: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close() // Ignore close error on write failure
		return nil, fmt.Errorf("gzip compression failed: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Remove decompresses DEFLATE-compressed data.
func (f *DeflateFilter) Remove(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer func() { _ = r.Close() }()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip decompression failed: %w", err)
	}

	return decompressed, nil
}

// ZstdFilter compresses chunks with Zstandard.
type ZstdFilter struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdFilter creates a Zstandard filter. The level follows the zstd
// scale (1 = fastest, 3 = default, higher = better ratio).
func NewZstdFilter(level int) *ZstdFilter {
	enc, _ := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	dec, _ := zstd.NewReader(nil)
	return &ZstdFilter{enc: enc, dec: dec}
}

// ID returns the filter identifier for Zstandard.
func (f *ZstdFilter) ID() FilterID { return FilterZstd }

// Name returns the filter name.
func (f *ZstdFilter) Name() string { return "zstd" }

// Apply compresses data using Zstandard.
func (f *ZstdFilter) Apply(data []byte) ([]byte, error) {
	return f.enc.EncodeAll(data, nil), nil
}

// Remove decompresses Zstandard-compressed data.
func (f *ZstdFilter) Remove(data []byte) ([]byte, error) {
	out, err := f.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}

// LZ4Filter compresses chunks with the LZ4 frame format.
type LZ4Filter struct{}

// NewLZ4Filter creates an LZ4 filter.
func NewLZ4Filter() *LZ4Filter { return &LZ4Filter{} }

// ID returns the filter identifier for LZ4.
func (f *LZ4Filter) ID() FilterID { return FilterLZ4 }

// Name returns the filter name.
func (f *LZ4Filter) Name() string { return "lz4" }

// Apply compresses data using LZ4 frames.
func (f *LZ4Filter) Apply(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Remove decompresses LZ4-compressed data.
func (f *LZ4Filter) Remove(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}

	return decompressed, nil
}
