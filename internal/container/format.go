// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// Magic identifies train container files (ASCII "TCF1").
	Magic = 0x31464354

	// FormatVersion is the current container format version.
	FormatVersion = 1

	// HeaderSize is the fixed size of the file header at offset 0.
	HeaderSize = 32

	// StringDtype is the dtype code reserved for variable-length string
	// arrays (METADATA lists). Row data is length-prefixed, not fixed-width.
	StringDtype = 0xFF
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported format version")
	ErrCorruptFooter  = errors.New("corrupt footer")
)

// Header is the fixed-size block at the start of every container file.
// FooterOffset and FooterSize are zero while the file is open for writing
// and are backpatched when the writer closes; a zero FooterOffset therefore
// marks a file that was not closed cleanly.
type Header struct {
	Magic        uint32
	Version      uint32
	FooterOffset uint64
	FooterSize   uint64
	// 8 reserved bytes pad the header to 32 bytes.
}

// EncodeHeader serializes h into a HeaderSize-byte block.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint64(buf[8:], h.FooterOffset)
	binary.LittleEndian.PutUint64(buf[16:], h.FooterSize)
	return buf
}

// DecodeHeader parses and validates a header block.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("header too short: %d bytes", len(buf))
	}

	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	h.FooterOffset = binary.LittleEndian.Uint64(buf[8:])
	h.FooterSize = binary.LittleEndian.Uint64(buf[16:])

	if h.Magic != Magic {
		return h, ErrInvalidMagic
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}

	return h, nil
}

// ChunkRef locates one stored chunk in the data region.
type ChunkRef struct {
	Addr uint64 // File offset of the chunk block
	Size uint64 // Stored size in bytes (post-filter)
}

// ArrayInfo is the footer record describing one array.
type ArrayInfo struct {
	Path       string
	Dtype      uint8    // Element type code (opaque to the container)
	ElemSize   uint32   // Bytes per element (0 for StringDtype)
	EntryShape []uint64 // Shape of one record, excluding the growth axis
	ChunkRows  uint64   // Records per chunk
	Rows       uint64   // Records stored along the growth axis
	Filter     FilterID
	Chunks     []ChunkRef
}

// EntrySize returns the bytes per record (product of EntryShape times
// ElemSize; the product of an empty shape is 1).
func (ai *ArrayInfo) EntrySize() uint64 {
	size := uint64(ai.ElemSize)
	for _, d := range ai.EntryShape {
		size *= d
	}
	return size
}

// EncodeFooter serializes the group list and array records, appending a
// CRC32 (IEEE) of the footer body as the trailing four bytes.
func EncodeFooter(groups []string, arrays []ArrayInfo) ([]byte, error) {
	var buf bytes.Buffer

	putString := func(s string) error {
		if len(s) > 0xFFFF {
			return fmt.Errorf("path too long: %d bytes", len(s))
		}
		var lb [2]byte
		binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
		buf.Write(lb[:])
		buf.WriteString(s)
		return nil
	}
	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	putU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}

	putU32(uint32(len(groups)))
	for _, g := range groups {
		if err := putString(g); err != nil {
			return nil, err
		}
	}

	putU32(uint32(len(arrays)))
	for i := range arrays {
		ai := &arrays[i]
		if err := putString(ai.Path); err != nil {
			return nil, err
		}
		buf.WriteByte(ai.Dtype)
		putU32(ai.ElemSize)
		if len(ai.EntryShape) > 0xFF {
			return nil, fmt.Errorf("entry shape rank too large: %d", len(ai.EntryShape))
		}
		buf.WriteByte(byte(len(ai.EntryShape)))
		for _, d := range ai.EntryShape {
			putU64(d)
		}
		putU64(ai.ChunkRows)
		putU64(ai.Rows)
		var fb [2]byte
		binary.LittleEndian.PutUint16(fb[:], uint16(ai.Filter))
		buf.Write(fb[:])
		putU32(uint32(len(ai.Chunks)))
		for _, c := range ai.Chunks {
			putU64(c.Addr)
			putU64(c.Size)
		}
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	putU32(sum)

	return buf.Bytes(), nil
}

// DecodeFooter parses a footer block, verifying the trailing checksum.
func DecodeFooter(data []byte) (groups []string, arrays []ArrayInfo, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("%w: footer too short (%d bytes)", ErrCorruptFooter, len(data))
	}

	body := data[:len(data)-4]
	want := binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, nil, fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)",
			ErrCorruptFooter, got, want)
	}

	pos := 0
	fail := func(what string) error {
		return fmt.Errorf("%w: truncated %s at offset %d", ErrCorruptFooter, what, pos)
	}
	getU16 := func() (uint16, bool) {
		if pos+2 > len(body) {
			return 0, false
		}
		v := binary.LittleEndian.Uint16(body[pos:])
		pos += 2
		return v, true
	}
	getU32 := func() (uint32, bool) {
		if pos+4 > len(body) {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(body[pos:])
		pos += 4
		return v, true
	}
	getU64 := func() (uint64, bool) {
		if pos+8 > len(body) {
			return 0, false
		}
		v := binary.LittleEndian.Uint64(body[pos:])
		pos += 8
		return v, true
	}
	getString := func() (string, bool) {
		n, ok := getU16()
		if !ok || pos+int(n) > len(body) {
			return "", false
		}
		s := string(body[pos : pos+int(n)])
		pos += int(n)
		return s, true
	}

	ngroups, ok := getU32()
	if !ok {
		return nil, nil, fail("group count")
	}
	groups = make([]string, 0, ngroups)
	for i := uint32(0); i < ngroups; i++ {
		g, ok := getString()
		if !ok {
			return nil, nil, fail("group path")
		}
		groups = append(groups, g)
	}

	narrays, ok := getU32()
	if !ok {
		return nil, nil, fail("array count")
	}
	arrays = make([]ArrayInfo, 0, narrays)
	for i := uint32(0); i < narrays; i++ {
		var ai ArrayInfo
		if ai.Path, ok = getString(); !ok {
			return nil, nil, fail("array path")
		}
		if pos >= len(body) {
			return nil, nil, fail("dtype")
		}
		ai.Dtype = body[pos]
		pos++
		if ai.ElemSize, ok = getU32(); !ok {
			return nil, nil, fail("element size")
		}
		if pos >= len(body) {
			return nil, nil, fail("rank")
		}
		rank := int(body[pos])
		pos++
		ai.EntryShape = make([]uint64, rank)
		for d := 0; d < rank; d++ {
			if ai.EntryShape[d], ok = getU64(); !ok {
				return nil, nil, fail("entry shape")
			}
		}
		if ai.ChunkRows, ok = getU64(); !ok {
			return nil, nil, fail("chunk rows")
		}
		if ai.Rows, ok = getU64(); !ok {
			return nil, nil, fail("rows")
		}
		fid, ok := getU16()
		if !ok {
			return nil, nil, fail("filter id")
		}
		ai.Filter = FilterID(fid)
		nchunks, ok := getU32()
		if !ok {
			return nil, nil, fail("chunk count")
		}
		ai.Chunks = make([]ChunkRef, nchunks)
		for c := uint32(0); c < nchunks; c++ {
			if ai.Chunks[c].Addr, ok = getU64(); !ok {
				return nil, nil, fail("chunk address")
			}
			if ai.Chunks[c].Size, ok = getU64(); !ok {
				return nil, nil, fail("chunk size")
			}
		}
		arrays = append(arrays, ai)
	}

	return groups, arrays, nil
}
