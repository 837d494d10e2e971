// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// stagedValue is a submitted value converted to record bytes, held until
// the train is committed.
type stagedValue struct {
	rows []byte // nrec records of entrySize bytes, little-endian
	nrec uint64
}

// encodeValue converts a submitted value into little-endian record bytes.
// Scalars form one record of a scalar-shaped dataset; flat slices must hold
// a whole number of records (length n*prod(entryShape) for some n ≥ 1).
func encodeValue(ds *DatasetSchema, value interface{}) (stagedValue, error) {
	elems := uint64(1)
	for _, d := range ds.entryShape {
		elems *= d
	}

	buf, count, err := encodeElements(value, ds.dtype)
	if err != nil {
		return stagedValue{}, fmt.Errorf("field %q: %w", ds.name, err)
	}

	if count == 0 || count%elems != 0 {
		return stagedValue{}, fmt.Errorf("field %q: %w: %d element(s) cannot form records of shape %v",
			ds.name, ErrShapeMismatch, count, ds.entryShape)
	}

	return stagedValue{rows: buf, nrec: count / elems}, nil
}

// encodeElements converts a scalar or flat slice of the dtype's Go type to
// little-endian bytes, returning the element count.
func encodeElements(value interface{}, dtype Dtype) ([]byte, uint64, error) {
	switch dtype {
	case Uint8, Int8:
		return encode1ByteElements(value)
	case Uint16, Int16:
		return encode2ByteElements(value)
	case Uint32, Int32:
		return encode4ByteElements(value)
	case Uint64, Int64:
		return encode8ByteElements(value)
	case Float32:
		return encodeFloat32Elements(value)
	case Float64:
		return encodeFloat64Elements(value)
	default:
		return nil, 0, fmt.Errorf("unsupported dtype: %v", dtype)
	}
}

func encode1ByteElements(value interface{}) ([]byte, uint64, error) {
	switch v := value.(type) {
	case uint8:
		return []byte{v}, 1, nil
	case int8:
		return []byte{byte(v)}, 1, nil
	case []uint8:
		buf := make([]byte, len(v))
		copy(buf, v)
		return buf, uint64(len(v)), nil
	case []int8:
		buf := make([]byte, len(v))
		for i, val := range v {
			buf[i] = byte(val)
		}
		return buf, uint64(len(v)), nil
	default:
		return nil, 0, fmt.Errorf("expected (u)int8 scalar or slice, got %T", value)
	}
}

func encode2ByteElements(value interface{}) ([]byte, uint64, error) {
	switch v := value.(type) {
	case uint16:
		return encode2ByteElements([]uint16{v})
	case int16:
		return encode2ByteElements([]int16{v})
	case []uint16:
		buf := make([]byte, len(v)*2)
		for i, val := range v {
			binary.LittleEndian.PutUint16(buf[i*2:], val)
		}
		return buf, uint64(len(v)), nil
	case []int16:
		buf := make([]byte, len(v)*2)
		for i, val := range v {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(val))
		}
		return buf, uint64(len(v)), nil
	default:
		return nil, 0, fmt.Errorf("expected (u)int16 scalar or slice, got %T", value)
	}
}

func encode4ByteElements(value interface{}) ([]byte, uint64, error) {
	switch v := value.(type) {
	case uint32:
		return encode4ByteElements([]uint32{v})
	case int32:
		return encode4ByteElements([]int32{v})
	case []uint32:
		buf := make([]byte, len(v)*4)
		for i, val := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], val)
		}
		return buf, uint64(len(v)), nil
	case []int32:
		buf := make([]byte, len(v)*4)
		for i, val := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(val))
		}
		return buf, uint64(len(v)), nil
	default:
		return nil, 0, fmt.Errorf("expected (u)int32 scalar or slice, got %T", value)
	}
}

func encode8ByteElements(value interface{}) ([]byte, uint64, error) {
	switch v := value.(type) {
	case uint64:
		return encode8ByteElements([]uint64{v})
	case int64:
		return encode8ByteElements([]int64{v})
	case []uint64:
		buf := make([]byte, len(v)*8)
		for i, val := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], val)
		}
		return buf, uint64(len(v)), nil
	case []int64:
		buf := make([]byte, len(v)*8)
		for i, val := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(val))
		}
		return buf, uint64(len(v)), nil
	default:
		return nil, 0, fmt.Errorf("expected (u)int64 scalar or slice, got %T", value)
	}
}

func encodeFloat32Elements(value interface{}) ([]byte, uint64, error) {
	switch v := value.(type) {
	case float32:
		return encodeFloat32Elements([]float32{v})
	case []float32:
		buf := make([]byte, len(v)*4)
		for i, val := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
		}
		return buf, uint64(len(v)), nil
	default:
		return nil, 0, fmt.Errorf("expected float32 scalar or slice, got %T", value)
	}
}

func encodeFloat64Elements(value interface{}) ([]byte, uint64, error) {
	switch v := value.(type) {
	case float64:
		return encodeFloat64Elements([]float64{v})
	case []float64:
		buf := make([]byte, len(v)*8)
		for i, val := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(val))
		}
		return buf, uint64(len(v)), nil
	default:
		return nil, 0, fmt.Errorf("expected float64 scalar or slice, got %T", value)
	}
}
