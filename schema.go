// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"fmt"
	"strings"

	"github.com/scigolib/trainfile/internal/container"
)

// Dtype identifies the element type of a dataset.
type Dtype int

// Supported element types.
const (
	Uint8 Dtype = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

// Size returns the element width in bytes.
func (dt Dtype) Size() uint32 {
	switch dt {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

// String returns the dtype name.
func (dt Dtype) String() string {
	names := [...]string{"uint8", "int8", "uint16", "int16", "uint32", "int32",
		"uint64", "int64", "float32", "float64"}
	if dt < 0 || int(dt) >= len(names) {
		return fmt.Sprintf("Dtype(%d)", int(dt))
	}
	return names[dt]
}

// code returns the dtype code stored in the container footer.
func (dt Dtype) code() uint8 {
	return uint8(dt) + 1
}

// Cadence distinguishes the two record cadences of a source.
type Cadence int

const (
	// CadenceControl sources hold exactly one entry per train; the last
	// submitted value persists and is re-written every train until it is
	// overwritten.
	CadenceControl Cadence = iota

	// CadenceInstrument sources hold zero or more entries per train;
	// submitted data is dropped after each train.
	CadenceInstrument
)

// Section returns the top-level file section for this cadence.
func (c Cadence) Section() string {
	if c == CadenceInstrument {
		return "INSTRUMENT"
	}
	return "CONTROL"
}

// Compression selects the chunk filter for a dataset. It is passed through
// to the storage engine untouched.
type Compression int

// Supported compressions.
const (
	NoCompression Compression = iota
	Deflate                   // DEFLATE, balanced level
	Zstd                      // Zstandard, default level
	LZ4                       // LZ4 frames
)

// filter maps the compression to a container filter (nil for none).
func (c Compression) filter() container.Filter {
	switch c {
	case Deflate:
		return container.NewDeflateFilter(6)
	case Zstd:
		return container.NewZstdFilter(3)
	case LZ4:
		return container.NewLZ4Filter()
	default:
		return nil
	}
}

// DatasetSchema describes one dataset: the fixed shape and type of a single
// record, its source and key, and optional storage overrides. Immutable
// after registration.
type DatasetSchema struct {
	name        string
	sourceName  string // Source group path within the section
	key         string // Dataset path below the source group (dots kept)
	entryShape  []uint64
	dtype       Dtype
	cadence     Cadence
	chunkRows   uint64 // 0 = autosize
	compression Compression
}

// Name returns the field name the dataset was registered under.
func (ds *DatasetSchema) Name() string { return ds.name }

// SourceName returns the source group the dataset belongs to.
func (ds *DatasetSchema) SourceName() string { return ds.sourceName }

// Key returns the dataset key below the source group.
func (ds *DatasetSchema) Key() string { return ds.key }

// EntryShape returns a copy of the fixed shape of one record.
func (ds *DatasetSchema) EntryShape() []uint64 {
	return append([]uint64(nil), ds.entryShape...)
}

// Dtype returns the element type.
func (ds *DatasetSchema) Dtype() Dtype { return ds.dtype }

// Cadence returns the cadence of the dataset's source.
func (ds *DatasetSchema) Cadence() Cadence { return ds.cadence }

// entrySize returns the bytes per record.
func (ds *DatasetSchema) entrySize() uint64 {
	size := uint64(ds.dtype.Size())
	for _, d := range ds.entryShape {
		size *= d
	}
	return size
}

// arrayPath returns the dataset's full path inside a sequence file.
func (ds *DatasetSchema) arrayPath() string {
	return ds.groupPath() + "/" + strings.ReplaceAll(ds.key, ".", "/")
}

// groupPath returns the source group's full path inside a sequence file.
func (ds *DatasetSchema) groupPath() string {
	return ds.cadence.Section() + "/" + ds.sourceName
}

// DatasetOption adjusts storage parameters of a registered dataset.
type DatasetOption func(*DatasetSchema) error

// WithChunkRows overrides the autosized chunk row count.
func WithChunkRows(rows uint64) DatasetOption {
	return func(ds *DatasetSchema) error {
		if rows == 0 {
			return fmt.Errorf("chunk rows must be at least 1")
		}
		ds.chunkRows = rows
		return nil
	}
}

// WithCompression selects the chunk compression for the dataset.
func WithCompression(c Compression) DatasetOption {
	return func(ds *DatasetSchema) error {
		if c < NoCompression || c > LZ4 {
			return fmt.Errorf("unknown compression: %d", int(c))
		}
		ds.compression = c
		return nil
	}
}

// Schema is the registry of datasets a FileWriter persists. Datasets are
// registered under a field name and grouped by source; all registration
// happens before the writer is constructed.
//
// Source names follow the facility convention: a name containing a colon
// ("SPB_DET/DET:xtdf") is an Instrument source and its dataset keys carry a
// channel prefix ("image.data" places the dataset under ".../image");
// a name without a colon is a Control source.
type Schema struct {
	datasets    map[string]*DatasetSchema
	order       []string
	byKey       map[[2]string]string // (source, key) -> field name
	sources     map[string]Cadence
	sourceOrder []string
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{
		datasets: make(map[string]*DatasetSchema),
		byKey:    make(map[[2]string]string),
		sources:  make(map[string]Cadence),
	}
}

// AddDataset registers a dataset under the field name. source and key
// identify it in the file ("SPB_XTD9_XGM/DOOCS/MAIN", "beam.intensity");
// entryShape is the fixed shape of one record (nil or empty for scalars).
// Returns the immutable schema handle for the field.
func (s *Schema) AddDataset(name, source, key string, entryShape []uint64, dtype Dtype,
	opts ...DatasetOption) (*DatasetSchema, error) {
	if name == "" {
		return nil, fmt.Errorf("field name cannot be empty")
	}
	if _, dup := s.datasets[name]; dup {
		return nil, fmt.Errorf("field %q is already registered", name)
	}
	if source == "" || key == "" {
		return nil, fmt.Errorf("field %q: source and key cannot be empty", name)
	}
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("field %q: invalid dtype %v", name, dtype)
	}
	for i, d := range entryShape {
		if d == 0 {
			return nil, fmt.Errorf("field %q: entry shape dimension %d cannot be zero", name, i)
		}
	}

	ds := &DatasetSchema{
		name:       name,
		entryShape: append([]uint64(nil), entryShape...),
		dtype:      dtype,
	}

	// A colon marks an instrument source; the key's first dotted token is
	// the output channel and joins the source group path.
	if strings.Contains(source, ":") {
		ds.cadence = CadenceInstrument
		channel, rest, ok := strings.Cut(key, ".")
		if !ok {
			return nil, fmt.Errorf("field %q: instrument key %q needs a '<channel>.<key>' form",
				name, key)
		}
		ds.sourceName = source + "/" + channel
		ds.key = rest
	} else {
		ds.cadence = CadenceControl
		ds.sourceName = source
		ds.key = key
	}

	for _, opt := range opts {
		if err := opt(ds); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}

	canonical := [2]string{source, key}
	if other, dup := s.byKey[canonical]; dup {
		return nil, fmt.Errorf("field %q: (%s, %s) is already registered as %q",
			name, source, key, other)
	}

	s.datasets[name] = ds
	s.order = append(s.order, name)
	s.byKey[canonical] = name
	if _, ok := s.sources[ds.sourceName]; !ok {
		s.sources[ds.sourceName] = ds.cadence
		s.sourceOrder = append(s.sourceOrder, ds.sourceName)
	}

	return ds, nil
}

// Dataset returns the schema handle registered under the field name.
func (s *Schema) Dataset(name string) (*DatasetSchema, bool) {
	ds, ok := s.datasets[name]
	return ds, ok
}

// DatasetByKey returns the field name registered for (source, key).
func (s *Schema) DatasetByKey(source, key string) (string, bool) {
	name, ok := s.byKey[[2]string{source, key}]
	return name, ok
}

// Fields returns the registered field names in registration order.
func (s *Schema) Fields() []string {
	return append([]string(nil), s.order...)
}
