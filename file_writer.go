// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scigolib/trainfile/internal/container"
)

// FileWriter writes per-train records into a sequence of container files.
//
// Values are staged per train with AddValue and committed with WriteTrain;
// Close flushes all buffered records, finalizes the index section and
// seals the file. A FileWriter drives exactly one open file at a time and
// must be used from a single goroutine.
type FileWriter struct {
	opts    Options
	schema  *Schema
	pattern string
	log     zerolog.Logger

	sources     map[string]*Source
	sourceOrder []string

	// trainData stages encoded values for the current train, keyed by
	// source then dataset key. Instrument entries are dropped after every
	// train; Control entries persist and are re-written each train.
	trainData map[string]map[string]stagedValue

	trains     []uint64
	timestamps []uint64
	flags      []uint32

	seq    int
	file   *container.Writer
	closed bool
}

// NewFileWriter creates a writer for the given schema and opens the first
// sequence file. filename may be a printf pattern with one integer verb
// ("run-%03d.tcf"); the verb is required when sequence rotation is enabled
// and receives the sequence number.
func NewFileWriter(filename string, schema *Schema, opts ...Option) (*FileWriter, error) {
	if schema == nil || len(schema.order) == 0 {
		return nil, fmt.Errorf("schema has no datasets")
	}

	options := defaultOptions()
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	if options.BreakIntoSequence && !hasSequenceVerb(filename) {
		return nil, fmt.Errorf("sequence rotation needs a filename pattern with an integer verb, got %q",
			filename)
	}

	fw := &FileWriter{
		opts:      options,
		schema:    schema,
		pattern:   filename,
		log:       options.Logger,
		sources:   make(map[string]*Source),
		trainData: make(map[string]map[string]stagedValue),
	}

	for _, srcName := range schema.sourceOrder {
		fw.sources[srcName] = newSource(srcName, schema.sources[srcName])
		fw.sourceOrder = append(fw.sourceOrder, srcName)
	}
	for _, name := range schema.order {
		ds := schema.datasets[name]
		fw.sources[ds.sourceName].addSchema(ds)
	}

	if err := fw.initFile(); err != nil {
		return nil, err
	}

	return fw, nil
}

// hasSequenceVerb reports whether pattern contains a printf verb (a '%'
// not escaped as "%%").
func hasSequenceVerb(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '%' {
			i++
			continue
		}
		return true
	}
	return false
}

// sequenceFilename expands the pattern for the given sequence number.
func (fw *FileWriter) sequenceFilename(seq int) string {
	if hasSequenceVerb(fw.pattern) {
		return fmt.Sprintf(fw.pattern, seq)
	}
	return fw.pattern
}

// Filename returns the path of the currently open sequence file.
func (fw *FileWriter) Filename() string {
	return fw.sequenceFilename(fw.seq)
}

// Sequence returns the current sequence number, starting at zero.
func (fw *FileWriter) Sequence() int {
	return fw.seq
}

// initFile creates the next sequence file: METADATA section, then the data
// arrays of every source with fresh writers.
func (fw *FileWriter) initFile() error {
	filename := fw.sequenceFilename(fw.seq)

	file, err := container.Create(filename)
	if err != nil {
		return err
	}
	fw.file = file

	if err := fw.writeMetadata(); err != nil {
		_ = file.Close()
		return err
	}

	for _, srcName := range fw.sourceOrder {
		src := fw.sources[srcName]
		if err := src.createArrays(file, fw.opts.MaxTrainsPerFile, fw.opts.Buffering); err != nil {
			_ = file.Close()
			return err
		}
	}

	fw.log.Debug().Str("file", filename).Int("seq", fw.seq).Msg("opened sequence file")
	return nil
}

// writeMetadata writes the METADATA section: format version, writing
// library and the list of data sources.
func (fw *FileWriter) writeMetadata() error {
	if err := fw.file.CreateGroup("METADATA/dataSources"); err != nil {
		return err
	}
	if err := fw.file.CreateStringArray("METADATA/dataFormatVersion", []string{"1.0"}); err != nil {
		return err
	}
	if err := fw.file.CreateStringArray("METADATA/daqLibrary",
		[]string{"trainfile " + Version}); err != nil {
		return err
	}

	ids := make([]string, 0, len(fw.sourceOrder))
	sections := make([]string, 0, len(fw.sourceOrder))
	devices := make([]string, 0, len(fw.sourceOrder))
	for _, srcName := range fw.sourceOrder {
		section := fw.sources[srcName].cadence.Section()
		ids = append(ids, section+"/"+srcName)
		sections = append(sections, section)
		devices = append(devices, srcName)
	}

	if err := fw.file.CreateStringArray("METADATA/dataSources/dataSourceId", ids); err != nil {
		return err
	}
	if err := fw.file.CreateStringArray("METADATA/dataSources/root", sections); err != nil {
		return err
	}
	return fw.file.CreateStringArray("METADATA/dataSources/deviceId", devices)
}

// AddValue stages a value for the current train under the registered field
// name. The value must form a whole number of records of the field's entry
// shape; Control fields accept exactly one record per train. All datasets
// of one source must agree on the record count within a train.
func (fw *FileWriter) AddValue(name string, value interface{}) error {
	if fw.closed {
		return ErrWriterClosed
	}

	ds, ok := fw.schema.datasets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	src := fw.sources[ds.sourceName]

	v, err := encodeValue(ds, value)
	if err != nil {
		return err
	}
	if ds.cadence == CadenceControl && v.nrec != 1 {
		return fmt.Errorf("field %q: %w, got %d", name, ErrCardinality, v.nrec)
	}

	srcData, ok := fw.trainData[src.name]
	if !ok {
		srcData = make(map[string]stagedValue)
		fw.trainData[src.name] = srcData
	}

	// All datasets of a source share one record count per train. The sole
	// submitted dataset may be resubmitted with a new count.
	_, resubmit := srcData[ds.key]
	switch {
	case src.nrec == 0:
		src.nrec = v.nrec
	case src.nrec != v.nrec && len(srcData) == 1 && resubmit:
		src.nrec = v.nrec
	case src.nrec != v.nrec:
		return fmt.Errorf("field %q: %w: got %d entries, %d previously submitted",
			name, ErrInconsistentCount, v.nrec, src.nrec)
	}

	srcData[ds.key] = v
	return nil
}

// AddValueByKey stages a value addressed by its (source, key) pair instead
// of the field name.
func (fw *FileWriter) AddValueByKey(source, key string, value interface{}) error {
	name, ok := fw.schema.DatasetByKey(source, key)
	if !ok {
		return fmt.Errorf("%w: (%s, %s)", ErrUnknownField, source, key)
	}
	return fw.AddValue(name, value)
}

// AddValues stages several fields at once.
func (fw *FileWriter) AddValues(values map[string]interface{}) error {
	for name, value := range values {
		if err := fw.AddValue(name, value); err != nil {
			return err
		}
	}
	return nil
}

// WriteTrain commits the staged data as train trainID with the given
// timestamp. A sequence file rotation happens first if the current file is
// at capacity. Any registered dataset missing from a non-empty submission
// fails the train with an IncompleteError; an entirely empty Instrument
// submission is committed with zero entries.
func (fw *FileWriter) WriteTrain(trainID, timestamp uint64) error {
	if fw.closed {
		return ErrWriterClosed
	}

	if err := fw.rotateSequenceFile(); err != nil {
		return err
	}

	var missing []MissingField
	emptySources := make([]string, 0)
	for _, srcName := range fw.sourceOrder {
		src := fw.sources[srcName]
		miss, empty := src.isDataComplete(fw.trainData[srcName])
		if empty {
			emptySources = append(emptySources, srcName)
		}
		for _, key := range miss {
			missing = append(missing, MissingField{Source: srcName, Key: key})
		}
	}
	if len(missing) > 0 {
		return &IncompleteError{Train: trainID, Missing: missing}
	}
	if fw.opts.WarnOnMissingData && len(emptySources) > 0 {
		fw.log.Warn().Uint64("train", trainID).
			Str("sources", strings.Join(emptySources, ",")).
			Msg("instrument sources submitted no data for train")
	}

	for _, srcName := range fw.sourceOrder {
		src := fw.sources[srcName]
		data := fw.trainData[srcName]
		if data == nil {
			data = map[string]stagedValue{}
		}
		if err := src.writeTrain(data); err != nil {
			return err
		}
		if src.cadence == CadenceInstrument {
			delete(fw.trainData, srcName)
		}
	}

	fw.trains = append(fw.trains, trainID)
	fw.timestamps = append(fw.timestamps, timestamp)
	fw.flags = append(fw.flags, 1)

	return nil
}

// rotateSequenceFile closes the current file and opens the next one when
// the train capacity is reached and rotation is enabled.
func (fw *FileWriter) rotateSequenceFile() error {
	if !fw.opts.BreakIntoSequence || uint64(len(fw.trains)) < fw.opts.MaxTrainsPerFile {
		return nil
	}

	if err := fw.closeFile(); err != nil {
		return err
	}
	fw.seq++

	fw.log.Info().Int("seq", fw.seq).Msg("rotating to next sequence file")
	return fw.initFile()
}

// closeFile flushes every writer, finalizes the INDEX section and seals
// the current file.
func (fw *FileWriter) closeFile() error {
	for _, srcName := range fw.sourceOrder {
		if err := fw.sources[srcName].flushWriters(); err != nil {
			return err
		}
	}

	if err := fw.writeIndices(); err != nil {
		return err
	}

	ntrains := len(fw.trains)
	fw.trains = fw.trains[:0]
	fw.timestamps = fw.timestamps[:0]
	fw.flags = fw.flags[:0]

	if err := fw.file.Close(); err != nil {
		return err
	}

	fw.log.Debug().Str("file", fw.file.Filename()).Int("trains", ntrains).
		Msg("closed sequence file")
	return nil
}

// writeIndices writes the global train index and every source's
// first/count index into the current file.
func (fw *FileWriter) writeIndices() error {
	if err := fw.file.CreateGroup("INDEX"); err != nil {
		return err
	}

	ntrains := uint64(len(fw.trains))
	maxTrains := fw.opts.MaxTrainsPerFile

	writeU64 := func(path string, vals []uint64) error {
		arr, err := fw.file.CreateArray(path, Uint64.code(), 8, nil, maxTrains, nil)
		if err != nil {
			return err
		}
		if err := arr.Resize(ntrains); err != nil {
			return err
		}
		buf := make([]byte, ntrains*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], v)
		}
		return arr.WriteRows(buf, 0, ntrains)
	}

	if err := writeU64("INDEX/trainId", fw.trains); err != nil {
		return err
	}
	if err := writeU64("INDEX/timestamp", fw.timestamps); err != nil {
		return err
	}

	flagArr, err := fw.file.CreateArray("INDEX/flag", Uint32.code(), 4, nil, maxTrains, nil)
	if err != nil {
		return err
	}
	if err := flagArr.Resize(ntrains); err != nil {
		return err
	}
	flagBuf := make([]byte, ntrains*4)
	for i, v := range fw.flags {
		binary.LittleEndian.PutUint32(flagBuf[i*4:], v)
	}
	if err := flagArr.WriteRows(flagBuf, 0, ntrains); err != nil {
		return err
	}

	for _, srcName := range fw.sourceOrder {
		if err := fw.sources[srcName].writeIndex(fw.file, ntrains, maxTrains); err != nil {
			return err
		}
	}

	return nil
}

// Close flushes all buffered records, finalizes the index section and
// closes the backing file. The writer cannot be used afterwards.
func (fw *FileWriter) Close() error {
	if fw.closed {
		return nil
	}

	if err := fw.closeFile(); err != nil {
		return err
	}
	fw.closed = true

	return nil
}
