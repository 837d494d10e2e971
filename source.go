// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/trainfile/internal/container"
)

// Source groups the co-located datasets of one device. All datasets of a
// source share a single entry count per train, recorded in the source's
// first/count index.
//
// Index invariant: first[t] + count[t] == first[t+1] for every train t.
// Control sources record count 1 for every train once initialized.
type Source struct {
	name    string
	cadence Cadence

	datasets []*DatasetSchema
	writers  []recordWriter // Parallel to datasets; rebuilt per sequence file

	first []uint64 // Absolute start offset per committed train
	count []uint64 // Entries written per committed train
	pos   uint64   // Next absolute record offset
	nrec  uint64   // Entries accumulated for the in-progress train
}

func newSource(name string, cadence Cadence) *Source {
	return &Source{name: name, cadence: cadence}
}

// Name returns the source group name.
func (s *Source) Name() string { return s.name }

// Cadence returns the source cadence.
func (s *Source) Cadence() Cadence { return s.cadence }

// addSchema registers a dataset under this source.
func (s *Source) addSchema(ds *DatasetSchema) {
	s.datasets = append(s.datasets, ds)
	s.writers = append(s.writers, nil)
}

// createArrays creates this source's data arrays in a freshly opened
// sequence file and attaches a writer per dataset.
func (s *Source) createArrays(w *container.Writer, maxTrains uint64, buffering bool) error {
	for i, ds := range s.datasets {
		if err := w.CreateGroup(ds.groupPath()); err != nil {
			return err
		}

		chunkRows := ds.chunkRows
		if chunkRows == 0 {
			var err error
			chunkRows, err = autosizeChunk(ds.entryShape, ds.dtype, s.cadence == CadenceControl, maxTrains)
			if err != nil {
				return fmt.Errorf("dataset %q: %w", ds.arrayPath(), err)
			}
		}

		arr, err := w.CreateArray(ds.arrayPath(), ds.dtype.code(), ds.dtype.Size(),
			ds.entryShape, chunkRows, ds.compression.filter())
		if err != nil {
			return err
		}

		if buffering {
			s.writers[i] = newBufferedWriter(arr, chunkRows)
		} else {
			s.writers[i] = newDirectWriter(arr)
		}
	}

	return nil
}

// writeTrain appends the staged values to the dataset arrays and records
// the (first, count) index pair for the train. The per-train entry counter
// then resets: to one for Control sources (the previous value stays
// current), to zero for Instrument sources.
func (s *Source) writeTrain(data map[string]stagedValue) error {
	for i, ds := range s.datasets {
		v, ok := data[ds.key]
		if !ok {
			continue
		}
		if err := s.writers[i].write(v.rows, s.nrec); err != nil {
			return fmt.Errorf("dataset %q: %w", ds.arrayPath(), err)
		}
	}

	s.first = append(s.first, s.pos)
	s.count = append(s.count, s.nrec)
	s.pos += s.nrec

	if s.cadence == CadenceControl {
		s.nrec = 1
	} else {
		s.nrec = 0
	}

	return nil
}

// isDataComplete checks a train submission against the registered
// datasets. An entirely empty Instrument submission is reported as empty
// (tolerated, committed with count zero); otherwise any registered key
// absent from the submission is returned as missing.
func (s *Source) isDataComplete(data map[string]stagedValue) (missing []string, empty bool) {
	if s.cadence == CadenceInstrument && len(data) == 0 {
		return nil, true
	}

	for _, ds := range s.datasets {
		if _, ok := data[ds.key]; !ok {
			missing = append(missing, ds.key)
		}
	}

	return missing, false
}

// flushWriters forces all staged records of this source to storage.
func (s *Source) flushWriters() error {
	for i, wr := range s.writers {
		if wr == nil {
			continue
		}
		if err := wr.flush(); err != nil {
			return fmt.Errorf("dataset %q: %w", s.datasets[i].arrayPath(), err)
		}
	}
	return nil
}

// writeIndex persists the first/count pairs of the ntrains committed
// trains into the file's INDEX section and trims them from memory. The
// retained (unflushed) trains are rebased to position zero for the next
// sequence file.
func (s *Source) writeIndex(w *container.Writer, ntrains, maxTrains uint64) error {
	if err := w.CreateGroup("INDEX/" + s.name); err != nil {
		return err
	}

	for _, part := range []struct {
		key  string
		vals *[]uint64
	}{
		{"first", &s.first},
		{"count", &s.count},
	} {
		arr, err := w.CreateArray("INDEX/"+s.name+"/"+part.key, Uint64.code(), 8, nil, maxTrains, nil)
		if err != nil {
			return err
		}
		if err := arr.Resize(ntrains); err != nil {
			return err
		}

		buf := make([]byte, ntrains*8)
		for i := uint64(0); i < ntrains; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], (*part.vals)[i])
		}
		if err := arr.WriteRows(buf, 0, ntrains); err != nil {
			return err
		}

		*part.vals = append([]uint64(nil), (*part.vals)[ntrains:]...)
	}

	s.pos = 0
	for t := range s.count {
		s.first[t] = s.pos
		s.pos += s.count[t]
	}

	return nil
}
