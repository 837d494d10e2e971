// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShapeMismatch is returned when a submitted value cannot form a
	// whole number of records of the dataset's entry shape.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrCardinality is returned when more than one entry is submitted for
	// a control dataset in a single train.
	ErrCardinality = errors.New("control source accepts exactly one entry per train")

	// ErrInconsistentCount is returned when two datasets of one source
	// submit different entry counts for the same train.
	ErrInconsistentCount = errors.New("entry count mismatch within source")

	// ErrUnknownField is returned for a field name no dataset was
	// registered under.
	ErrUnknownField = errors.New("unknown field")

	// ErrWriterClosed is returned by operations on a closed FileWriter.
	ErrWriterClosed = errors.New("writer is closed")
)

// MissingField identifies one registered dataset absent from a train
// submission.
type MissingField struct {
	Source string
	Key    string
}

// IncompleteError reports every (source, key) pair a train submission was
// missing when the train was committed.
type IncompleteError struct {
	Train   uint64
	Missing []MissingField
}

func (e *IncompleteError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "data was not submitted for %d dataset(s) in train %d:", len(e.Missing), e.Train)
	for _, m := range e.Missing {
		fmt.Fprintf(&sb, "\n%s: %s", m.Source, m.Key)
	}
	return sb.String()
}
