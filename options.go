// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package trainfile

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Options holds the writer configuration. Zero values are replaced by
// defaultOptions; validation happens inside each Option, so NewFileWriter
// fails eagerly on bad values.
type Options struct {
	// MaxTrainsPerFile is the train capacity of one sequence file and the
	// autosizing hint for scalar chunk sizes. Default 500.
	MaxTrainsPerFile uint64

	// BreakIntoSequence rotates to a new sequence file whenever
	// MaxTrainsPerFile trains have been written. Default off.
	BreakIntoSequence bool

	// WarnOnMissingData logs a warning instead of staying silent when an
	// Instrument source submits no data for a train. Default off.
	WarnOnMissingData bool

	// Buffering stages records in chunk-sized blocks so the storage engine
	// sees chunk-aligned bulk writes. Default on.
	Buffering bool

	// Logger receives lifecycle events (file open/close, rotation,
	// missing-data warnings). Default zerolog.Nop().
	Logger zerolog.Logger
}

func defaultOptions() Options {
	return Options{
		MaxTrainsPerFile: 500,
		Buffering:        true,
		Logger:           zerolog.Nop(),
	}
}

// Option configures a FileWriter during creation.
//
// Example:
//
//	fw, err := trainfile.NewFileWriter("run-%03d.tcf", schema,
//	    trainfile.WithMaxTrainsPerFile(256),
//	    trainfile.WithSequenceRotation(),
//	)
type Option func(*Options) error

// WithMaxTrainsPerFile sets the per-file train capacity.
func WithMaxTrainsPerFile(n uint64) Option {
	return func(o *Options) error {
		if n == 0 {
			return fmt.Errorf("max trains per file must be at least 1")
		}
		o.MaxTrainsPerFile = n
		return nil
	}
}

// WithSequenceRotation enables splitting a run across sequence files once
// the train capacity is reached. The filename must then be a pattern with
// one integer verb, e.g. "run-%03d.tcf".
func WithSequenceRotation() Option {
	return func(o *Options) error {
		o.BreakIntoSequence = true
		return nil
	}
}

// WithWarnOnMissingData logs a warning when an Instrument source submits
// nothing for a train instead of committing the empty train silently.
func WithWarnOnMissingData() Option {
	return func(o *Options) error {
		o.WarnOnMissingData = true
		return nil
	}
}

// WithoutBuffering disables record staging: every write call becomes one
// storage-engine write.
func WithoutBuffering() Option {
	return func(o *Options) error {
		o.Buffering = false
		return nil
	}
}

// WithLogger attaches a logger for lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) error {
		o.Logger = l
		return nil
	}
}
