// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package trainfile writes per-train scientific instrument records into
// chunked, extensible array storage.
//
// A run is a stream of trains: acquisition events carrying values for a
// fixed set of datasets. Datasets are registered once in a Schema, grouped
// by source. Control sources hold one persistent entry per train;
// Instrument sources hold zero or more entries per train, cleared after
// each train. A FileWriter stages values per train, commits trains in
// order, and amortizes the many small per-train writes into chunk-aligned
// bulk writes. Long runs can be split across sequence files after a
// configurable number of trains.
//
//	schema := trainfile.NewSchema()
//	schema.AddDataset("beam", "SPB_XTD9_XGM/DOOCS/MAIN", "beam.intensity", nil, trainfile.Float64)
//	schema.AddDataset("img", "SPB_DET/DET:xtdf", "image.data", []uint64{128, 128}, trainfile.Uint16,
//	    trainfile.WithCompression(trainfile.Zstd))
//
//	fw, err := trainfile.NewFileWriter("run-%03d.tcf", schema,
//	    trainfile.WithMaxTrainsPerFile(256),
//	    trainfile.WithSequenceRotation(),
//	)
//	if err != nil {
//	    return err
//	}
//	defer fw.Close()
//
//	for tid := uint64(1); tid <= 1000; tid++ {
//	    fw.AddValue("beam", readBeam())
//	    fw.AddValue("img", readFrames())
//	    if err := fw.WriteTrain(tid, uint64(time.Now().UnixNano())); err != nil {
//	        return err
//	    }
//	}
package trainfile

// Version is the library version written into the METADATA section of
// every file.
const Version = "0.3.0"
