// Copyright (c) 2026 SciGo TrainFile Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package main provides a command-line utility to inspect train container
// files. It lists the metadata, the train index and every stored array, and
// can print the contents of a single array.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/scigolib/trainfile/internal/container"
)

func main() {
	array := flag.String("array", "", "Print the values of one array instead of the file summary")
	limit := flag.Int("limit", 16, "Maximum number of rows to print with -array (0 = all)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: traindump [flags] <file.tcf>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	r, err := container.OpenReader(args[0])
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("Failed to close file: %v", err)
		}
	}()

	if *array != "" {
		dumpArray(r, *array, *limit)
		return
	}

	dumpSummary(r, args[0])
}

func dumpSummary(r *container.Reader, filename string) {
	fmt.Printf("File: %s\n", filename)

	if version, err := r.ReadStrings("METADATA/dataFormatVersion"); err == nil && len(version) > 0 {
		fmt.Printf("Format version: %s\n", version[0])
	}
	if lib, err := r.ReadStrings("METADATA/daqLibrary"); err == nil && len(lib) > 0 {
		fmt.Printf("Written by: %s\n", lib[0])
	}

	if trains, err := r.ReadUint64s("INDEX/trainId"); err == nil {
		fmt.Printf("Trains: %d", len(trains))
		if len(trains) > 0 {
			fmt.Printf(" (%d .. %d)", trains[0], trains[len(trains)-1])
		}
		fmt.Println()
	}

	if ids, err := r.ReadStrings("METADATA/dataSources/dataSourceId"); err == nil {
		fmt.Printf("Sources: %d\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
	}

	fmt.Println("Arrays:")
	for _, path := range r.ArrayPaths() {
		info, _ := r.Array(path)
		shape := "scalar"
		if len(info.EntryShape) > 0 {
			dims := make([]string, len(info.EntryShape))
			for i, d := range info.EntryShape {
				dims[i] = fmt.Sprintf("%d", d)
			}
			shape = strings.Join(dims, "x")
		}
		line := fmt.Sprintf("  %-60s %6d rows  %s", path, info.Rows, shape)
		if info.Filter != container.FilterNone {
			f, err := container.NewFilter(info.Filter)
			if err == nil {
				line += "  [" + f.Name() + "]"
			}
		}
		fmt.Println(line)
	}
}

func dumpArray(r *container.Reader, path string, limit int) {
	info, ok := r.Array(path)
	if !ok {
		log.Fatalf("No such array: %q", path)
	}

	rows := int(info.Rows)
	if limit > 0 && rows > limit {
		rows = limit
	}

	switch info.Dtype {
	case container.StringDtype:
		values, err := r.ReadStrings(path)
		if err != nil {
			log.Fatalf("Failed to read array: %v", err)
		}
		for i, v := range values {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Printf("%6d: %s\n", i, v)
		}
		return
	}

	data, _, err := r.ReadArray(path)
	if err != nil {
		log.Fatalf("Failed to read array: %v", err)
	}

	rowSize := int(info.EntrySize())
	fmt.Printf("%s: %d rows, %d bytes/row\n", path, info.Rows, rowSize)
	for i := 0; i < rows; i++ {
		row := data[i*rowSize : (i+1)*rowSize]
		fmt.Printf("%6d: % x\n", i, row)
	}
	if rows < int(info.Rows) {
		fmt.Printf("... %d more rows\n", int(info.Rows)-rows)
	}
}
