package trainfile

import (
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/trainfile/internal/container"
)

func rowBytes(vals ...uint64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func seqRows(start, n uint64) []byte {
	buf := make([]byte, 8*n)
	for i := uint64(0); i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], start+i)
	}
	return buf
}

// TestBufferedWriter_BranchSplit pins the batch-split behavior: with
// chunkRows=4 and 3 staged records, a 5-record batch flushes the partial
// buffer, writes the whole chunk directly, and stages the remainder.
func TestBufferedWriter_BranchSplit(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "split.tcf")
	cw, err := container.Create(filename)
	require.NoError(t, err)

	arr, err := cw.CreateArray("data", 1, 8, nil, 4, nil)
	require.NoError(t, err)
	w := newBufferedWriter(arr, 4)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, w.write(rowBytes(i), 1))
	}
	require.Equal(t, uint64(3), w.staged)
	require.Equal(t, uint64(0), arr.Rows(), "no storage I/O while the buffer fills")

	// 3 staged + 5 > one chunk: 3 flushed, 4 written directly, 1 staged.
	require.NoError(t, w.write(seqRows(3, 5), 5))
	require.Equal(t, uint64(7), arr.Rows())
	require.Equal(t, uint64(1), w.staged)
	require.Equal(t, uint64(7), w.pos)

	require.NoError(t, w.flush())
	require.Equal(t, uint64(0), w.staged)
	require.Equal(t, uint64(8), arr.Rows())

	require.NoError(t, cw.Close())

	r, err := container.OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadUint64s("data")
	require.NoError(t, err)
	want := make([]uint64, 8)
	for i := range want {
		want[i] = uint64(i)
	}
	require.Equal(t, want, got)
}

// TestBufferedWriter_TopOffBranch covers the middle branch: the batch
// tops off the buffer and the remainder fits in one more chunk.
func TestBufferedWriter_TopOffBranch(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "topoff.tcf")
	cw, err := container.Create(filename)
	require.NoError(t, err)

	arr, err := cw.CreateArray("data", 1, 8, nil, 4, nil)
	require.NoError(t, err)
	w := newBufferedWriter(arr, 4)

	require.NoError(t, w.write(seqRows(0, 2), 2))
	// 2 staged, batch of 4: 2 complete the chunk, 2 become the new buffer.
	require.NoError(t, w.write(seqRows(2, 4), 4))
	require.Equal(t, uint64(4), arr.Rows())
	require.Equal(t, uint64(2), w.staged)

	require.NoError(t, w.flush())
	require.NoError(t, cw.Close())

	r, err := container.OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadUint64s("data")
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, got)
}

// TestBufferedWriter_FlushEmpties verifies the staging block is empty
// after any flush, and that flushing an empty buffer is a no-op.
func TestBufferedWriter_FlushEmpties(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "flush.tcf")
	cw, err := container.Create(filename)
	require.NoError(t, err)
	defer cw.Close()

	arr, err := cw.CreateArray("data", 1, 8, nil, 8, nil)
	require.NoError(t, err)
	w := newBufferedWriter(arr, 8)

	require.NoError(t, w.flush(), "empty flush is a no-op")
	require.Equal(t, uint64(0), arr.Rows())

	require.NoError(t, w.write(seqRows(0, 3), 3))
	require.NoError(t, w.flush())
	require.Equal(t, uint64(0), w.staged)
	require.Equal(t, uint64(3), arr.Rows())
}

// TestWriters_Equivalence: for arbitrary mixes of single and batched
// writes, a buffered writer must leave the backing array byte-identical
// to a direct writer fed the same call sequence.
func TestWriters_Equivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dir := t.TempDir()

	// Batch sizes cross every branch boundary around chunkRows=8.
	var calls [][]byte
	next := uint64(0)
	for i := 0; i < 200; i++ {
		n := uint64(rng.Intn(20) + 1)
		calls = append(calls, seqRows(next, n))
		next += n
	}

	run := func(filename string, buffered bool) []uint64 {
		cw, err := container.Create(filename)
		require.NoError(t, err)

		arr, err := cw.CreateArray("data", 1, 8, nil, 8, nil)
		require.NoError(t, err)

		var w recordWriter
		if buffered {
			w = newBufferedWriter(arr, 8)
		} else {
			w = newDirectWriter(arr)
		}

		for _, rows := range calls {
			require.NoError(t, w.write(rows, uint64(len(rows)/8)))
		}
		require.NoError(t, w.flush())
		require.NoError(t, cw.Close())

		r, err := container.OpenReader(filename)
		require.NoError(t, err)
		defer r.Close()

		got, err := r.ReadUint64s("data")
		require.NoError(t, err)
		return got
	}

	direct := run(filepath.Join(dir, "direct.tcf"), false)
	buffered := run(filepath.Join(dir, "buffered.tcf"), true)

	require.Equal(t, next, uint64(len(direct)))
	require.Equal(t, direct, buffered)
}

// TestWriters_EquivalenceCompressed repeats the equivalence law on a
// zstd-filtered array.
func TestWriters_EquivalenceCompressed(t *testing.T) {
	dir := t.TempDir()

	var calls [][]byte
	next := uint64(0)
	for _, n := range []uint64{1, 7, 8, 9, 16, 1, 1, 24, 3} {
		calls = append(calls, seqRows(next, n))
		next += n
	}

	run := func(filename string, buffered bool) []uint64 {
		cw, err := container.Create(filename)
		require.NoError(t, err)

		arr, err := cw.CreateArray("data", 1, 8, nil, 8, container.NewZstdFilter(3))
		require.NoError(t, err)

		var w recordWriter
		if buffered {
			w = newBufferedWriter(arr, 8)
		} else {
			w = newDirectWriter(arr)
		}

		for _, rows := range calls {
			require.NoError(t, w.write(rows, uint64(len(rows)/8)))
		}
		require.NoError(t, w.flush())
		require.NoError(t, cw.Close())

		r, err := container.OpenReader(filename)
		require.NoError(t, err)
		defer r.Close()

		got, err := r.ReadUint64s("data")
		require.NoError(t, err)
		return got
	}

	direct := run(filepath.Join(dir, "direct.tcf"), false)
	buffered := run(filepath.Join(dir, "buffered.tcf"), true)
	require.Equal(t, direct, buffered)
}
