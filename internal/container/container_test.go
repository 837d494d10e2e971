package container

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func u64bytes(vals ...uint64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

// TestContainer_RawArrayRoundTrip writes an unfiltered array spanning
// several chunks, including a partial final chunk, and reads it back.
func TestContainer_RawArrayRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "raw.tcf")

	w, err := Create(filename)
	require.NoError(t, err)

	ar, err := w.CreateArray("INSTRUMENT/det/data", 1, 8, nil, 4, nil)
	require.NoError(t, err)

	vals := []uint64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	require.NoError(t, ar.Resize(10))
	require.NoError(t, ar.WriteRows(u64bytes(vals...), 0, 10))
	require.Equal(t, uint64(10), ar.Rows())

	require.NoError(t, w.Close())

	r, err := OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadUint64s("INSTRUMENT/det/data")
	require.NoError(t, err)
	require.Equal(t, vals, got)

	ai, ok := r.Array("INSTRUMENT/det/data")
	require.True(t, ok)
	require.Equal(t, uint64(10), ai.Rows)
	require.Len(t, ai.Chunks, 3, "10 rows at 4 rows/chunk need 3 chunks")
}

// TestContainer_FilteredRoundTrip exercises every compression filter.
func TestContainer_FilteredRoundTrip(t *testing.T) {
	filters := map[string]Filter{
		"deflate": NewDeflateFilter(6),
		"zstd":    NewZstdFilter(3),
		"lz4":     NewLZ4Filter(),
	}

	for name, filter := range filters {
		t.Run(name, func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), name+".tcf")

			w, err := Create(filename)
			require.NoError(t, err)

			ar, err := w.CreateArray("data", 1, 8, nil, 8, filter)
			require.NoError(t, err)

			vals := make([]uint64, 21) // 2 full chunks + partial tail
			for i := range vals {
				vals[i] = uint64(i * i)
			}
			require.NoError(t, ar.Resize(21))
			require.NoError(t, ar.WriteRows(u64bytes(vals...), 0, 21))

			require.NoError(t, w.Close())

			r, err := OpenReader(filename)
			require.NoError(t, err)
			defer r.Close()

			got, err := r.ReadUint64s("data")
			require.NoError(t, err)
			require.Equal(t, vals, got)
		})
	}
}

// TestContainer_MultidimArray round-trips a rank-2 entry shape.
func TestContainer_MultidimArray(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "multi.tcf")

	w, err := Create(filename)
	require.NoError(t, err)

	// Entries are 2x3 matrices of uint64.
	ar, err := w.CreateArray("m", 1, 8, []uint64{2, 3}, 2, NewZstdFilter(3))
	require.NoError(t, err)
	require.Equal(t, uint64(48), ar.RowSize())

	vals := make([]uint64, 3*6)
	for i := range vals {
		vals[i] = uint64(i)
	}
	require.NoError(t, ar.Resize(3))
	require.NoError(t, ar.WriteRows(u64bytes(vals...), 0, 3))

	require.NoError(t, w.Close())

	r, err := OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadUint64s("m")
	require.NoError(t, err)
	require.Equal(t, vals, got)

	ai, _ := r.Array("m")
	require.Equal(t, []uint64{2, 3}, ai.EntryShape)
}

// TestContainer_NonContiguousWrite rejects writes that skip or rewrite rows.
func TestContainer_NonContiguousWrite(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "gap.tcf")

	w, err := Create(filename)
	require.NoError(t, err)
	defer w.Close()

	ar, err := w.CreateArray("a", 1, 8, nil, 4, nil)
	require.NoError(t, err)
	require.NoError(t, ar.Resize(10))
	require.NoError(t, ar.WriteRows(u64bytes(1, 2), 0, 2))

	err = ar.WriteRows(u64bytes(9), 5, 1)
	require.ErrorIs(t, err, ErrNonContiguous)

	err = ar.SetRows(u64bytes(9), 0, 1)
	require.ErrorIs(t, err, ErrNonContiguous)
}

// TestContainer_ResizeBounds enforces the growth-axis length.
func TestContainer_ResizeBounds(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "bounds.tcf")

	w, err := Create(filename)
	require.NoError(t, err)
	defer w.Close()

	ar, err := w.CreateArray("a", 1, 8, nil, 4, nil)
	require.NoError(t, err)

	// Write beyond the (zero-length) growth axis.
	err = ar.WriteRows(u64bytes(1), 0, 1)
	require.Error(t, err)

	require.NoError(t, ar.Resize(2))
	require.NoError(t, ar.WriteRows(u64bytes(1, 2), 0, 2))

	// Shrink below the stored rows.
	err = ar.Resize(1)
	require.Error(t, err)
}

// TestContainer_GroupsAndStrings verifies group recording and METADATA
// string lists.
func TestContainer_GroupsAndStrings(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "meta.tcf")

	w, err := Create(filename)
	require.NoError(t, err)

	require.NoError(t, w.CreateGroup("METADATA/dataSources"))
	require.NoError(t, w.CreateGroup("INDEX"))
	require.NoError(t, w.CreateStringArray("METADATA/dataFormatVersion", []string{"1.0"}))
	require.NoError(t, w.CreateStringArray("METADATA/dataSources/deviceId",
		[]string{"SPB_XTD9_XGM/DOOCS/MAIN", "SPB_DET_AGIPD1M-1/DET/0CH0:xtdf"}))

	require.NoError(t, w.Close())

	r, err := OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []string{"METADATA", "METADATA/dataSources", "INDEX"}, r.Groups())

	got, err := r.ReadStrings("METADATA/dataSources/deviceId")
	require.NoError(t, err)
	require.Equal(t, []string{"SPB_XTD9_XGM/DOOCS/MAIN", "SPB_DET_AGIPD1M-1/DET/0CH0:xtdf"}, got)

	one, err := r.ReadStrings("METADATA/dataFormatVersion")
	require.NoError(t, err)
	require.Equal(t, []string{"1.0"}, one)
}

// TestContainer_UncleanFile detects files missing their footer.
func TestContainer_UncleanFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "unclean.tcf")

	w, err := Create(filename)
	require.NoError(t, err)
	ar, err := w.CreateArray("a", 1, 8, nil, 4, nil)
	require.NoError(t, err)
	require.NoError(t, ar.Resize(1))
	require.NoError(t, ar.WriteRows(u64bytes(7), 0, 1))
	require.NoError(t, w.Sync())
	// Close the os.File behind the writer's back: header keeps offset 0.
	require.NoError(t, w.file.Close())
	w.file = nil
	w.closed = true

	_, err = OpenReader(filename)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not closed cleanly")
}

// TestFooter_RoundTrip encodes and decodes a footer.
func TestFooter_RoundTrip(t *testing.T) {
	groups := []string{"CONTROL", "INDEX"}
	arrays := []ArrayInfo{
		{
			Path:       "CONTROL/xgm/beam/intensity",
			Dtype:      2,
			ElemSize:   8,
			EntryShape: []uint64{4},
			ChunkRows:  512,
			Rows:       100,
			Filter:     FilterZstd,
			Chunks:     []ChunkRef{{Addr: 32, Size: 777}},
		},
		{Path: "INDEX/trainId", Dtype: 1, ElemSize: 8, ChunkRows: 500, Rows: 0},
	}

	buf, err := EncodeFooter(groups, arrays)
	require.NoError(t, err)

	g, a, err := DecodeFooter(buf)
	require.NoError(t, err)
	require.Equal(t, groups, g)
	require.Len(t, a, 2)
	require.Equal(t, arrays[0].Path, a[0].Path)
	require.Equal(t, arrays[0].Chunks, a[0].Chunks)
	require.Equal(t, arrays[0].EntryShape, a[0].EntryShape)
	require.Equal(t, FilterZstd, a[0].Filter)
	require.Empty(t, a[1].Chunks)
}

// TestFooter_ChecksumMismatch rejects corrupted footers.
func TestFooter_ChecksumMismatch(t *testing.T) {
	buf, err := EncodeFooter([]string{"g"}, nil)
	require.NoError(t, err)

	buf[2] ^= 0xFF
	_, _, err = DecodeFooter(buf)
	require.ErrorIs(t, err, ErrCorruptFooter)
}
