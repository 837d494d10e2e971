package trainfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/trainfile/internal/container"
)

// newTestSource registers a single scalar uint64 dataset and returns the
// source with arrays created in a fresh container file.
func newTestSource(t *testing.T, sourceName, key string, maxTrains uint64) (*Source, *container.Writer, *DatasetSchema, string) {
	t.Helper()

	schema := NewSchema()
	ds, err := schema.AddDataset("value", sourceName, key, nil, Uint64)
	require.NoError(t, err)

	src := newSource(ds.sourceName, ds.cadence)
	src.addSchema(ds)
	if ds.cadence == CadenceControl {
		src.nrec = 1
	}

	filename := filepath.Join(t.TempDir(), "seq.tcf")
	cw, err := container.Create(filename)
	require.NoError(t, err)
	require.NoError(t, src.createArrays(cw, maxTrains, true))

	return src, cw, ds, filename
}

func staged(t *testing.T, ds *DatasetSchema, value interface{}) map[string]stagedValue {
	t.Helper()
	v, err := encodeValue(ds, value)
	require.NoError(t, err)
	return map[string]stagedValue{ds.key: v}
}

// TestSource_IndexInvariant commits trains with varying instrument entry
// counts and checks first[t] + count[t] == first[t+1] throughout.
func TestSource_IndexInvariant(t *testing.T) {
	src, cw, ds, _ := newTestSource(t, "SPB_DET/DET:xtdf", "image.pulseId", 16)
	defer cw.Close()

	counts := []uint64{3, 1, 0, 5, 0, 2}
	next := uint64(0)
	for _, n := range counts {
		if n > 0 {
			vals := make([]uint64, n)
			for i := range vals {
				vals[i] = next + uint64(i)
			}
			data := staged(t, ds, vals)
			src.nrec = n
			require.NoError(t, src.writeTrain(data))
		} else {
			require.NoError(t, src.writeTrain(nil))
		}
		next += n
	}

	require.Len(t, src.first, len(counts))
	require.Equal(t, counts, src.count)
	for i := 0; i+1 < len(src.first); i++ {
		require.Equal(t, src.first[i]+src.count[i], src.first[i+1],
			"index discontinuity at train %d", i)
	}
	require.Equal(t, next, src.pos)
	require.Equal(t, uint64(0), src.nrec, "instrument counter resets to zero")
}

// TestSource_ControlPersistence: a control value keeps being written every
// train until it is replaced, and the counter resets to one, not zero.
func TestSource_ControlPersistence(t *testing.T) {
	src, cw, ds, filename := newTestSource(t, "SA1_XTD2_XGM/DOOCS/MAIN", "beam.intensity", 16)

	data := staged(t, ds, uint64(7))
	for i := 0; i < 3; i++ {
		require.NoError(t, src.writeTrain(data))
		require.Equal(t, uint64(1), src.nrec)
	}
	data = staged(t, ds, uint64(9))
	require.NoError(t, src.writeTrain(data))

	require.Equal(t, []uint64{1, 1, 1, 1}, src.count)
	require.Equal(t, []uint64{0, 1, 2, 3}, src.first)

	require.NoError(t, src.flushWriters())
	require.NoError(t, cw.Close())

	r, err := container.OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadUint64s(ds.arrayPath())
	require.NoError(t, err)
	require.Equal(t, []uint64{7, 7, 7, 9}, got)
}

// TestSource_InstrumentEmptyTrain: an instrument train with no data is
// committed with count zero and writes nothing to the data arrays.
func TestSource_InstrumentEmptyTrain(t *testing.T) {
	src, cw, ds, filename := newTestSource(t, "SPB_DET/DET:xtdf", "image.pulseId", 16)

	src.nrec = 3
	require.NoError(t, src.writeTrain(staged(t, ds, []uint64{1, 2, 3})))
	require.NoError(t, src.writeTrain(nil)) // nrec already reset to 0
	src.nrec = 3
	require.NoError(t, src.writeTrain(staged(t, ds, []uint64{4, 5, 6})))

	require.Equal(t, []uint64{3, 0, 3}, src.count)
	require.Equal(t, []uint64{0, 3, 3}, src.first)

	require.NoError(t, src.flushWriters())
	require.NoError(t, cw.Close())

	r, err := container.OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadUint64s(ds.arrayPath())
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, got)
}

func TestSource_IsDataComplete(t *testing.T) {
	schema := NewSchema()
	a, err := schema.AddDataset("a", "DEV/MOTOR/X", "actualPosition", nil, Float64)
	require.NoError(t, err)
	b, err := schema.AddDataset("b", "DEV/MOTOR/X", "actualVelocity", nil, Float64)
	require.NoError(t, err)

	src := newSource(a.sourceName, a.cadence)
	src.addSchema(a)
	src.addSchema(b)

	missing, empty := src.isDataComplete(staged(t, a, 1.0))
	require.False(t, empty)
	require.Equal(t, []string{b.key}, missing)

	// Control sources never get the empty-train exemption.
	missing, empty = src.isDataComplete(nil)
	require.False(t, empty)
	require.Equal(t, []string{a.key, b.key}, missing)
}

func TestSource_IsDataComplete_EmptyInstrument(t *testing.T) {
	schema := NewSchema()
	ds, err := schema.AddDataset("d", "SPB_DET/DET:xtdf", "image.data", nil, Uint16)
	require.NoError(t, err)

	src := newSource(ds.sourceName, ds.cadence)
	src.addSchema(ds)

	missing, empty := src.isDataComplete(nil)
	require.True(t, empty)
	require.Empty(t, missing)

	// A partial submission is still an error, not an empty train.
	other := map[string]stagedValue{"unrelated": {}}
	missing, empty = src.isDataComplete(other)
	require.False(t, empty)
	require.Equal(t, []string{ds.key}, missing)
}

// TestSource_WriteIndex persists the committed first/count pairs and keeps
// only the uncommitted tail, rebased to the start of the next file.
func TestSource_WriteIndex(t *testing.T) {
	src, cw, ds, filename := newTestSource(t, "SPB_DET/DET:xtdf", "image.pulseId", 8)

	for _, n := range []uint64{2, 1, 4} {
		vals := make([]uint64, n)
		src.nrec = n
		require.NoError(t, src.writeTrain(staged(t, ds, vals)))
	}

	require.NoError(t, src.flushWriters())
	require.NoError(t, src.writeIndex(cw, 2, 8))

	// The third train stays in memory, rebased for the next file.
	require.Equal(t, []uint64{4}, src.count)
	require.Equal(t, []uint64{0}, src.first)
	require.Equal(t, uint64(4), src.pos)

	require.NoError(t, cw.Close())

	r, err := container.OpenReader(filename)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.ReadUint64s("INDEX/" + src.name + "/first")
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2}, first)

	count, err := r.ReadUint64s("INDEX/" + src.name + "/count")
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, count)
}
