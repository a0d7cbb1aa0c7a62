package locfile_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lowlevel01/ir"
	"github.com/lowlevel01/ir/locfile"
)

func newDB(tb testing.TB) *ir.LocationDB {
	tb.Helper()
	db := ir.NewLocationDB()
	_, err := db.AddLocation(ir.WithOffset(0), ir.WithName("reset"))
	require.NoError(tb, err)
	_, err = db.AddLocation()
	require.NoError(tb, err)
	key, err := db.AddLocation(ir.WithOffset(0x401000), ir.WithName("main"))
	require.NoError(tb, err)
	require.NoError(tb, db.AddLocationName(key, "_start"))
	return db
}

func TestWriteRead(t *testing.T) {
	db := newDB(t)

	var buf bytes.Buffer
	require.NoError(t, locfile.Write(&buf, db))

	other, err := locfile.Read(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(db.Entries(), other.Entries()); diff != "" {
		t.Fatal(diff)
	}

	// Zero offsets survive, names keep attachment order.
	offset, ok := other.LocationOffset(0)
	require.True(t, ok)
	require.Zero(t, offset)
	require.Equal(t, []string{"main", "_start"}, other.LocationNames(2))
	require.NoError(t, other.ConsistencyCheck())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locs.mp")
	db := newDB(t)
	require.NoError(t, locfile.Save(path, db))

	other, err := locfile.Load(path)
	require.NoError(t, err)
	require.Equal(t, db.String(), other.String())

	// Saving again replaces the file.
	_, err = db.AddLocation(ir.WithName("extra"))
	require.NoError(t, err)
	require.NoError(t, locfile.Save(path, db))
	other, err = locfile.Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, other.Len())
}

func TestLoad_ErrNotExist(t *testing.T) {
	_, err := locfile.Load(filepath.Join(t.TempDir(), "missing.mp"))
	require.True(t, errors.Is(err, os.ErrNotExist), "err: %v", err)
}

func TestRead_ErrSchema(t *testing.T) {
	b, err := msgpack.Marshal(&locfile.File{Schema: locfile.SchemaVersion + 1})
	require.NoError(t, err)

	_, err = locfile.Read(bytes.NewReader(b))
	require.True(t, errors.Is(err, locfile.ErrSchema), "err: %v", err)
}

func TestRead_ErrConflict(t *testing.T) {
	b, err := msgpack.Marshal(&locfile.File{
		Schema: locfile.SchemaVersion,
		Locations: []locfile.Location{
			{Key: 0, Offset: 0x10, HasOffset: true},
			{Key: 1, Offset: 0x10, HasOffset: true},
		},
	})
	require.NoError(t, err)

	_, err = locfile.Read(bytes.NewReader(b))
	var e *ir.ConflictError
	require.True(t, errors.As(err, &e), "err: %v", err)
	require.Equal(t, ir.LocKey(0), e.Owner)
}

func TestRead_ErrSparseKey(t *testing.T) {
	b, err := msgpack.Marshal(&locfile.File{
		Schema:    locfile.SchemaVersion,
		Locations: []locfile.Location{{Key: 1<<32 - 1, Names: []string{"main"}}},
	})
	require.NoError(t, err)

	_, err = locfile.Read(bytes.NewReader(b))
	require.ErrorContains(t, err, "out of range")
}
