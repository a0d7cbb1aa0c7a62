// Package locfile stores LocationDB snapshots on disk in msgpack format.
package locfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lowlevel01/ir"
)

// SchemaVersion is the current file format version. Increment it whenever
// File changes incompatibly.
const SchemaVersion uint16 = 1

// File is the on-disk form of a registry.
type File struct {
	Schema    uint16     `msgpack:"schema"`
	Locations []Location `msgpack:"locations"`
}

// Location is the on-disk form of a single location.
type Location struct {
	Key       uint32   `msgpack:"key"`
	Offset    uint64   `msgpack:"offset,omitempty"`
	HasOffset bool     `msgpack:"has_offset,omitempty"`
	Names     []string `msgpack:"names,omitempty"` // attachment order
}

// ErrSchema is returned when a file was written with another schema version.
var ErrSchema = errors.New("unsupported location file schema")

// Encode returns the file form of db.
func Encode(db *ir.LocationDB) *File {
	entries := db.Entries()
	f := &File{Schema: SchemaVersion, Locations: make([]Location, len(entries))}
	for i, ent := range entries {
		f.Locations[i] = Location{
			Key:       uint32(ent.Key),
			Offset:    ent.Offset,
			HasOffset: ent.HasOffset,
			Names:     ent.Names,
		}
	}
	return f
}

// Decode rebuilds a registry from its file form.
func Decode(f *File) (*ir.LocationDB, error) {
	if f.Schema != SchemaVersion {
		return nil, errors.Wrap(ErrSchema, "version %v", f.Schema)
	}
	entries := make([]ir.LocEntry, len(f.Locations))
	for i, l := range f.Locations {
		entries[i] = ir.LocEntry{
			Key:       ir.LocKey(l.Key),
			Offset:    l.Offset,
			HasOffset: l.HasOffset,
			Names:     l.Names,
		}
	}
	db, err := ir.LoadLocationDB(entries)
	if err != nil {
		return nil, errors.Wrap(err, "rebuild registry")
	}
	return db, nil
}

// Write encodes db to w.
func Write(w io.Writer, db *ir.LocationDB) error {
	bw := bufio.NewWriter(w)
	if err := msgpack.NewEncoder(bw).Encode(Encode(db)); err != nil {
		return errors.Wrap(err, "encode")
	}
	return bw.Flush()
}

// Read decodes a registry from r.
func Read(r io.Reader) (*ir.LocationDB, error) {
	var f File
	if err := msgpack.NewDecoder(bufio.NewReader(r)).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return Decode(&f)
}

// Save writes db to path. The file is replaced atomically.
func Save(path string, db *ir.LocationDB) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".locfile-*")
	if err != nil {
		return errors.Wrap(err, "save %v", path)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err := Write(f, db); err != nil {
		return errors.Wrap(err, "save %v", path)
	} else if err := f.Close(); err != nil {
		return errors.Wrap(err, "save %v", path)
	} else if err := os.Rename(f.Name(), path); err != nil {
		return errors.Wrap(err, "save %v", path)
	}

	tlog.V("locfile").Printw("saved locations", "path", path, "n", db.Len())
	return nil
}

// Load reads a registry from path.
func Load(path string) (*ir.LocationDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "load %v", path)
	}
	defer f.Close()

	db, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(err, "load %v", path)
	}
	tlog.V("locfile").Printw("loaded locations", "path", path, "n", db.Len())
	return db, nil
}
