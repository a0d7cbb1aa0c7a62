package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"fortio.org/safecast"
	"github.com/benbjohnson/immutable"
)

// LocKey identifies a location within the LocationDB that issued it.
type LocKey uint32

// String returns the registry-independent name of the key.
func (k LocKey) String() string {
	return "loc_key_" + strconv.FormatUint(uint64(k), 10)
}

// LocationDB maps location keys to an optional offset and a set of names.
//
// An offset or a name belongs to at most one key. All four indices are kept in
// persistent maps so every mutation publishes a complete new generation at
// once and snapshots remain valid while the registry keeps changing.
type LocationDB struct {
	mu    sync.RWMutex
	state *locState
}

// NewLocationDB returns an empty registry.
func NewLocationDB() *LocationDB {
	return &LocationDB{state: newLocState()}
}

// LocOption configures a location created by AddLocation.
type LocOption func(*locOptions)

type locOptions struct {
	offset    uint64
	hasOffset bool
	name      string
	hasName   bool
}

// WithOffset binds offset to the new location.
func WithOffset(offset uint64) LocOption {
	return func(o *locOptions) { o.offset, o.hasOffset = offset, true }
}

// WithName attaches name to the new location.
func WithName(name string) LocOption {
	return func(o *locOptions) { o.name, o.hasName = name, true }
}

// AddLocation creates a new location. Returns a ConflictError if the offset or
// the name is already bound to another key, in which case no key is issued.
func (db *LocationDB) AddLocation(opts ...LocOption) (LocKey, error) {
	var o locOptions
	for _, opt := range opts {
		opt(&o)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	s := db.state
	if o.hasOffset {
		if owner, ok := s.offsetLocation(o.offset); ok {
			return 0, &ConflictError{Owner: owner, Offset: o.offset, HasOffset: true}
		}
	}
	if o.hasName {
		if owner, ok := s.nameLocation(o.name); ok {
			return 0, &ConflictError{Owner: owner, Name: o.name}
		}
	}

	next := s.clone()
	key, err := next.allocate()
	if err != nil {
		return 0, err
	}
	if o.hasOffset {
		next.bindOffset(key, o.offset)
	}
	if o.hasName {
		next.bindName(key, o.name)
	}
	db.state = next
	return key, nil
}

// GetOrCreateOffsetLocation returns the key bound to offset, creating it if needed.
func (db *LocationDB) GetOrCreateOffsetLocation(offset uint64) (LocKey, error) {
	if key, ok := db.OffsetLocation(offset); ok {
		return key, nil
	}
	key, err := db.AddLocation(WithOffset(offset))
	if err, ok := err.(*ConflictError); ok {
		return err.Owner, nil // lost a race with another writer
	}
	return key, err
}

// GetOrCreateNameLocation returns the key owning name, creating it if needed.
func (db *LocationDB) GetOrCreateNameLocation(name string) (LocKey, error) {
	if key, ok := db.NameLocation(name); ok {
		return key, nil
	}
	key, err := db.AddLocation(WithName(name))
	if err, ok := err.(*ConflictError); ok {
		return err.Owner, nil
	}
	return key, err
}

// AddLocationName attaches name to key. Attaching a name the key already owns
// is a no-op.
func (db *LocationDB) AddLocationName(key LocKey, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := db.state
	if !s.contains(key) {
		return &NotFoundError{Key: key}
	}
	if owner, ok := s.nameLocation(name); ok {
		if owner == key {
			return nil
		}
		return &ConflictError{Owner: owner, Name: name}
	}

	next := s.clone()
	next.bindName(key, name)
	db.state = next
	return nil
}

// RemoveLocationName detaches name from key.
func (db *LocationDB) RemoveLocationName(key LocKey, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := db.state
	if owner, ok := s.nameLocation(name); !ok || owner != key {
		return &NotFoundError{Key: key, Name: name}
	}

	next := s.clone()
	next.unbindName(key, name)
	db.state = next
	return nil
}

// SetLocationOffset binds offset to key, replacing any offset key had before.
func (db *LocationDB) SetLocationOffset(key LocKey, offset uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := db.state
	if !s.contains(key) {
		return &NotFoundError{Key: key}
	}
	if owner, ok := s.offsetLocation(offset); ok {
		if owner == key {
			return nil
		}
		return &ConflictError{Owner: owner, Offset: offset, HasOffset: true}
	}

	next := s.clone()
	if prev, ok := s.locationOffset(key); ok {
		next.byOffset = next.byOffset.Delete(prev)
	}
	next.bindOffset(key, offset)
	db.state = next
	return nil
}

// UnsetLocationOffset removes the offset bound to key.
func (db *LocationDB) UnsetLocationOffset(key LocKey) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := db.state
	prev, ok := s.locationOffset(key)
	if !ok {
		return &NotFoundError{Key: key, HasOffset: true}
	}

	next := s.clone()
	next.offsets = next.offsets.Delete(key)
	next.byOffset = next.byOffset.Delete(prev)
	db.state = next
	return nil
}

// Snapshot returns a read-only view of the current registry state.
func (db *LocationDB) Snapshot() *LocSnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return &LocSnapshot{state: db.state}
}

// LocationOffset returns the offset bound to key, if any.
func (db *LocationDB) LocationOffset(key LocKey) (uint64, bool) {
	return db.Snapshot().LocationOffset(key)
}

// OffsetLocation returns the key bound to offset, if any.
func (db *LocationDB) OffsetLocation(offset uint64) (LocKey, bool) {
	return db.Snapshot().OffsetLocation(offset)
}

// NameLocation returns the key owning name, if any.
func (db *LocationDB) NameLocation(name string) (LocKey, bool) {
	return db.Snapshot().NameLocation(name)
}

// LocationNames returns the names of key in the order they were attached.
func (db *LocationDB) LocationNames(key LocKey) []string {
	return db.Snapshot().LocationNames(key)
}

// LocKeys returns every issued key in ascending order.
func (db *LocationDB) LocKeys() []LocKey { return db.Snapshot().LocKeys() }

// Len returns the number of issued keys.
func (db *LocationDB) Len() int { return db.Snapshot().Len() }

// Contains returns true if key was issued by the registry.
func (db *LocationDB) Contains(key LocKey) bool { return db.Snapshot().Contains(key) }

// PrettyStr returns the display name of key. See LocSnapshot.PrettyStr.
func (db *LocationDB) PrettyStr(key LocKey) string {
	return db.Snapshot().PrettyStr(key)
}

// ConsistencyCheck verifies that the forward and reverse indices agree.
func (db *LocationDB) ConsistencyCheck() error {
	return db.Snapshot().ConsistencyCheck()
}

// Entries returns one entry per key, in key order.
func (db *LocationDB) Entries() []LocEntry {
	return db.Snapshot().Entries()
}

// String returns a dump of the registry, one key per line.
func (db *LocationDB) String() string {
	return db.Snapshot().String()
}

// LocEntry is the exported form of a single location.
type LocEntry struct {
	Key       LocKey
	Offset    uint64
	HasOffset bool
	Names     []string
}

// LoadLocationDB rebuilds a registry from entries, preserving their keys.
// Keys must be dense: every key is below len(entries), in any order.
func LoadLocationDB(entries []LocEntry) (*LocationDB, error) {
	s := newLocState()
	seen := make(map[LocKey]struct{}, len(entries))
	for _, ent := range entries {
		if uint64(ent.Key) >= uint64(len(entries)) {
			return nil, fmt.Errorf("entry for %s out of range for %d entries", ent.Key, len(entries))
		} else if _, ok := seen[ent.Key]; ok {
			return nil, fmt.Errorf("duplicate entry for %s", ent.Key)
		}
		seen[ent.Key] = struct{}{}

		for s.n <= int(ent.Key) {
			if _, err := s.allocate(); err != nil {
				return nil, err
			}
		}
		if ent.HasOffset {
			if owner, ok := s.offsetLocation(ent.Offset); ok {
				return nil, &ConflictError{Owner: owner, Offset: ent.Offset, HasOffset: true}
			}
			s.bindOffset(ent.Key, ent.Offset)
		}
		for _, name := range ent.Names {
			if owner, ok := s.nameLocation(name); ok {
				return nil, &ConflictError{Owner: owner, Name: name}
			}
			s.bindName(ent.Key, name)
		}
	}
	return &LocationDB{state: s}, nil
}

// LocSnapshot is an immutable view of a LocationDB at one point in time.
type LocSnapshot struct {
	state *locState
}

// LocationOffset returns the offset bound to key, if any.
func (s *LocSnapshot) LocationOffset(key LocKey) (uint64, bool) {
	return s.state.locationOffset(key)
}

// OffsetLocation returns the key bound to offset, if any.
func (s *LocSnapshot) OffsetLocation(offset uint64) (LocKey, bool) {
	return s.state.offsetLocation(offset)
}

// NameLocation returns the key owning name, if any.
func (s *LocSnapshot) NameLocation(name string) (LocKey, bool) {
	return s.state.nameLocation(name)
}

// LocationNames returns the names of key in the order they were attached.
func (s *LocSnapshot) LocationNames(key LocKey) []string {
	names := s.state.locationNames(key)
	other := make([]string, len(names))
	copy(other, names)
	return other
}

// Contains returns true if key was issued by the registry.
func (s *LocSnapshot) Contains(key LocKey) bool { return s.state.contains(key) }

// Len returns the number of issued keys.
func (s *LocSnapshot) Len() int { return s.state.n }

// LocKeys returns every issued key in ascending order.
func (s *LocSnapshot) LocKeys() []LocKey {
	a := make([]LocKey, s.state.n)
	for i := range a {
		a[i] = LocKey(i)
	}
	return a
}

// PrettyStr returns the display name of key: its first attached name, then
// "loc_<hex offset>", then "loc_key_<index>".
func (s *LocSnapshot) PrettyStr(key LocKey) string {
	if names := s.state.locationNames(key); len(names) > 0 {
		return names[0]
	}
	if offset, ok := s.state.locationOffset(key); ok {
		return fmt.Sprintf("loc_0x%x", offset)
	}
	return key.String()
}

// Entries returns one entry per key, in key order.
func (s *LocSnapshot) Entries() []LocEntry {
	a := make([]LocEntry, 0, s.state.n)
	for _, key := range s.LocKeys() {
		ent := LocEntry{Key: key, Names: s.LocationNames(key)}
		ent.Offset, ent.HasOffset = s.state.locationOffset(key)
		a = append(a, ent)
	}
	return a
}

// ConsistencyCheck verifies that the forward and reverse indices agree.
func (s *LocSnapshot) ConsistencyCheck() error {
	st := s.state
	if st.offsets.Len() != st.byOffset.Len() {
		return fmt.Errorf("offset index size mismatch: %d != %d", st.offsets.Len(), st.byOffset.Len())
	}
	for itr := st.offsets.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		key, offset := k.(LocKey), v.(uint64)
		if !st.contains(key) {
			return fmt.Errorf("offset 0x%x bound to unissued %s", offset, key)
		} else if owner, ok := st.offsetLocation(offset); !ok || owner != key {
			return fmt.Errorf("offset 0x%x of %s missing from reverse index", offset, key)
		}
	}

	var n int
	for itr := st.names.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		key := k.(LocKey)
		for _, name := range v.([]string) {
			if owner, ok := st.nameLocation(name); !ok || owner != key {
				return fmt.Errorf("name %q of %s missing from reverse index", name, key)
			}
			n++
		}
	}
	if n != st.byName.Len() {
		return fmt.Errorf("name index size mismatch: %d != %d", n, st.byName.Len())
	}
	return nil
}

// String returns a dump of the registry, one key per line.
func (s *LocSnapshot) String() string {
	var buf bytes.Buffer
	for _, ent := range s.Entries() {
		fmt.Fprintf(&buf, "%s", ent.Key)
		if ent.HasOffset {
			fmt.Fprintf(&buf, " offset=0x%x", ent.Offset)
		}
		if len(ent.Names) > 0 {
			fmt.Fprintf(&buf, " names=%v", ent.Names)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// locState is one generation of the registry. It is never mutated once
// published; writers clone it, update the clone and swap it in.
type locState struct {
	n        int                  // number of issued keys
	offsets  *immutable.SortedMap // LocKey -> uint64
	names    *immutable.SortedMap // LocKey -> []string, attachment order
	byOffset *immutable.SortedMap // uint64 -> LocKey
	byName   *immutable.SortedMap // string -> LocKey
}

func newLocState() *locState {
	return &locState{
		offsets:  immutable.NewSortedMap(&locKeyComparer{}),
		names:    immutable.NewSortedMap(&locKeyComparer{}),
		byOffset: immutable.NewSortedMap(&uint64Comparer{}),
		byName:   immutable.NewSortedMap(&stringComparer{}),
	}
}

func (s *locState) clone() *locState {
	other := *s
	return &other
}

// allocate issues the next key.
func (s *locState) allocate() (LocKey, error) {
	i, err := safecast.Conv[uint32](s.n)
	if err != nil {
		return 0, fmt.Errorf("location key space exhausted: %w", err)
	}
	s.n++
	return LocKey(i), nil
}

func (s *locState) contains(key LocKey) bool {
	return int(key) < s.n
}

func (s *locState) bindOffset(key LocKey, offset uint64) {
	s.offsets = s.offsets.Set(key, offset)
	s.byOffset = s.byOffset.Set(offset, key)
}

func (s *locState) bindName(key LocKey, name string) {
	prev := s.locationNames(key)
	names := make([]string, len(prev), len(prev)+1)
	copy(names, prev)
	s.names = s.names.Set(key, append(names, name))
	s.byName = s.byName.Set(name, key)
}

func (s *locState) unbindName(key LocKey, name string) {
	prev := s.locationNames(key)
	names := make([]string, 0, len(prev))
	for _, other := range prev {
		if other != name {
			names = append(names, other)
		}
	}
	if len(names) == 0 {
		s.names = s.names.Delete(key)
	} else {
		s.names = s.names.Set(key, names)
	}
	s.byName = s.byName.Delete(name)
}

func (s *locState) locationOffset(key LocKey) (uint64, bool) {
	v, ok := s.offsets.Get(key)
	if !ok {
		return 0, false
	}
	return v.(uint64), true
}

func (s *locState) locationNames(key LocKey) []string {
	v, ok := s.names.Get(key)
	if !ok {
		return nil
	}
	return v.([]string)
}

func (s *locState) offsetLocation(offset uint64) (LocKey, bool) {
	v, ok := s.byOffset.Get(offset)
	if !ok {
		return 0, false
	}
	return v.(LocKey), true
}

func (s *locState) nameLocation(name string) (LocKey, bool) {
	v, ok := s.byName.Get(name)
	if !ok {
		return 0, false
	}
	return v.(LocKey), true
}

// locKeyComparer compares two location keys. Implements immutable.Comparer.
type locKeyComparer struct{}

func (c *locKeyComparer) Compare(a, b interface{}) int {
	if i, j := a.(LocKey), b.(LocKey); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not a uint64.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// stringComparer compares two strings. Implements immutable.Comparer.
type stringComparer struct{}

func (c *stringComparer) Compare(a, b interface{}) int {
	if i, j := a.(string), b.(string); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
