// Package cmbtable counts unique combinations of fixed-length integer keys.
//
// A Table assigns every distinct key a combination id the first time it is
// seen. Ids start at 1, are dense, and follow insertion order; they are never
// reused or renumbered. Each key also carries a count that accumulates the
// increments of every update made with it. The intended workload is the
// overlay of co-registered raster layers, one key per pixel, where the key
// holds the pixel's value in each layer.
//
// A Table is not safe for concurrent use. Wrap it with NewSync to share it
// across goroutines.
package cmbtable

import (
	"fmt"
	"slices"
	"strconv"
)

const minSlots = 16

// Entry is one distinct key with its combination id and accumulated count.
type Entry struct {
	ID    int
	Count float64
	Key   []int64
}

// Table is a deduplicating counting hash table keyed on fixed-length integer
// vectors.
type Table struct {
	keyLen   int
	varNames []string
	hasher   Hasher

	// Entry data indexed by id-1. The key of id lives at
	// keys[(id-1)*keyLen : id*keyLen].
	keys   []int64
	counts []float64
	hashes []uint64

	// Open-addressing slots holding ids, 0 marks an empty slot.
	// len(slots) is a power of two and at least twice the entry count.
	slots []int

	scratch []int64
	hashBuf []byte
}

// Option configures a Table at construction.
type Option func(*Table)

// WithHasher selects the key hasher. The default is HashCombine.
func WithHasher(h Hasher) Option {
	return func(t *Table) {
		t.hasher = h
	}
}

// WithCapacity presizes the table for n distinct keys.
func WithCapacity(n int) Option {
	return func(t *Table) {
		if n <= 0 {
			return
		}
		t.keys = make([]int64, 0, n*t.keyLen)
		t.counts = make([]float64, 0, n)
		t.hashes = make([]uint64, 0, n)
		t.slots = make([]int, slotsFor(n))
	}
}

// New creates an empty table for keys of length keyLen. varNames names the
// key components in exports; nil selects the defaults V1..VkeyLen.
func New(keyLen int, varNames []string, opts ...Option) (*Table, error) {
	if keyLen <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d", ErrInvalidArgument, keyLen)
	}
	if varNames != nil && len(varNames) != keyLen {
		return nil, fmt.Errorf("%w: %d variable names given for key length %d", ErrInvalidArgument, len(varNames), keyLen)
	}

	t := &Table{
		keyLen:  keyLen,
		scratch: make([]int64, keyLen),
		hashBuf: make([]byte, 8*keyLen),
	}
	if varNames == nil {
		t.varNames = DefaultVarNames(keyLen)
	} else {
		t.varNames = slices.Clone(varNames)
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.hasher != HashCombine && t.hasher != HashMurmur3 {
		return nil, fmt.Errorf("%w: unknown hasher %s", ErrInvalidArgument, t.hasher)
	}
	if t.slots == nil {
		t.slots = make([]int, minSlots)
	}
	return t, nil
}

// DefaultVarNames returns V1..Vn.
func DefaultVarNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "V" + strconv.Itoa(i+1)
	}
	return names
}

// KeyLen returns the fixed key length.
func (t *Table) KeyLen() int {
	return t.keyLen
}

// VarNames returns a copy of the key component names.
func (t *Table) VarNames() []string {
	return slices.Clone(t.varNames)
}

// Hasher returns the hasher the table was built with.
func (t *Table) Hasher() Hasher {
	return t.hasher
}

// Len returns the number of distinct keys, which is also the largest id.
func (t *Table) Len() int {
	return len(t.counts)
}

// Update truncates each element of key toward zero and adds incr to the count
// of the resulting integer key, inserting it with the next id if it is new.
// It returns the key's combination id.
func (t *Table) Update(key []float64, incr float64) (int, error) {
	if len(key) != t.keyLen {
		return 0, t.keyLenError(len(key))
	}
	for i, v := range key {
		t.scratch[i] = int64(v)
	}
	return t.upsert(t.scratch, incr), nil
}

// UpdateInt is Update for keys that are already integers.
func (t *Table) UpdateInt(key []int64, incr float64) (int, error) {
	if len(key) != t.keyLen {
		return 0, t.keyLenError(len(key))
	}
	return t.upsert(key, incr), nil
}

// UpdateFromColumns treats each column of the keyLen x n matrix m as one key
// and updates them left to right, returning the n ids in column order.
// The matrix shape is checked before any key is applied.
func (t *Table) UpdateFromColumns(m Matrix, incr float64) ([]int, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Rows != t.keyLen {
		return nil, fmt.Errorf("%w: matrix has %d rows, expected key length %d", ErrInvalidArgument, m.Rows, t.keyLen)
	}

	ids := make([]int, m.Cols)
	for c := 0; c < m.Cols; c++ {
		for r := 0; r < m.Rows; r++ {
			t.scratch[r] = int64(m.Data[r*m.Cols+c])
		}
		ids[c] = t.upsert(t.scratch, incr)
	}
	return ids, nil
}

// UpdateFromRows treats each row of the n x keyLen matrix m as one key and
// updates them top to bottom, returning the n ids in row order.
func (t *Table) UpdateFromRows(m Matrix, incr float64) ([]int, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Cols != t.keyLen {
		return nil, fmt.Errorf("%w: matrix has %d columns, expected key length %d", ErrInvalidArgument, m.Cols, t.keyLen)
	}

	ids := make([]int, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c, v := range m.Row(r) {
			t.scratch[c] = int64(v)
		}
		ids[r] = t.upsert(t.scratch, incr)
	}
	return ids, nil
}

// Lookup returns a copy of the entry for key without modifying the table.
func (t *Table) Lookup(key []int64) (Entry, bool) {
	if len(key) != t.keyLen {
		return Entry{}, false
	}
	_, id := t.find(key, t.hasher.sum(key, t.hashBuf))
	if id == 0 {
		return Entry{}, false
	}
	return Entry{ID: id, Count: t.counts[id-1], Key: slices.Clone(t.key(id))}, true
}

func (t *Table) keyLenError(got int) error {
	return fmt.Errorf("%w: key length %d, expected %d", ErrInvalidArgument, got, t.keyLen)
}

func (t *Table) key(id int) []int64 {
	start := (id - 1) * t.keyLen
	return t.keys[start : start+t.keyLen]
}

// upsert adds incr to key's count, inserting key if needed, and returns its id.
// key is copied on insert so callers may reuse it.
func (t *Table) upsert(key []int64, incr float64) int {
	h := t.hasher.sum(key, t.hashBuf)
	slot, id := t.find(key, h)
	if id != 0 {
		t.counts[id-1] += incr
		return id
	}

	id = len(t.counts) + 1
	t.keys = append(t.keys, key...)
	t.counts = append(t.counts, incr)
	t.hashes = append(t.hashes, h)
	t.slots[slot] = id

	if 2*len(t.counts) > len(t.slots) {
		t.grow()
	}
	return id
}

// find probes for key. It returns the key's slot and id, or the first empty
// slot on its probe sequence and id 0 if the key is absent.
func (t *Table) find(key []int64, h uint64) (int, int) {
	mask := uint64(len(t.slots) - 1)
	i := h & mask
	for {
		id := t.slots[i]
		if id == 0 {
			return int(i), 0
		}
		if t.hashes[id-1] == h && slices.Equal(t.key(id), key) {
			return int(i), id
		}
		i = (i + 1) & mask
	}
}

func (t *Table) grow() {
	slots := make([]int, 2*len(t.slots))
	mask := uint64(len(slots) - 1)
	for idx, h := range t.hashes {
		i := h & mask
		for slots[i] != 0 {
			i = (i + 1) & mask
		}
		slots[i] = idx + 1
	}
	t.slots = slots
}

// slotsFor returns the smallest power-of-two slot count keeping n entries at
// or below half load.
func slotsFor(n int) int {
	size := minSlots
	for size < 2*n {
		size <<= 1
	}
	return size
}
