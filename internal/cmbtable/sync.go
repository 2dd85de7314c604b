package cmbtable

import "sync"

// Sync serializes access to a Table. Each operation, including a whole bulk
// update, runs under one lock, so ids stay dense and a bulk call's ids follow
// its column or row order even with concurrent callers.
type Sync struct {
	mu sync.RWMutex
	t  *Table
}

// NewSync wraps t. The caller must not use t directly afterwards.
func NewSync(t *Table) *Sync {
	return &Sync{t: t}
}

func (s *Sync) Update(key []float64, incr float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Update(key, incr)
}

func (s *Sync) UpdateInt(key []int64, incr float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.UpdateInt(key, incr)
}

func (s *Sync) UpdateFromColumns(m Matrix, incr float64) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.UpdateFromColumns(m, incr)
}

func (s *Sync) UpdateFromRows(m Matrix, incr float64) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.UpdateFromRows(m, incr)
}

// Lookup takes the write lock because probing uses the table's scratch buffers.
func (s *Sync) Lookup(key []int64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Lookup(key)
}

func (s *Sync) Export() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.Export()
}

func (s *Sync) ExportAsMatrix() Matrix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.ExportAsMatrix()
}

func (s *Sync) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.Len()
}

// KeyLen and VarNames are fixed at construction.
func (s *Sync) KeyLen() int {
	return s.t.KeyLen()
}

func (s *Sync) VarNames() []string {
	return s.t.VarNames()
}
