package cmbtable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSync_ConcurrentUpdates tests that concurrent updates keep ids dense and counts exact
func TestSync_ConcurrentUpdates(t *testing.T) {
	table, err := New(2, nil)
	require.NoError(t, err)
	s := NewSync(table)

	const (
		workers  = 8
		perWork  = 500
		distinct = 50
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				k := (w + i) % distinct
				_, err := s.UpdateInt([]int64{int64(k), int64(k * 2)}, 1)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, distinct, s.Len())
	frame := s.Export()
	total := 0.0
	for i, rec := range frame.Records {
		assert.Equal(t, i+1, rec.ID)
		total += rec.Count
	}
	assert.Equal(t, float64(workers*perWork), total)
}

// TestSync_BulkIDsFollowCallOrder tests that a bulk call gets consecutive ids under contention
func TestSync_BulkIDsFollowCallOrder(t *testing.T) {
	table, err := New(1, nil)
	require.NoError(t, err)
	s := NewSync(table)

	var wg sync.WaitGroup
	results := make([][]int, 4)
	for w := range results {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			m := NewMatrix(1, 10)
			for c := 0; c < 10; c++ {
				m.Set(0, c, float64(w*10+c))
			}
			ids, err := s.UpdateFromColumns(m, 1)
			assert.NoError(t, err)
			results[w] = ids
		}(w)
	}
	wg.Wait()

	// Each call held the lock throughout, so its new ids are consecutive.
	for _, ids := range results {
		require.Len(t, ids, 10)
		for i := 1; i < len(ids); i++ {
			assert.Equal(t, ids[i-1]+1, ids[i])
		}
	}
	assert.Equal(t, 40, s.Len())
}

// TestSync_Passthrough tests that the wrapper forwards to the table
func TestSync_Passthrough(t *testing.T) {
	table, err := New(2, []string{"x", "y"})
	require.NoError(t, err)
	s := NewSync(table)

	id, err := s.Update([]float64{1.5, 2.5}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	ids, err := s.UpdateFromRows(Matrix{Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	entry, ok := s.Lookup([]int64{1, 2})
	require.True(t, ok)
	assert.Equal(t, 2.0, entry.Count)

	assert.Equal(t, 2, s.KeyLen())
	assert.Equal(t, []string{"x", "y"}, s.VarNames())
	assert.Equal(t, 2, s.ExportAsMatrix().Rows)
}
