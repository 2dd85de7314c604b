package cmbtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExport_StableWithoutMutation tests that repeated exports are identical
func TestExport_StableWithoutMutation(t *testing.T) {
	table, err := New(3, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = table.UpdateFromColumns(scenarioColumns(t), 1)
	require.NoError(t, err)

	first := table.Export()
	second := table.Export()
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b", "c"}, first.VarNames())
}

// TestExport_IndependentCopy tests that an export shares no storage with the table
func TestExport_IndependentCopy(t *testing.T) {
	table, err := New(2, nil)
	require.NoError(t, err)
	_, err = table.UpdateInt([]int64{1, 2}, 1)
	require.NoError(t, err)
	_, err = table.UpdateInt([]int64{3, 4}, 1)
	require.NoError(t, err)

	frame := table.Export()
	frame.Records[0].Key[0] = 100
	frame.Records[0].Count = 50
	frame.Columns[2] = "changed"

	// Appending to one record's key must not clobber the next record.
	_ = append(frame.Records[0].Key, 7)
	assert.Equal(t, []int64{3, 4}, frame.Records[1].Key)

	again := table.Export()
	assert.Equal(t, []int64{1, 2}, again.Records[0].Key)
	assert.Equal(t, 1.0, again.Records[0].Count)
	assert.Equal(t, []string{"id", "count", "V1", "V2"}, again.Columns)
}

// TestExport_Completeness tests that every distinct key is exported with its summed count
func TestExport_Completeness(t *testing.T) {
	table, err := New(2, nil)
	require.NoError(t, err)

	increments := map[[2]int64]float64{}
	for i := 0; i < 200; i++ {
		key := [2]int64{int64(i % 13), int64(i % 4)}
		incr := float64(i%3) + 0.25
		_, err := table.UpdateInt(key[:], incr)
		require.NoError(t, err)
		increments[key] += incr
	}

	frame := table.Export()
	require.Equal(t, len(increments), frame.Len())
	seen := map[int]bool{}
	for _, rec := range frame.Records {
		key := [2]int64{rec.Key[0], rec.Key[1]}
		assert.InDelta(t, increments[key], rec.Count, 1e-9)
		assert.False(t, seen[rec.ID], "duplicate id %d", rec.ID)
		seen[rec.ID] = true
	}
	for id := 1; id <= frame.Len(); id++ {
		assert.True(t, seen[id], "missing id %d", id)
	}
}

// TestExportAsMatrix tests the matrix export layout
func TestExportAsMatrix(t *testing.T) {
	table, err := New(3, nil)
	require.NoError(t, err)
	_, err = table.UpdateFromColumns(scenarioColumns(t), 1)
	require.NoError(t, err)

	m := table.ExportAsMatrix()
	assert.Equal(t, 4, m.Rows)
	assert.Equal(t, 5, m.Cols)
	assert.Equal(t, []float64{
		1, 2, 1, 2, 3,
		2, 2, 4, 5, 6,
		3, 1, 1, 3, 2,
		4, 1, 1, 1, 1,
	}, m.Data)

	empty, err := New(1, nil)
	require.NoError(t, err)
	em := empty.ExportAsMatrix()
	assert.Equal(t, 0, em.Rows)
	assert.Equal(t, 3, em.Cols)
}
