package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"raster-combine/internal/cmbtable"
)

// memorySink collects id rows for assertions
type memorySink struct {
	mu   sync.Mutex
	rows [][]int
}

func (s *memorySink) WriteRow(row int, ids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row != len(s.rows) {
		return fmt.Errorf("row %d out of order", row)
	}
	s.rows = append(s.rows, ids)
	return nil
}

// failingLayer fails on one row
type failingLayer struct {
	*Grid
	failRow int
}

func (l *failingLayer) ReadRow(ctx context.Context, row int, dst []float64) error {
	if row == l.failRow {
		return errors.New("disk on fire")
	}
	return l.Grid.ReadRow(ctx, row, dst)
}

func mustGrid(t *testing.T, name string, rows [][]float64) *Grid {
	t.Helper()
	g, err := NewGrid(name, rows, orb.Bound{})
	require.NoError(t, err, "NewGrid should not return error")
	return g
}

// TestCombine_Scenario overlays three 2x3 layers whose pixels spell out
// the keys [1,2,3], [1,2,3], [4,5,6], [1,3,2], [4,5,6], [1,1,1]
func TestCombine_Scenario(t *testing.T) {
	layers := []Layer{
		mustGrid(t, "landcover", [][]float64{{1, 1, 4}, {1, 4, 1}}),
		mustGrid(t, "soil", [][]float64{{2, 2, 5}, {3, 5, 1}}),
		mustGrid(t, "slope", [][]float64{{3, 3, 6}, {2, 6, 1}}),
	}
	sink := &memorySink{}

	result, err := Combine(context.Background(), layers, Options{Sink: sink, Workers: 2, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err, "Combine should not return error")

	assert.Equal(t, [][]int{{1, 1, 2}, {3, 2, 4}}, sink.rows, "ids should follow raster order")
	assert.Equal(t, 3, result.Cols)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, 6, result.Pixels())

	frame := result.Table.Export()
	assert.Equal(t, []string{"id", "count", "landcover", "soil", "slope"}, frame.Columns,
		"var names should default to layer names")
	assert.Equal(t, []cmbtable.Entry{
		{ID: 1, Count: 2, Key: []int64{1, 2, 3}},
		{ID: 2, Count: 2, Key: []int64{4, 5, 6}},
		{ID: 3, Count: 1, Key: []int64{1, 3, 2}},
		{ID: 4, Count: 1, Key: []int64{1, 1, 1}},
	}, frame.Records)
}

// TestCombine_MatchesSequentialUpdates checks that the pipelined overlay
// assigns the same ids as one Update per pixel in raster order
func TestCombine_MatchesSequentialUpdates(t *testing.T) {
	const cols, rows = 37, 53
	a := make([][]float64, rows)
	b := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		a[r] = make([]float64, cols)
		b[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			a[r][c] = float64((r*7 + c*3) % 11)
			b[r][c] = float64((r+c)%5) + 0.5
		}
	}
	layers := []Layer{mustGrid(t, "a", a), mustGrid(t, "b", b)}
	sink := &memorySink{}

	incr := 2.0
	result, err := Combine(context.Background(), layers, Options{
		Sink:    sink,
		Incr:    &incr,
		Hasher:  cmbtable.HashMurmur3,
		Workers: 4,
	})
	require.NoError(t, err, "Combine should not return error")

	expected, err := cmbtable.New(2, []string{"a", "b"})
	require.NoError(t, err)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id, err := expected.Update([]float64{a[r][c], b[r][c]}, 2)
			require.NoError(t, err)
			assert.Equal(t, id, sink.rows[r][c], "id mismatch at pixel (%d, %d)", r, c)
		}
	}
	assert.Equal(t, expected.Export(), result.Table.Export(), "tables should match")
}

// TestCombine_Increment tests that an explicit increment, including zero,
// is applied as given and a nil increment counts one per pixel
func TestCombine_Increment(t *testing.T) {
	zero, half := 0.0, 0.5
	tests := []struct {
		name  string
		incr  *float64
		count float64
	}{
		{name: "default", incr: nil, count: 2},
		{name: "zero", incr: &zero, count: 0},
		{name: "fractional", incr: &half, count: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := mustGrid(t, "a", [][]float64{{1, 1}})
			result, err := Combine(context.Background(), []Layer{layer}, Options{Incr: tt.incr})
			require.NoError(t, err)
			assert.Equal(t, []cmbtable.Entry{{ID: 1, Count: tt.count, Key: []int64{1}}},
				result.Table.Export().Records)
		})
	}
}

// TestCombine_Errors tests input validation before any row is read
func TestCombine_Errors(t *testing.T) {
	square := mustGrid(t, "square", [][]float64{{1, 2}, {3, 4}})
	wide := mustGrid(t, "wide", [][]float64{{1, 2, 3}, {4, 5, 6}})
	shifted, err := NewGrid("shifted", [][]float64{{1, 2}, {3, 4}},
		orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{12, 12}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		layers  []Layer
		opts    Options
		wantErr error
	}{
		{
			name:    "no layers",
			layers:  nil,
			wantErr: ErrNoLayers,
		},
		{
			name:    "different size",
			layers:  []Layer{square, wide},
			wantErr: ErrMisaligned,
		},
		{
			name:    "different extent",
			layers:  []Layer{square, shifted},
			wantErr: ErrMisaligned,
		},
		{
			name:    "var names length mismatch",
			layers:  []Layer{square, square},
			opts:    Options{VarNames: []string{"only"}},
			wantErr: cmbtable.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Combine(context.Background(), tt.layers, tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, result)
		})
	}
}

// TestCombine_LayerReadFailure tests that a failing layer stops the run
func TestCombine_LayerReadFailure(t *testing.T) {
	rows := make([][]float64, 10)
	for r := range rows {
		rows[r] = []float64{float64(r), 1}
	}
	good := mustGrid(t, "good", rows)
	bad := &failingLayer{Grid: mustGrid(t, "bad", rows), failRow: 4}

	core, logs := observer.New(zapcore.InfoLevel)
	_, err := Combine(context.Background(), []Layer{good, bad}, Options{Logger: zap.New(core)})
	require.Error(t, err, "Expected error from failing layer")
	assert.Contains(t, err.Error(), "row 4 of layer bad")

	failures := logs.FilterMessage("overlay: combine failed").All()
	require.Len(t, failures, 1, "failure should be logged once")
	assert.Equal(t, int64(10), failures[0].ContextMap()["rows"])
}

// TestCombine_LogsFinish tests that a completed run logs its summary
func TestCombine_LogsFinish(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	layer := mustGrid(t, "a", [][]float64{{1, 2}, {2, 1}})

	_, err := Combine(context.Background(), []Layer{layer}, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	finished := logs.FilterMessage("overlay: combine finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(3), finished[0].ContextMap()["combinations"])
}

// TestCombine_Canceled tests that a canceled context aborts the run
func TestCombine_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	layer := mustGrid(t, "a", [][]float64{{1}, {2}, {3}})
	_, err := Combine(ctx, []Layer{layer}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestCombine_WithProgress tests that progress callback is called
func TestCombine_WithProgress(t *testing.T) {
	var messages []string
	progressCallback := func(msg string) {
		messages = append(messages, msg)
	}

	layer := mustGrid(t, "a", [][]float64{{1, 2}})
	_, err := Combine(context.Background(), []Layer{layer}, Options{ProgressCallback: progressCallback})
	require.NoError(t, err)

	assert.NotEmpty(t, messages, "Expected progress messages")
}
