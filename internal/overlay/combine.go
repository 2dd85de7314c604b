package overlay

import (
	"context"
	"fmt"
	"runtime"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raster-combine/internal/cmbtable"
)

// Progress reporting interval in raster rows
const progressReportInterval = 1000

// IDSink receives the combination ids of each raster row, in row order.
type IDSink interface {
	WriteRow(row int, ids []int) error
}

// Options configures Combine.
type Options struct {
	// VarNames names the key components. Defaults to the layer names.
	VarNames []string
	// Incr is added to a combination's count per pixel. Nil means 1.
	Incr *float64
	// Hasher selects the table's key hasher.
	Hasher cmbtable.Hasher
	// Workers bounds the number of layers read concurrently for one row.
	// If 0 or negative, uses runtime.NumCPU().
	Workers int
	// Sink, if set, receives the id of every pixel.
	Sink IDSink
	// ProgressCallback, if set, receives progress messages.
	ProgressCallback func(string)
	// Logger receives structured events. Nil disables them.
	Logger *zap.Logger
}

// Result is the outcome of Combine.
type Result struct {
	Table *cmbtable.Table
	Cols  int
	Rows  int
	Bound orb.Bound
}

// Pixels returns the number of pixels that were combined.
func (r *Result) Pixels() int {
	return r.Cols * r.Rows
}

type rowBlock struct {
	row    int
	values cmbtable.Matrix
}

// Combine overlays co-registered layers. Every pixel's values across the
// layers form one key; the key's combination id is assigned in raster order
// (row by row, left to right) and its count grows by the increment per pixel.
//
// Rows are read ahead of the table updates, with the layers of a row read
// concurrently, but the table is fed from a single goroutine in row order,
// so ids match a sequential run exactly.
func Combine(ctx context.Context, layers []Layer, opts Options) (*Result, error) {
	cols, rows, bound, err := checkAligned(layers)
	if err != nil {
		return nil, err
	}

	varNames := opts.VarNames
	if varNames == nil {
		varNames = make([]string, len(layers))
		for i, l := range layers {
			varNames[i] = l.Name()
		}
	}
	table, err := cmbtable.New(len(layers), varNames,
		cmbtable.WithHasher(opts.Hasher), cmbtable.WithCapacity(cols))
	if err != nil {
		return nil, fmt.Errorf("failed to create combination table: %w", err)
	}

	incr := 1.0
	if opts.Incr != nil {
		incr = *opts.Incr
	}
	workerPoolSize := opts.Workers
	if workerPoolSize <= 0 {
		workerPoolSize = runtime.NumCPU()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	progress := opts.ProgressCallback
	if progress == nil {
		progress = func(string) {}
	}

	progress(fmt.Sprintf("Combining %d layers of %dx%d pixels...", len(layers), cols, rows))

	eg, ctx := errgroup.WithContext(ctx)
	blocks := make(chan rowBlock, workerPoolSize)

	// Reader: fetch rows in order, layers of one row in parallel
	eg.Go(func() error {
		defer close(blocks)
		for row := 0; row < rows; row++ {
			block, err := readRow(ctx, layers, row, cols, workerPoolSize)
			if err != nil {
				return err
			}
			select {
			case blocks <- block:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// Updater: the only goroutine touching the table
	eg.Go(func() error {
		for block := range blocks {
			ids, err := table.UpdateFromColumns(block.values, incr)
			if err != nil {
				return fmt.Errorf("failed to update row %d: %w", block.row, err)
			}
			if opts.Sink != nil {
				if err := opts.Sink.WriteRow(block.row, ids); err != nil {
					return fmt.Errorf("failed to write ids of row %d: %w", block.row, err)
				}
			}

			done := block.row + 1
			if done%progressReportInterval == 0 {
				progress(fmt.Sprintf("  Processed %d/%d rows (%d combinations so far)", done, rows, table.Len()))
			}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		log.Error("overlay: combine failed", zap.Error(err), zap.Int("rows", rows), zap.Int("cols", cols))
		return nil, err
	}

	progress(fmt.Sprintf("  Combine complete: %d pixels, %d combinations", cols*rows, table.Len()))
	log.Info("overlay: combine finished",
		zap.Int("layers", len(layers)), zap.Int("cols", cols), zap.Int("rows", rows),
		zap.Int("combinations", table.Len()))

	return &Result{Table: table, Cols: cols, Rows: rows, Bound: bound}, nil
}

// readRow reads one raster row of every layer into a len(layers) x cols
// matrix, one matrix row per layer.
func readRow(ctx context.Context, layers []Layer, row, cols, workers int) (rowBlock, error) {
	values := cmbtable.NewMatrix(len(layers), cols)

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, l := range layers {
		i, l := i, l // per-iteration copies; the module targets go 1.21
		eg.Go(func() error {
			if err := l.ReadRow(ctx, row, values.Row(i)); err != nil {
				return fmt.Errorf("failed to read row %d of layer %s: %w", row, l.Name(), err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return rowBlock{}, err
	}
	return rowBlock{row: row, values: values}, nil
}
