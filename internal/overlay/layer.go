package overlay

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var (
	ErrNoLayers   = errors.New("at least one layer is required")
	ErrMisaligned = errors.New("layers are not aligned")
)

// Layer is one co-registered raster band read row by row.
type Layer interface {
	// Name identifies the layer and is the default variable name of its key component.
	Name() string
	// Size returns the layer dimensions in pixels.
	Size() (cols, rows int)
	// Bound returns the layer extent.
	Bound() orb.Bound
	// ReadRow fills dst, which holds cols values, with the pixel values of row.
	ReadRow(ctx context.Context, row int, dst []float64) error
}

// checkAligned verifies that all layers share the size and extent of the first.
func checkAligned(layers []Layer) (cols, rows int, bound orb.Bound, err error) {
	if len(layers) == 0 {
		return 0, 0, orb.Bound{}, ErrNoLayers
	}

	first := layers[0]
	cols, rows = first.Size()
	bound = first.Bound()
	for _, l := range layers[1:] {
		c, r := l.Size()
		if c != cols || r != rows {
			return 0, 0, orb.Bound{}, fmt.Errorf("%w: layer %s is %dx%d, layer %s is %dx%d",
				ErrMisaligned, l.Name(), c, r, first.Name(), cols, rows)
		}
		if !l.Bound().Equal(bound) {
			return 0, 0, orb.Bound{}, fmt.Errorf("%w: layer %s extent %v differs from layer %s extent %v",
				ErrMisaligned, l.Name(), l.Bound(), first.Name(), bound)
		}
	}
	return cols, rows, bound, nil
}
