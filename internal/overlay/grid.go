package overlay

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const (
	// Scanner buffer sizes for reading grid files
	scannerInitialBuffer = 64 * 1024        // 64 KB
	scannerMaxBuffer     = 16 * 1024 * 1024 // 16 MB, one raster row per line
)

// Grid is an in-memory layer.
type Grid struct {
	name  string
	cols  int
	rows  int
	bound orb.Bound
	data  []float64
}

var _ Layer = (*Grid)(nil)

// NewGrid builds a layer from row-major pixel rows. A zero bound selects the
// pixel-space extent [0,cols] x [0,rows].
func NewGrid(name string, rows [][]float64, bound orb.Bound) (*Grid, error) {
	g := &Grid{name: name, rows: len(rows)}
	if len(rows) > 0 {
		g.cols = len(rows[0])
	}
	g.data = make([]float64, 0, g.cols*g.rows)
	for r, row := range rows {
		if len(row) != g.cols {
			return nil, fmt.Errorf("grid %s: row %d has %d values, expected %d", name, r, len(row), g.cols)
		}
		g.data = append(g.data, row...)
	}
	g.bound = bound
	if bound.IsZero() {
		g.bound = pixelBound(g.cols, g.rows)
	}
	return g, nil
}

func (g *Grid) Name() string {
	return g.name
}

func (g *Grid) Size() (int, int) {
	return g.cols, g.rows
}

func (g *Grid) Bound() orb.Bound {
	return g.bound
}

func (g *Grid) ReadRow(ctx context.Context, row int, dst []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if row < 0 || row >= g.rows {
		return fmt.Errorf("grid %s: row %d out of range [0,%d)", g.name, row, g.rows)
	}
	if len(dst) != g.cols {
		return fmt.Errorf("grid %s: destination holds %d values, expected %d", g.name, len(dst), g.cols)
	}
	copy(dst, g.data[row*g.cols:(row+1)*g.cols])
	return nil
}

func pixelBound(cols, rows int) orb.Bound {
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(cols), float64(rows)}}
}

// gridHeader holds the optional ESRI ASCII style header of a grid file.
// The x and y reference points are each either a cell corner or a cell
// center.
type gridHeader struct {
	cols, rows       int
	x, y             float64
	cellSize         float64
	xCenter, yCenter bool
	hasCols          bool
	hasRows          bool
	hasCellSize      bool
	hasX, hasY       bool
}

func (h gridHeader) bound(cols, rows int) orb.Bound {
	if !h.hasCellSize || !h.hasX || !h.hasY {
		return pixelBound(cols, rows)
	}
	x, y := h.x, h.y
	if h.xCenter {
		x -= h.cellSize / 2
	}
	if h.yCenter {
		y -= h.cellSize / 2
	}
	return orb.Bound{
		Min: orb.Point{x, y},
		Max: orb.Point{x + float64(cols)*h.cellSize, y + float64(rows)*h.cellSize},
	}
}

// parseHeaderLine records fields if they form a header keyword line and
// reports whether they did.
func (h *gridHeader) parseHeaderLine(fields []string) (bool, error) {
	if len(fields) != 2 {
		return false, nil
	}
	key := strings.ToLower(fields[0])
	switch key {
	case "ncols", "nrows":
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return true, fmt.Errorf("invalid %s %q", key, fields[1])
		}
		if key == "ncols" {
			h.cols, h.hasCols = n, true
		} else {
			h.rows, h.hasRows = n, true
		}
	case "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize":
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return true, fmt.Errorf("invalid %s %q", key, fields[1])
		}
		switch key {
		case "cellsize":
			h.cellSize, h.hasCellSize = v, true
		case "xllcorner", "xllcenter":
			h.x, h.xCenter, h.hasX = v, key == "xllcenter", true
		default:
			h.y, h.yCenter, h.hasY = v, key == "yllcenter", true
		}
	case "nodata_value":
		// Nodata pixels are combined like any other value.
	default:
		return false, nil
	}
	return true, nil
}

// LoadGrid reads a text grid: an optional header of "keyword value" lines
// (ncols, nrows, xllcorner, yllcorner, cellsize) followed by one line of
// whitespace-separated values per raster row. Empty lines are skipped.
// The layer is named after the file without its extension.
func LoadGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grid %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, scannerInitialBuffer)
	scanner.Buffer(buf, scannerMaxBuffer)

	var (
		header  gridHeader
		rows    [][]float64
		lineNum int
		inData  bool
	)
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())

		// Skip empty lines
		if len(fields) == 0 {
			continue
		}

		if !inData {
			isHeader, err := header.parseHeaderLine(fields)
			if err != nil {
				return nil, fmt.Errorf("grid %s line %d: %w", path, lineNum, err)
			}
			if isHeader {
				continue
			}
			inData = true
		}

		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("grid %s line %d: invalid value %q", path, lineNum, field)
			}
			row[i] = v
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, fmt.Errorf("grid %s line %d: %d values, expected %d", path, lineNum, len(row), len(rows[0]))
		}
		if header.hasCols && len(row) != header.cols {
			return nil, fmt.Errorf("grid %s line %d: %d values, header declares ncols %d", path, lineNum, len(row), header.cols)
		}
		rows = append(rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading grid %s: %w", path, err)
	}
	if header.hasRows && len(rows) != header.rows {
		return nil, fmt.Errorf("grid %s: %d rows, header declares nrows %d", path, len(rows), header.rows)
	}

	cols := header.cols
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewGrid(name, rows, header.bound(cols, len(rows)))
}

// LoadGrids loads every path as a layer, in order.
func LoadGrids(paths []string) ([]Layer, error) {
	layers := make([]Layer, 0, len(paths))
	for _, path := range paths {
		g, err := LoadGrid(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, g)
	}
	return layers, nil
}
