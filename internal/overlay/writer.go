package overlay

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"

	"raster-combine/internal/cmbtable"
)

// WriteCSV writes frame as CSV: a header row of column names, then one row
// per combination.
func WriteCSV(frame *cmbtable.Frame, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := writeFrame(w, frame); err != nil {
		return fmt.Errorf("failed to write csv file: %w", err)
	}
	return f.Close()
}

func writeFrame(w *csv.Writer, frame *cmbtable.Frame) error {
	if err := w.Write(frame.Columns); err != nil {
		return err
	}

	record := make([]string, len(frame.Columns))
	for _, rec := range frame.Records {
		record = record[:0]
		record = append(record, strconv.Itoa(rec.ID), strconv.FormatFloat(rec.Count, 'f', -1, 64))
		for _, v := range rec.Key {
			record = append(record, strconv.FormatInt(v, 10))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// GridWriter writes combination ids as a text grid with an ESRI ASCII style
// header. It implements IDSink and expects rows in order.
type GridWriter struct {
	f       *os.File
	w       *bufio.Writer
	cols    int
	nextRow int
}

var _ IDSink = (*GridWriter)(nil)

// NewGridWriter creates outputPath and writes the grid header.
func NewGridWriter(outputPath string, cols, rows int, bound orb.Bound) (*GridWriter, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create id grid: %w", err)
	}

	gw := &GridWriter{f: f, w: bufio.NewWriter(f), cols: cols}
	cellSize := 1.0
	if cols > 0 {
		cellSize = (bound.Max.X() - bound.Min.X()) / float64(cols)
	}
	header := fmt.Sprintf("ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\n",
		cols, rows,
		strconv.FormatFloat(bound.Min.X(), 'f', -1, 64),
		strconv.FormatFloat(bound.Min.Y(), 'f', -1, 64),
		strconv.FormatFloat(cellSize, 'f', -1, 64))
	if _, err := gw.w.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write id grid header: %w", err)
	}
	return gw, nil
}

// WriteRow writes one row of ids.
func (gw *GridWriter) WriteRow(row int, ids []int) error {
	if row != gw.nextRow {
		return fmt.Errorf("id grid row %d written out of order, expected %d", row, gw.nextRow)
	}
	if len(ids) != gw.cols {
		return fmt.Errorf("id grid row %d has %d ids, expected %d", row, len(ids), gw.cols)
	}

	buf := make([]byte, 0, 8*len(ids))
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	buf = append(buf, '\n')
	if _, err := gw.w.Write(buf); err != nil {
		return err
	}
	gw.nextRow++
	return nil
}

// Close flushes buffered rows and closes the file.
func (gw *GridWriter) Close() error {
	if err := gw.w.Flush(); err != nil {
		gw.f.Close()
		return fmt.Errorf("failed to flush id grid: %w", err)
	}
	return gw.f.Close()
}
