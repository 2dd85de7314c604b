package cmbtable

import "slices"

const (
	ColumnID    = "id"
	ColumnCount = "count"
)

// Frame is a tabular export of a table: one record per distinct key.
// Columns lists id, count, then the key component names.
type Frame struct {
	Columns []string
	Records []Entry
}

// Len returns the number of records.
func (f *Frame) Len() int {
	return len(f.Records)
}

// VarNames returns the key component column names.
func (f *Frame) VarNames() []string {
	if len(f.Columns) < 2 {
		return nil
	}
	return f.Columns[2:]
}

// Export copies the table into a Frame ordered by ascending id, i.e. in
// first-insertion order. Repeated exports without intervening updates are
// identical. The frame shares no storage with the table.
func (t *Table) Export() *Frame {
	columns := make([]string, 0, 2+t.keyLen)
	columns = append(columns, ColumnID, ColumnCount)
	columns = append(columns, t.varNames...)

	keys := slices.Clone(t.keys)
	records := make([]Entry, len(t.counts))
	for i := range records {
		start := i * t.keyLen
		records[i] = Entry{
			ID:    i + 1,
			Count: t.counts[i],
			Key:   keys[start : start+t.keyLen : start+t.keyLen],
		}
	}
	return &Frame{Columns: columns, Records: records}
}

// ExportAsMatrix returns the same data as Export as a Len() x (2+KeyLen())
// matrix with columns id, count, key[1..KeyLen()].
func (t *Table) ExportAsMatrix() Matrix {
	width := 2 + t.keyLen
	m := NewMatrix(len(t.counts), width)
	for i, count := range t.counts {
		row := m.Row(i)
		row[0] = float64(i + 1)
		row[1] = count
		for j, v := range t.key(i + 1) {
			row[2+j] = float64(v)
		}
	}
	return m
}
