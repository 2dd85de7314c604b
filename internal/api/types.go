package api

import (
	"time"

	"raster-combine/internal/cmbtable"
)

// CreateTableReq is the body of POST /tables
type CreateTableReq struct {
	KeyLen   int      `json:"keyLen"`
	VarNames []string `json:"varNames,omitempty"`
	Hasher   string   `json:"hasher,omitempty"`
}

// TableInfo describes a table session
type TableInfo struct {
	ID       string   `json:"id"`
	KeyLen   int      `json:"keyLen"`
	VarNames []string `json:"varNames"`
	Hasher   string   `json:"hasher"`
	Len      int      `json:"len"`
}

// UpdateReq is the body of POST /tables/{tableID}/update. Incr defaults to 1.
type UpdateReq struct {
	Key  []float64 `json:"key"`
	Incr *float64  `json:"incr,omitempty"`
}

type UpdateResp struct {
	CmbID int `json:"cmbId"`
}

// BulkUpdateReq is the body of the columns and rows endpoints. Keys holds
// the matrix rows.
type BulkUpdateReq struct {
	Keys [][]float64 `json:"keys"`
	Incr *float64    `json:"incr,omitempty"`
}

type BulkUpdateResp struct {
	CmbIDs []int `json:"cmbIds"`
}

type RecordResp struct {
	ID    int     `json:"id"`
	Count float64 `json:"count"`
	Key   []int64 `json:"key"`
}

type FrameResp struct {
	Columns []string     `json:"columns"`
	Records []RecordResp `json:"records"`
}

type MatrixResp struct {
	Columns []string  `json:"columns"`
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Data    []float64 `json:"data"`
}

type SnapshotReq struct {
	Label string `json:"label"`
}

type SnapshotResp struct {
	SnapshotID string `json:"snapshotId"`
}

type SnapshotInfoResp struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	KeyLen    int       `json:"keyLen"`
	Len       int       `json:"len"`
}

func frameResp(frame *cmbtable.Frame) FrameResp {
	records := make([]RecordResp, len(frame.Records))
	for i, rec := range frame.Records {
		records[i] = RecordResp{ID: rec.ID, Count: rec.Count, Key: rec.Key}
	}
	return FrameResp{Columns: frame.Columns, Records: records}
}
