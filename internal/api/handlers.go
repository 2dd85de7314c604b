package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"raster-combine/internal/cmbtable"
	"raster-combine/internal/store"
)

// CreateTable handles POST /tables
func (s *Server) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableReq
	if !decodeJSON(w, r, &req) {
		return
	}

	hasher, err := cmbtable.ParseHasher(req.Hasher)
	if err != nil {
		s.writeTableError(w, err)
		return
	}
	table, err := cmbtable.New(req.KeyLen, req.VarNames, cmbtable.WithHasher(hasher))
	if err != nil {
		s.writeTableError(w, err)
		return
	}

	sess := &session{id: newSessionID(), hasher: hasher, table: cmbtable.NewSync(table)}
	s.tables.Add(sess.id, sess)
	s.log.Debug("api: created table session", zap.String("table", sess.id), zap.Int("keyLen", req.KeyLen))

	writeJSON(w, http.StatusCreated, s.info(sess))
}

// GetTable handles GET /tables/{tableID}
func (s *Server) GetTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}
	writeJSON(w, http.StatusOK, s.info(sess))
}

// DeleteTable handles DELETE /tables/{tableID}
func (s *Server) DeleteTable(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	if !s.tables.Contains(tableID) {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}
	s.tables.Remove(tableID)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateKey handles POST /tables/{tableID}/update
func (s *Server) UpdateKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}

	var req UpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := sess.table.Update(req.Key, incrOrDefault(req.Incr))
	if err != nil {
		s.writeTableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateResp{CmbID: id})
}

// UpdateColumns handles POST /tables/{tableID}/columns. Each column of the
// keys matrix is one key.
func (s *Server) UpdateColumns(w http.ResponseWriter, r *http.Request) {
	s.bulkUpdate(w, r, false)
}

// UpdateRows handles POST /tables/{tableID}/rows. Each row of the keys
// matrix is one key.
func (s *Server) UpdateRows(w http.ResponseWriter, r *http.Request) {
	s.bulkUpdate(w, r, true)
}

func (s *Server) bulkUpdate(w http.ResponseWriter, r *http.Request, keysAreRows bool) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}

	var req BulkUpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := keyMatrix(req.Keys, sess.table.KeyLen(), keysAreRows)
	if err != nil {
		s.writeTableError(w, err)
		return
	}

	update := sess.table.UpdateFromColumns
	if keysAreRows {
		update = sess.table.UpdateFromRows
	}
	ids, err := update(m, incrOrDefault(req.Incr))
	if err != nil {
		s.writeTableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkUpdateResp{CmbIDs: ids})
}

// keyMatrix builds the matrix of a bulk update. An empty row list is a
// batch of zero keys in either layout.
func keyMatrix(rows [][]float64, keyLen int, keysAreRows bool) (cmbtable.Matrix, error) {
	if len(rows) == 0 {
		if keysAreRows {
			return cmbtable.NewMatrix(0, keyLen), nil
		}
		return cmbtable.NewMatrix(keyLen, 0), nil
	}
	return cmbtable.MatrixFromRows(rows)
}

// ExportTable handles GET /tables/{tableID}/export. The format query
// parameter selects "table" (default) or "matrix" output.
func (s *Server) ExportTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "table":
		writeJSON(w, http.StatusOK, frameResp(sess.table.Export()))
	case "matrix":
		m := sess.table.ExportAsMatrix()
		columns := append([]string{cmbtable.ColumnID, cmbtable.ColumnCount}, sess.table.VarNames()...)
		writeJSON(w, http.StatusOK, MatrixResp{Columns: columns, Rows: m.Rows, Cols: m.Cols, Data: m.Data})
	default:
		writeError(w, http.StatusBadRequest, "Unknown export format: "+format)
	}
}

// CreateSnapshot handles POST /tables/{tableID}/snapshots
func (s *Server) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot store not configured")
		return
	}
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found")
		return
	}

	var req SnapshotReq
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	snapshotID, err := store.SaveSnapshot(s.db, req.Label, sess.table.Export())
	if err != nil {
		s.log.Error("api: failed to save snapshot", zap.String("table", sess.id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, SnapshotResp{SnapshotID: snapshotID})
}

// GetSnapshot handles GET /snapshots/{snapshotID}
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot store not configured")
		return
	}

	frame, err := store.GetSnapshot(s.db, chi.URLParam(r, "snapshotID"))
	if err != nil {
		s.log.Error("api: failed to load snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load snapshot")
		return
	}
	if frame == nil {
		writeError(w, http.StatusNotFound, "Snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, frameResp(frame))
}

// ListSnapshots handles GET /snapshots
func (s *Server) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot store not configured")
		return
	}

	snapshots, err := store.ListSnapshots(s.db)
	if err != nil {
		s.log.Error("api: failed to list snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	resp := make([]SnapshotInfoResp, len(snapshots))
	for i, snap := range snapshots {
		resp[i] = SnapshotInfoResp{
			ID:        snap.ID,
			Label:     snap.Label,
			CreatedAt: snap.CreatedAt,
			KeyLen:    snap.KeyLen,
			Len:       snap.Len,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
