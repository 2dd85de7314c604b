package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"raster-combine/internal/cmbtable"
)

const (
	// DefaultMaxTables bounds the number of live table sessions
	DefaultMaxTables = 128

	// Request bodies carry raster rows, allow up to 64 MB
	maxRequestBody = 64 << 20
)

// Server serves combination table sessions over HTTP. Tables live in memory
// in a bounded LRU; the least recently used table is dropped when the cache
// is full. Snapshots go to db when one is configured.
type Server struct {
	db     *sql.DB
	tables *lru.Cache
	log    *zap.Logger
}

type session struct {
	id     string
	hasher cmbtable.Hasher
	table  *cmbtable.Sync
}

// NewServer creates a server holding at most maxTables sessions. db may be
// nil, in which case the snapshot endpoints report the store as unavailable.
// A nil log discards server events.
func NewServer(db *sql.DB, maxTables int, log *zap.Logger) (*Server, error) {
	if maxTables <= 0 {
		maxTables = DefaultMaxTables
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{db: db, log: log}
	tables, err := lru.NewWithEvict(maxTables, func(key, _ interface{}) {
		s.log.Info("api: dropped table session", zap.Any("table", key))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s.tables = tables
	return s, nil
}

// Routes returns the HTTP handler for all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/tables", func(r chi.Router) {
		r.Post("/", s.CreateTable)
		r.Route("/{tableID}", func(r chi.Router) {
			r.Get("/", s.GetTable)
			r.Delete("/", s.DeleteTable)
			r.Post("/update", s.UpdateKey)
			r.Post("/columns", s.UpdateColumns)
			r.Post("/rows", s.UpdateRows)
			r.Get("/export", s.ExportTable)
			r.Post("/snapshots", s.CreateSnapshot)
		})
	})
	r.Get("/snapshots", s.ListSnapshots)
	r.Get("/snapshots/{snapshotID}", s.GetSnapshot)

	return r
}

func (s *Server) session(r *http.Request) (*session, bool) {
	v, ok := s.tables.Get(chi.URLParam(r, "tableID"))
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

func (s *Server) info(sess *session) TableInfo {
	return TableInfo{
		ID:       sess.id,
		KeyLen:   sess.table.KeyLen(),
		VarNames: sess.table.VarNames(),
		Hasher:   sess.hasher.String(),
		Len:      sess.table.Len(),
	}
}

// decodeJSON decodes a request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as the response body. Encoding failures cannot be
// reported to the client once the header is written and are dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTableError maps table errors to status codes
func (s *Server) writeTableError(w http.ResponseWriter, err error) {
	if errors.Is(err, cmbtable.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Error("api: table operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func incrOrDefault(incr *float64) float64 {
	if incr == nil {
		return 1
	}
	return *incr
}

func newSessionID() string {
	return uuid.New().String()
}
