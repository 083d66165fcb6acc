// Package admin serves the HTTP administration surface of the segment daemon.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/directory"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/sysdb"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 1 << 20

// EndpointResolver is implemented by managers that serve remote segments.
type EndpointResolver interface {
	GetEndpoint(ctx context.Context, collection model.UniqueID) (string, error)
}

// StatsProvider is implemented by managers that report cache statistics.
type StatsProvider interface {
	Stats() vecseg.Stats
}

// Server routes admin requests to a segment manager and its
// system-of-record.
type Server struct {
	manager vecseg.SegmentManager
	db      sysdb.SysDB
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates an admin server. extra handlers are mounted verbatim, for
// example the Prometheus handler under /metrics.
func New(manager vecseg.SegmentManager, db sysdb.SysDB, logger *slog.Logger, extra map[string]http.Handler) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		manager: manager,
		db:      db,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /v1/collections", s.handleCreateCollection)
	s.mux.HandleFunc("DELETE /v1/collections/{id}", s.handleDeleteCollection)
	s.mux.HandleFunc("POST /v1/collections/{id}/hint", s.handleHint)
	s.mux.HandleFunc("GET /v1/collections/{id}/endpoint", s.handleEndpoint)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	for pattern, h := range extra {
		s.mux.Handle(pattern, h)
	}
	return s
}

// Handler returns the http.Handler of the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type createCollectionRequest struct {
	Name      string         `json:"name"`
	Dimension *int32         `json:"dimension,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tenant    string         `json:"tenant,omitempty"`
	Database  string         `json:"database,omitempty"`
}

type segmentResponse struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Scope    string         `json:"scope"`
	Metadata model.Metadata `json:"metadata,omitempty"`
}

type collectionResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Segments []segmentResponse `json:"segments"`
}

// handleCreateCollection handles POST /v1/collections.
func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	md, err := normalizeMetadata(req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c := model.Collection{
		ID:        model.NewUniqueID(),
		Name:      req.Name,
		Dimension: req.Dimension,
		Metadata:  md,
		Tenant:    req.Tenant,
		Database:  req.Database,
	}

	segs, err := s.manager.CreateSegments(c)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	ctx := r.Context()
	if err := s.db.CreateCollection(ctx, c); err != nil {
		s.writeManagerError(w, err)
		return
	}
	for _, seg := range segs {
		if err := s.db.CreateSegment(ctx, seg); err != nil {
			s.rollback(ctx, c.ID, segs)
			s.writeManagerError(w, err)
			return
		}
	}

	s.logger.InfoContext(ctx, "collection created", "collection_id", c.ID.String(), "name", c.Name)

	resp := collectionResponse{ID: c.ID.String(), Name: c.Name}
	for _, seg := range segs {
		resp.Segments = append(resp.Segments, segmentResponse{
			ID:       seg.ID.String(),
			Type:     string(seg.Type),
			Scope:    string(seg.Scope),
			Metadata: seg.Metadata,
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) rollback(ctx context.Context, collection model.UniqueID, segs []model.Segment) {
	for _, seg := range segs {
		if err := s.db.DeleteSegment(ctx, seg.ID); err != nil && !errors.Is(err, sysdb.ErrNotFound) {
			s.logger.WarnContext(ctx, "rollback segment failed", "segment_id", seg.ID.String(), "error", err)
		}
	}
	if err := s.db.DeleteCollection(ctx, collection); err != nil {
		s.logger.WarnContext(ctx, "rollback collection failed", "collection_id", collection.String(), "error", err)
	}
}

// handleDeleteCollection handles DELETE /v1/collections/{id}.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	ids, err := s.manager.DeleteSegments(ctx, id)
	if err != nil && len(ids) == 0 {
		s.writeManagerError(w, err)
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "segment cleanup incomplete", "collection_id", id.String(), "error", err)
	}

	for _, segID := range ids {
		if err := s.db.DeleteSegment(ctx, segID); err != nil && !errors.Is(err, sysdb.ErrNotFound) {
			s.writeManagerError(w, err)
			return
		}
	}
	if err := s.db.DeleteCollection(ctx, id); err != nil {
		s.writeManagerError(w, err)
		return
	}

	deleted := make([]string, len(ids))
	for i, segID := range ids {
		deleted[i] = segID.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_segments": deleted})
}

type hintRequest struct {
	Operation model.Operation `json:"operation"`
}

// handleHint handles POST /v1/collections/{id}/hint.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req hintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Operation == "" {
		req.Operation = model.OperationAdd
	}

	if err := s.manager.HintUseCollection(r.Context(), id, req.Operation); err != nil {
		s.writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEndpoint handles GET /v1/collections/{id}/endpoint.
func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resolver, ok := s.manager.(EndpointResolver)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("endpoints are only served in distributed topology"))
		return
	}

	endpoint, err := resolver.GetEndpoint(r.Context(), id)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"endpoint": endpoint})
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sp, ok := s.manager.(StatsProvider)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("stats are not available"))
		return
	}
	writeJSON(w, http.StatusOK, sp.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request) (model.UniqueID, bool) {
	id, err := model.ParseUniqueID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed collection id: %w", err))
		return model.UniqueID{}, false
	}
	return id, true
}

func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("admin request failed", "error", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vecseg.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, vecseg.ErrSegmentNotFound), errors.Is(err, sysdb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sysdb.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, directory.ErrNoMembers):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return err
	}
	if len(body) > MaxBodySize {
		return fmt.Errorf("request body exceeds %d bytes", MaxBodySize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// normalizeMetadata converts decoded JSON values to metadata scalars:
// integral numbers become int64 and other numbers float64.
func normalizeMetadata(in map[string]any) (model.Metadata, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(model.Metadata, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case json.Number:
			if i, err := x.Int64(); err == nil {
				out[k] = i
			} else if f, err := x.Float64(); err == nil {
				out[k] = f
			} else {
				return nil, fmt.Errorf("metadata %q: %w", k, err)
			}
		case string, bool:
			out[k] = x
		default:
			return nil, fmt.Errorf("metadata %q: %w: %T", k, codec.ErrUnsupportedValue, v)
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
