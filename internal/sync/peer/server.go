package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store"
	"github.com/punchlog/punch/internal/sync"
)

// Handler serves the peer protocol over any record store. Mount it at the
// server root; routes live under /api/v1.
func Handler(st store.Store, token string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{store: st, token: token, log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/manifest", h.manifest)
	mux.HandleFunc("POST /api/v1/punches", h.upload)
	mux.HandleFunc("POST /api/v1/punches/fetch", h.fetch)
	mux.HandleFunc("POST /api/v1/punches/delete", h.delete)
	return h.authenticate(mux)
}

type handler struct {
	store store.Store
	token string
	log   *zap.Logger
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && r.Header.Get("Authorization") != "Bearer "+h.token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) manifest(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Tombstones stay in the manifest with their deletion time, so a
	// deletion on this peer outruns older edits elsewhere.
	m := sync.Manifest{}
	for _, p := range all {
		m[p.ID] = p.UpdatedMillis()
	}
	writeJSON(w, m)
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	var req punchesPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	for _, p := range req.Punches {
		if err := h.store.Save(p); err != nil {
			if errors.Is(err, punch.ErrOutBeforeIn) || errors.Is(err, punch.ErrMissingID) || errors.Is(err, punch.ErrMissingIn) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.fail(w, r, err)
			return
		}
	}
	h.log.Debug("peer stored punches", zap.Int("count", len(req.Punches)))
	writeJSON(w, punchesPayload{Punches: req.Punches})
}

func (h *handler) fetch(w http.ResponseWriter, r *http.Request) {
	var req idsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	all, err := h.store.All()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	byID := make(map[string]*punch.Punch, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}

	resp := punchesPayload{Punches: make([]*punch.Punch, 0, len(req.IDs))}
	for _, id := range req.IDs {
		if p, ok := byID[id]; ok {
			resp.Punches = append(resp.Punches, p)
		}
	}
	writeJSON(w, resp)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	var req idsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	for _, id := range req.IDs {
		if err := h.store.Delete(&punch.Punch{ID: id}); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.log.Debug("peer tombstoned punches", zap.Int("count", len(req.IDs)))
	writeJSON(w, idsPayload{IDs: req.IDs})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("peer request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorPayload{Error: msg})
}

// Server runs the peer protocol on a TCP listener with graceful shutdown.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	log      *zap.Logger
}

// NewServer creates a peer server over the given store. Addr follows
// net.Listen conventions; ":0" picks a free port.
func NewServer(addr string, st store.Store, token string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr: addr,
		log:  logger,
		server: &http.Server{
			Handler:           Handler(st, token, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.log.Info("peer server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("peer server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
