// Package server wires together the HTTP transport, the BPX request
// handler, and its operational endpoints (health, stats).
package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	"bpx/pkg/bpxhandler"
	"bpx/pkg/config"
	"bpx/pkg/resourcestore"
	"bpx/pkg/session"
)

// Server is the HTTP server fronting the BPX request handler.
type Server struct {
	sessions *session.Store
	store    *resourcestore.Memory
	handler  *bpxhandler.Handler
	bpxCfg   config.BpxConfig
	mux      *http.ServeMux
	logger   *log.Logger
}

// New creates a Server. store is exposed so demo/CLI code can seed and
// mutate resource content between polls.
func New(sessions *session.Store, store *resourcestore.Memory, handler *bpxhandler.Handler, bpxCfg config.BpxConfig, logger *log.Logger) *Server {
	s := &Server{
		sessions: sessions,
		store:    store,
		handler:  handler,
		bpxCfg:   bpxCfg,
		mux:      http.NewServeMux(),
		logger:   logger,
	}

	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("OPTIONS /v1/health", s.handlePreflight)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("OPTIONS /v1/stats", s.handlePreflight)

	// Everything else is a BPX resource request.
	s.mux.Handle("/", s.handler)

	return s
}

// Run starts the server on the given address.
func (s *Server) Run(addr string) error {
	s.logger.Printf("bpx listening on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(l net.Listener) error {
	s.logger.Printf("bpx listening on %s", l.Addr())
	return http.Serve(l, s.mux)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statsResponse is the JSON body of GET /v1/stats: read-only
// introspection into session and resource counts, not a
// content-generating demo endpoint.
type statsResponse struct {
	Sessions         int              `json:"sessions"`
	Resources        int              `json:"resources"`
	RetainedVersions int              `json:"retained_versions"`
	Config           config.BpxConfig `json:"config"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statsResponse{
		Sessions:         s.sessions.Len(),
		Resources:        s.store.ResourceCount(),
		RetainedVersions: s.store.VersionCount(),
		Config:           s.bpxCfg,
	})
}

// handlePreflight answers a browser's CORS preflight for the health
// and stats endpoints. The BPX resource endpoint itself is not
// browser-facing and does not get this treatment.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}
