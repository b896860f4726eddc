// Package api serves the craps table over HTTP and websockets.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/craps-pf-go/internal/scan"
	"github.com/MJE43/craps-pf-go/internal/scripting"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
)

// Table is the live table the server fronts.
type Table interface {
	Snapshot(ctx context.Context) (table.State, error)
	PlaceBet(ctx context.Context, amount int) error
	RequestRoll(ctx context.Context) (uint64, error)
	RollAndWait(ctx context.Context) (table.Roll, error)
	Reset(ctx context.Context) error
	RotateSeed(ctx context.Context, clientSeed string) (table.SeedRotation, error)
}

// Autoplay runs strategy scripts against the table.
type Autoplay interface {
	Start(ctx context.Context, script string) error
	Stop() error
	GetState() scripting.EngineSnapshot
	GetLogs() []scripting.LogEntry
}

// Deps are the server's collaborators. Store, Autoplay and Hub are optional.
type Deps struct {
	Table    Table
	Store    *store.Store
	Autoplay Autoplay
	Hub      *Hub
}

// Server handles HTTP requests
type Server struct {
	table    Table
	db       *store.Store
	autoplay Autoplay
	hub      *Hub
	scanner  *scan.Scanner

	logger     *log.Logger
	audit      *AuditLog
	startTime  time.Time
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(d Deps) *Server {
	return &Server{
		table:     d.Table,
		db:        d.Store,
		autoplay:  d.Autoplay,
		hub:       d.Hub,
		scanner:   scan.NewScanner(),
		logger:    log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		audit:     NewAuditLog(),
		startTime: time.Now(),
	}
}

// Audit exposes the audit log for process lifecycle events.
func (s *Server) Audit() *AuditLog {
	return s.audit
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(s.recoverer)
	r.Use(allowCORS)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	// long-lived, so outside the request timeout
	if s.hub != nil {
		r.Get("/ws", s.handleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/table", s.handleTableState)
		r.Post("/bets", s.handlePlaceBet)
		r.Post("/rolls", s.handleRoll)
		r.Get("/rolls", s.handleCurrentRolls)
		r.Post("/reset", s.handleReset)
		r.Post("/seed/rotate", s.handleRotateSeed)
		r.Post("/seed/hash", s.handleSeedHash)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/rolls", s.handleSessionRolls)
		r.Get("/sessions/{id}/export.csv", s.handleExportCSV)

		r.Post("/verify", s.handleVerify)
		r.Get("/games", s.handleListGames)
		r.Post("/scan", s.handleScan)

		r.Get("/autoplay", s.handleAutoplayState)
		r.Post("/autoplay", s.handleAutoplayStart)
		r.Delete("/autoplay", s.handleAutoplayStop)
		r.Get("/autoplay/runs", s.handleAutoplayRuns)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response encode failed err=%v", err)
	}
}
