package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/craps-pf-go/internal/games"
)

// HealthStatus is the outcome of one probe or of all of them.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

func (h HealthStatus) rank() int {
	switch h {
	case HealthStatusUnhealthy:
		return 2
	case HealthStatusDegraded:
		return 1
	}
	return 0
}

const healthProbeTimeout = 2 * time.Second

// HealthCheckResponse is the /health body.
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	Runtime       RuntimeStats           `json:"runtime"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck is one probe's result.
type HealthCheck struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration"`
}

// RuntimeStats is a small slice of runtime.MemStats plus table load.
type RuntimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	GCCycles   uint32 `json:"gc_cycles"`
	WSClients  int    `json:"ws_clients"`
}

type probe func(ctx context.Context) (HealthStatus, string)

func (s *Server) probes() map[string]probe {
	return map[string]probe{
		"games":    probeGames,
		"table":    s.probeTable,
		"database": s.probeDatabase,
	}
}

func runProbe(ctx context.Context, p probe) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	start := time.Now()
	status, msg := p(ctx)
	return HealthCheck{Status: status, Message: msg, Duration: time.Since(start).String()}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthCheckResponse{
		Status:        HealthStatusHealthy,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Checks:        make(map[string]HealthCheck),
		Runtime:       s.runtimeStats(),
		RequestID:     middleware.GetReqID(r.Context()),
	}
	for name, p := range s.probes() {
		c := runProbe(r.Context(), p)
		resp.Checks[name] = c
		if c.Status.rank() > resp.Status.rank() {
			resp.Status = c.Status
		}
	}

	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
		s.logger.Printf("health unhealthy checks=%+v", resp.Checks)
	}
	s.writeJSON(w, code, resp)
}

// handleReadiness reports ready once the table loop answers.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	c := runProbe(r.Context(), s.probeTable)
	ready := c.Status != HealthStatusUnhealthy
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"ready":   ready,
		"message": c.Message,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func probeGames(context.Context) (HealthStatus, string) {
	if _, ok := games.GetGame("craps"); !ok {
		return HealthStatusUnhealthy, "craps replay not registered"
	}
	return HealthStatusHealthy, fmt.Sprintf("%d games available", len(games.ListGames()))
}

// probeTable round-trips a snapshot through the table loop.
func (s *Server) probeTable(ctx context.Context) (HealthStatus, string) {
	st, err := s.table.Snapshot(ctx)
	switch {
	case err != nil:
		return HealthStatusUnhealthy, fmt.Sprintf("table loop not responding: %v", err)
	case st.GameOver:
		return HealthStatusDegraded, "wallet exhausted; reset required"
	}
	return HealthStatusHealthy, fmt.Sprintf("nonce %d", st.Nonce)
}

// probeDatabase pings the ledger. Running without one is degraded.
func (s *Server) probeDatabase(ctx context.Context) (HealthStatus, string) {
	if s.db == nil {
		return HealthStatusDegraded, "roll ledger disabled"
	}
	if err := s.db.Ping(ctx); err != nil {
		return HealthStatusUnhealthy, fmt.Sprintf("ping failed: %v", err)
	}
	return HealthStatusHealthy, "ok"
}

func (s *Server) runtimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	rs := RuntimeStats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		GCCycles:   m.NumGC,
	}
	if s.hub != nil {
		rs.WSClients = s.hub.Clients()
	}
	return rs
}
