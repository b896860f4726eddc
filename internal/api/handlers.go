package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MJE43/craps-pf-go/internal/engine"
	"github.com/MJE43/craps-pf-go/internal/games"
	"github.com/MJE43/craps-pf-go/internal/scan"
	"github.com/MJE43/craps-pf-go/internal/store"
)

// stays under the /api/v1 request timeout
const maxScanTimeoutMs = 50_000

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, func() []Envelope {
		var greet []Envelope
		if st, err := s.table.Snapshot(r.Context()); err == nil {
			greet = append(greet, Envelope{T: "state", P: st})
		}
		if s.autoplay != nil {
			greet = append(greet, Envelope{T: "autoplay", P: s.autoplay.GetState()})
		}
		return greet
	})
}

// --------- Table ---------

func (s *Server) handleTableState(w http.ResponseWriter, r *http.Request) {
	st, err := s.table.Snapshot(r.Context())
	if err != nil {
		s.tableFailure(w, r, "snapshot", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req BetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "amount", "bet amount must be a whole number")
		return
	}
	if err := s.table.PlaceBet(r.Context(), req.Amount); err != nil {
		s.tableFailure(w, r, "place_bet", err)
		return
	}
	st, err := s.table.Snapshot(r.Context())
	if err != nil {
		s.tableFailure(w, r, "snapshot", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	var req RollRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.badRequest(w, r, "body", "invalid JSON format")
			return
		}
	}

	var resp RollResponse
	status := http.StatusAccepted
	if req.Wait {
		roll, err := s.table.RollAndWait(r.Context())
		if err != nil {
			s.tableFailure(w, r, "roll", err)
			return
		}
		resp.Nonce = roll.Nonce
		resp.Roll = &roll
		status = http.StatusOK
	} else {
		nonce, err := s.table.RequestRoll(r.Context())
		if err != nil {
			s.tableFailure(w, r, "roll", err)
			return
		}
		resp.Nonce = nonce
	}

	st, err := s.table.Snapshot(r.Context())
	if err != nil {
		s.tableFailure(w, r, "snapshot", err)
		return
	}
	resp.State = st
	s.writeJSON(w, status, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.table.Reset(r.Context()); err != nil {
		s.tableFailure(w, r, "reset", err)
		return
	}
	st, err := s.table.Snapshot(r.Context())
	if err != nil {
		s.tableFailure(w, r, "snapshot", err)
		return
	}
	s.audit.Action(middleware.GetReqID(r.Context()), "table_reset", "ok",
		Fields{"wallet": st.Wallet, "session_id": st.SessionID})
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRotateSeed(w http.ResponseWriter, r *http.Request) {
	var req RotateSeedRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.badRequest(w, r, "client_seed", "invalid JSON format")
			return
		}
	}
	rot, err := s.table.RotateSeed(r.Context(), req.ClientSeed)
	if err != nil {
		s.tableFailure(w, r, "rotate_seed", err)
		return
	}
	s.audit.SeedRotation(middleware.GetReqID(r.Context()), rot.PreviousHash, rot.NextHash, rot.LastNonce)
	s.writeJSON(w, http.StatusOK, rot)
}

func (s *Server) handleSeedHash(w http.ResponseWriter, r *http.Request) {
	var req SeedHashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "server_seed", "invalid JSON format")
		return
	}
	if req.ServerSeed == "" {
		s.badRequest(w, r, "server_seed", "server seed is required")
		return
	}
	s.writeJSON(w, http.StatusOK, SeedHashResponse{
		Hash:          engine.HashServerSeed(req.ServerSeed),
		EngineVersion: EngineVersion,
	})
}

// --------- Ledger ---------

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.db != nil {
		return true
	}
	s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeServiceUnavailable, "roll ledger is not enabled", nil)
	return false
}

func (s *Server) handleCurrentRolls(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	st, err := s.table.Snapshot(r.Context())
	if err != nil {
		s.tableFailure(w, r, "snapshot", err)
		return
	}
	id, err := uuid.Parse(st.SessionID)
	if err != nil {
		s.internalError(w, r, fmt.Errorf("table session id: %w", err))
		return
	}
	s.writeRollsPage(w, r, id)
}

func (s *Server) handleSessionRolls(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	s.writeRollsPage(w, r, id)
}

func (s *Server) writeRollsPage(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.badRequest(w, r, "page", err.Error())
		return
	}
	perPage, err := queryInt(r, "perPage", 50)
	if err != nil {
		s.badRequest(w, r, "perPage", err.Error())
		return
	}
	rolls, err := s.db.ListRolls(r.Context(), id, page, perPage)
	if err != nil {
		s.tableFailure(w, r, "list_rolls", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rolls)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.badRequest(w, r, "limit", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.badRequest(w, r, "offset", err.Error())
		return
	}
	sessions, err := s.db.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	s.writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions, Limit: limit, Offset: offset})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	sess, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		s.tableFailure(w, r, "get_session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	if _, err := s.db.GetSession(r.Context(), id); err != nil {
		s.tableFailure(w, r, "export_csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+id.String()+".csv"))
	if err := s.db.ExportCSV(r.Context(), w, id); err != nil {
		s.logger.Printf("csv export failed session=%s err=%v", id, err)
	}
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.badRequest(w, r, "id", "session id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// --------- Provably fair ---------

// handleVerify replays a nonce from seeds
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "body", "invalid JSON format")
		return
	}
	if req.Game == "" {
		req.Game = "craps"
	}

	if req.Seeds.Server == "" && req.ServerSeedHash != "" {
		if s.db == nil {
			s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeServiceUnavailable, "roll ledger is not enabled", nil)
			return
		}
		plain, found, err := s.db.LookupSeedAlias(r.Context(), req.ServerSeedHash)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !found {
			s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "server seed has not been revealed", map[string]interface{}{
				"server_seed_hash": req.ServerSeedHash,
			})
			return
		}
		req.Seeds.Server = plain
	}

	if err := ValidateVerifyRequest(&req); err != nil {
		s.badRequest(w, r, "request", err.Error())
		return
	}

	game, _ := games.GetGame(req.Game)
	result, err := game.Evaluate(req.Seeds, req.Nonce, req.Params)
	if err != nil {
		s.gameFailure(w, r, req.Game, req.Nonce, err)
		return
	}

	s.audit.Verify(middleware.GetReqID(r.Context()), req.Game, req.Seeds, req.Nonce, req.Params, result)
	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Nonce:         req.Nonce,
		GameResult:    result,
		EngineVersion: EngineVersion,
		Echo:          req,
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         games.ListGames(),
		EngineVersion: EngineVersion,
	})
}

// handleScan replays a nonce range for revealed seeds.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "body", "invalid JSON format")
		return
	}
	if req.Game == "" {
		req.Game = "craps"
	}
	if req.TargetOp == "" {
		req.TargetOp = scan.OpAny
	}
	if req.Seeds.Server == "" || req.Seeds.Client == "" {
		s.badRequest(w, r, "seeds", "server and client seeds are required")
		return
	}
	if req.TimeoutMs <= 0 || req.TimeoutMs > maxScanTimeoutMs {
		req.TimeoutMs = maxScanTimeoutMs
	}
	if err := req.Validate(); err != nil {
		s.badRequest(w, r, "request", err.Error())
		return
	}

	result, err := s.scanner.Scan(r.Context(), req)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.audit.Action(middleware.GetReqID(r.Context()), "scan", "ok", Fields{
		"game":        req.Game,
		"nonce_start": req.NonceStart,
		"nonce_end":   req.NonceEnd,
		"evaluated":   result.Summary.TotalEvaluated,
		"hits":        result.Summary.HitsFound,
		"timed_out":   result.Summary.TimedOut,
	})
	s.writeJSON(w, http.StatusOK, result)
}

// --------- Autoplay ---------

func (s *Server) requireAutoplay(w http.ResponseWriter, r *http.Request) bool {
	if s.autoplay != nil {
		return true
	}
	s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeServiceUnavailable, "autoplay is not enabled", nil)
	return false
}

func (s *Server) handleAutoplayState(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoplay(w, r) {
		return
	}
	s.writeJSON(w, http.StatusOK, AutoplayResponse{
		Engine: s.autoplay.GetState(),
		Logs:   s.autoplay.GetLogs(),
	})
}

func (s *Server) handleAutoplayRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.badRequest(w, r, "limit", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.badRequest(w, r, "offset", err.Error())
		return
	}
	runs, err := s.db.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.AutoplayRun{}
	}
	s.writeJSON(w, http.StatusOK, AutoplayRunsResponse{Runs: runs, Limit: limit, Offset: offset})
}

func (s *Server) handleAutoplayStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoplay(w, r) {
		return
	}
	var req AutoplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "script", "invalid JSON format")
		return
	}
	if req.Script == "" {
		s.badRequest(w, r, "script", "script is required")
		return
	}
	if err := s.autoplay.Start(r.Context(), req.Script); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeAutoplay, err.Error(), nil)
		return
	}
	s.audit.Action(middleware.GetReqID(r.Context()), "autoplay_start", "ok",
		Fields{"script_bytes": len(req.Script)})
	s.writeJSON(w, http.StatusAccepted, AutoplayResponse{
		Engine: s.autoplay.GetState(),
		Logs:   s.autoplay.GetLogs(),
	})
}

func (s *Server) handleAutoplayStop(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoplay(w, r) {
		return
	}
	if err := s.autoplay.Stop(); err != nil {
		s.writeError(w, r, http.StatusConflict, ErrTypeAutoplay, err.Error(), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, AutoplayResponse{
		Engine: s.autoplay.GetState(),
		Logs:   s.autoplay.GetLogs(),
	})
}
