package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
)

// failure is an error response being assembled.
type failure struct {
	status int
	body   APIError
}

func newFailure(r *http.Request, status int, errType, message string) *failure {
	return &failure{
		status: status,
		body: APIError{
			Type:      errType,
			Message:   message,
			Context:   map[string]interface{}{"path": r.URL.Path},
			RequestID: middleware.GetReqID(r.Context()),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func (f *failure) with(key string, value interface{}) *failure {
	f.body.Context[key] = value
	return f
}

// send logs the failure and writes it as JSON.
func (s *Server) send(w http.ResponseWriter, r *http.Request, f *failure) {
	category := GetErrorCategory(f.body.Type)
	level := "ERROR"
	if category == CategoryValidation || category == CategoryTable {
		level = "WARN"
	}
	s.logger.Printf(
		"request_failed level=%s type=%s category=%s status=%d request_id=%s method=%s path=%s remote=%s message=%q",
		level, f.body.Type, category, f.status, f.body.RequestID, r.Method, r.URL.Path, r.RemoteAddr, f.body.Message,
	)

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Engine-Version", EngineVersion)
	h.Set("X-Error-Type", f.body.Type)
	h.Set("X-Error-Category", string(category))
	w.WriteHeader(f.status)
	if err := json.NewEncoder(w).Encode(f.body); err != nil {
		s.logger.Printf("error response encode failed err=%v", err)
	}
}

// writeError sends an error of an explicit type and status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string, context map[string]interface{}) {
	f := newFailure(r, status, errType, message)
	for k, v := range context {
		f.with(k, v)
	}
	s.send(w, r, f)
}

// badRequest rejects malformed input and leaves an audit trail.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	s.audit.Rejected(middleware.GetReqID(r.Context()), r.RemoteAddr, field, message)
	s.send(w, r, newFailure(r, http.StatusBadRequest, ErrTypeValidation, "Validation failed: "+message).with("field", field))
}

// tableFailure maps table and betting errors to statuses. The table has
// already shown the player a message for rejected bets.
func (s *Server) tableFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, errType := tableErrorStatus(err)
	s.send(w, r, newFailure(r, status, errType, err.Error()).with("operation", op))
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.send(w, r, newFailure(r, http.StatusInternalServerError, ErrTypeInternal, err.Error()).with("method", r.Method))
}

func (s *Server) gameFailure(w http.ResponseWriter, r *http.Request, game string, nonce uint64, err error) {
	s.send(w, r, newFailure(r, http.StatusInternalServerError, ErrTypeGameEvaluation, "Game evaluation failed").
		with("game", game).
		with("nonce", nonce).
		with("cause", err.Error()))
}

func tableErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, craps.ErrInvalidBetAmount):
		return http.StatusBadRequest, ErrTypeInvalidBet
	case errors.Is(err, craps.ErrInsufficientFunds):
		return http.StatusBadRequest, ErrTypeInsufficientFunds
	case errors.Is(err, craps.ErrBettingClosed):
		return http.StatusConflict, ErrTypeBettingClosed
	case errors.Is(err, craps.ErrGameOver):
		return http.StatusConflict, ErrTypeGameOver
	case errors.Is(err, table.ErrRollInFlight):
		return http.StatusConflict, ErrTypeRollInFlight
	case errors.Is(err, table.ErrRollNotAllowed):
		return http.StatusConflict, ErrTypeRollNotAllowed
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, table.ErrClosed):
		return http.StatusServiceUnavailable, ErrTypeServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ErrTypeTimeout
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// recoverer turns a handler panic into a 500 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			s.send(w, r, newFailure(r, http.StatusInternalServerError, ErrTypeInternal, "Internal server error").
				with("panic", fmt.Sprint(rvr)).
				with("method", r.Method))
		}()
		next.ServeHTTP(w, r)
	})
}
