package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// requestLog writes one line per finished request. Query strings are left
// out since verify links may carry seeds.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/live" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Printf("%s %s status=%d bytes=%d took=%s request_id=%s remote=%s",
				r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
				time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()), r.RemoteAddr)
		}()
		next.ServeHTTP(ww, r)
	})
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}, ", "),
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Max-Age":       "86400",
}

// allowCORS lets a browser frontend on another origin drive the table.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range corsHeaders {
			w.Header().Set(k, v)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
