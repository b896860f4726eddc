package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/MJE43/craps-pf-go/internal/games"
)

// AuditLog writes one key=value line per event. Seeds never reach it in
// the clear: any seed-like key is replaced by a short hash.
type AuditLog struct {
	logger *log.Logger
}

// NewAuditLog creates an audit log writing to stdout.
func NewAuditLog() *AuditLog {
	return &AuditLog{logger: log.New(os.Stdout, "[AUDIT] ", log.LstdFlags|log.LUTC)}
}

// Fields are extra event attributes.
type Fields map[string]any

// Verify records a single replayed roll.
func (a *AuditLog) Verify(requestID, game string, seeds games.Seeds, nonce uint64, params map[string]any, result games.GameResult) {
	f := Fields{
		"game":   game,
		"seeds":  seeds,
		"nonce":  nonce,
		"metric": result.Metric,
	}
	for k, v := range params {
		f["param."+k] = v
	}
	a.event("verify", requestID, f)
}

// SeedRotation records a reveal by hash only.
func (a *AuditLog) SeedRotation(requestID, previousHash, nextHash string, lastNonce uint64) {
	a.event("seed_rotation", requestID, Fields{
		"previous_hash": previousHash,
		"next_hash":     nextHash,
		"last_nonce":    lastNonce,
	})
}

// Rejected records a request refused by validation.
func (a *AuditLog) Rejected(requestID, remoteAddr, field, reason string) {
	a.event("rejected", requestID, Fields{
		"field":  field,
		"reason": reason,
		"remote": remoteAddr,
	})
}

// Action records a state-changing operation and how it ended.
func (a *AuditLog) Action(requestID, action, outcome string, f Fields) {
	if f == nil {
		f = Fields{}
	}
	f["action"] = action
	f["outcome"] = outcome
	a.event("action", requestID, f)
}

// Startup records the listen address and effective configuration.
func (a *AuditLog) Startup(addr string, cfg Fields) {
	if cfg == nil {
		cfg = Fields{}
	}
	cfg["addr"] = addr
	cfg["commit"] = GitCommit
	cfg["built"] = BuildTime
	a.event("startup", "", cfg)
}

// Shutdown records why and after how long the server stopped.
func (a *AuditLog) Shutdown(reason string, uptime time.Duration) {
	a.event("shutdown", "", Fields{"reason": reason, "uptime": uptime.Round(time.Millisecond)})
}

func (a *AuditLog) event(kind, requestID string, f Fields) {
	var b strings.Builder
	b.WriteString(kind)
	if requestID != "" {
		fmt.Fprintf(&b, " request_id=%s", requestID)
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key, val := redact(k, f[k])
		fmt.Fprintf(&b, " %s=%v", key, val)
	}
	fmt.Fprintf(&b, " version=%s", EngineVersion)
	a.logger.Print(b.String())
}

func redact(key string, v any) (string, any) {
	switch strings.TrimPrefix(key, "param.") {
	case "server_seed", "serverSeed", "server", "client_seed", "clientSeed", "client":
		s, ok := v.(string)
		if !ok {
			return key + "_hash", fmt.Sprintf("<%T>", v)
		}
		return key + "_hash", hashSeed(s)
	case "seeds":
		if s, ok := v.(games.Seeds); ok {
			return "seed_hashes", hashSeed(s.Server) + "/" + hashSeed(s.Client)
		}
		return key, "<seeds>"
	case "script":
		return key, "<script>"
	}
	if s, ok := v.(string); ok && strings.ContainsAny(s, " \t\n\"") {
		return key, fmt.Sprintf("%q", s)
	}
	return key, v
}

// hashSeed returns the first 16 hex chars of sha256(seed).
func hashSeed(seed string) string {
	if seed == "" {
		return "empty"
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:8])
}
