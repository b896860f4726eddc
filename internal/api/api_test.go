package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/craps-pf-go/internal/games"
	"github.com/MJE43/craps-pf-go/internal/scan"
	"github.com/MJE43/craps-pf-go/internal/scripting"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
)

type testEnv struct {
	server *Server
	table  *table.Table
	db     *store.Store
	hub    *Hub
	routes http.Handler
}

// newTestEnv runs a real table loop fast enough that rolls settle in well
// under a second of wall time.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := NewHub(1000, 50)
	tbl, err := table.New(table.Options{
		StartWallet: 1000,
		TickHz:      1000,
		MaxSettle:   5 * time.Second,
		ClientSeed:  "api-test",
		Recorder:    db,
		Logger:      log.New(io.Discard, "", 0),
		Listeners:   []table.Listener{hub},
	})
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tbl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		hub.Close()
	})

	auto := scripting.NewEngine(tbl, hub)
	auto.SetRecorder(db)
	srv := NewServer(Deps{Table: tbl, Store: db, Autoplay: auto, Hub: hub})
	srv.logger.SetOutput(io.Discard)
	srv.audit.logger.SetOutput(io.Discard)
	hub.logger.SetOutput(io.Discard)

	return &testEnv{server: srv, table: tbl, db: db, hub: hub, routes: srv.Routes()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.routes.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decode[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("status = %s, checks = %+v", resp.Status, resp.Checks)
	}
	for _, name := range []string{"games", "table", "database"} {
		if _, ok := resp.Checks[name]; !ok {
			t.Errorf("missing %s check", name)
		}
	}

	if w := env.do(t, "GET", "/health/ready", nil); w.Code != http.StatusOK {
		t.Errorf("readiness = %d", w.Code)
	}
	if w := env.do(t, "GET", "/health/live", nil); w.Code != http.StatusOK {
		t.Errorf("liveness = %d", w.Code)
	}
}

func TestGamesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/games", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decode[GamesResponse](t, w)
	found := false
	for _, g := range resp.Games {
		if g.ID == "craps" {
			found = true
		}
	}
	if !found {
		t.Errorf("craps missing from %+v", resp.Games)
	}
	if resp.EngineVersion == "" {
		t.Error("Expected engine version in response")
	}
}

func TestSeedHashEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/seed/hash", SeedHashRequest{ServerSeed: "test_server_seed"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if resp := decode[SeedHashResponse](t, w); len(resp.Hash) != 64 {
		t.Errorf("hash = %q", resp.Hash)
	}

	w = env.do(t, "POST", "/api/v1/seed/hash", SeedHashRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty seed status = %d", w.Code)
	}
}

func TestBetErrorsMapToStatus(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		amount  int
		status  int
		errType string
	}{
		{0, http.StatusBadRequest, ErrTypeInvalidBet},
		{-5, http.StatusBadRequest, ErrTypeInvalidBet},
		{5000, http.StatusBadRequest, ErrTypeInsufficientFunds},
	}
	for _, c := range cases {
		w := env.do(t, "POST", "/api/v1/bets", BetRequest{Amount: c.amount})
		if w.Code != c.status {
			t.Errorf("amount %d: status = %d, want %d", c.amount, w.Code, c.status)
		}
		if got := w.Header().Get("X-Error-Type"); got != c.errType {
			t.Errorf("amount %d: error type = %q, want %q", c.amount, got, c.errType)
		}
	}

	w := env.do(t, "POST", "/api/v1/rolls", RollRequest{Wait: true})
	if w.Code != http.StatusConflict {
		t.Errorf("roll before bet status = %d", w.Code)
	}
	if got := w.Header().Get("X-Error-Type"); got != ErrTypeRollNotAllowed {
		t.Errorf("roll before bet error type = %q", got)
	}

	req := httptest.NewRequest("POST", "/api/v1/bets", strings.NewReader(`{"amount":"ten"}`))
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || rec.Header().Get("X-Error-Type") != ErrTypeValidation {
		t.Errorf("non-numeric bet: %d %s", rec.Code, rec.Header().Get("X-Error-Type"))
	}
}

func TestBetRollAndLedger(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/bets", BetRequest{Amount: 50})
	if w.Code != http.StatusOK {
		t.Fatalf("bet status = %d: %s", w.Code, w.Body.String())
	}
	st := decode[table.State](t, w)
	if st.Wallet != 950 || st.CurrentBet != 50 || !st.RollEnabled {
		t.Fatalf("state after bet = %+v", st)
	}

	w = env.do(t, "POST", "/api/v1/bets", BetRequest{Amount: 10})
	if w.Code != http.StatusConflict || w.Header().Get("X-Error-Type") != ErrTypeBettingClosed {
		t.Errorf("second bet: %d %s", w.Code, w.Header().Get("X-Error-Type"))
	}

	w = env.do(t, "POST", "/api/v1/rolls", RollRequest{Wait: true})
	if w.Code != http.StatusOK {
		t.Fatalf("roll status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[RollResponse](t, w)
	if resp.Roll == nil || resp.Nonce != 1 {
		t.Fatalf("roll response = %+v", resp)
	}
	if resp.Roll.Total < 2 || resp.Roll.Total > 12 {
		t.Errorf("total = %d", resp.Roll.Total)
	}
	if resp.State.Rolling {
		t.Error("state still rolling after settle")
	}

	w = env.do(t, "GET", "/api/v1/rolls", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rolls status = %d", w.Code)
	}
	page := decode[store.RollsPage](t, w)
	if page.TotalCount != 1 || len(page.Rolls) != 1 {
		t.Fatalf("rolls page = %+v", page)
	}
	if page.Rolls[0].Total != resp.Roll.Total || page.Rolls[0].Bet != 50 {
		t.Errorf("ledger row = %+v", page.Rolls[0])
	}
}

func TestRotateSeedThenVerify(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "POST", "/api/v1/bets", BetRequest{Amount: 10}); w.Code != http.StatusOK {
		t.Fatalf("bet status = %d", w.Code)
	}
	w := env.do(t, "POST", "/api/v1/rolls", RollRequest{Wait: true})
	if w.Code != http.StatusOK {
		t.Fatalf("roll status = %d", w.Code)
	}
	roll := decode[RollResponse](t, w).Roll

	// unrevealed seeds cannot be looked up
	st := decode[table.State](t, env.do(t, "GET", "/api/v1/table", nil))
	w = env.do(t, "POST", "/api/v1/verify", VerifyRequest{
		ServerSeedHash: st.ServerSeedHash,
		Nonce:          1,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("verify before reveal status = %d", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/seed/rotate", RotateSeedRequest{ClientSeed: "next-client"})
	if w.Code != http.StatusOK {
		t.Fatalf("rotate status = %d: %s", w.Code, w.Body.String())
	}
	rot := decode[table.SeedRotation](t, w)
	if rot.PreviousHash != st.ServerSeedHash || rot.LastNonce != 1 || rot.NextClient != "next-client" {
		t.Fatalf("rotation = %+v", rot)
	}

	w = env.do(t, "POST", "/api/v1/verify", VerifyRequest{
		Game:           "craps",
		ServerSeedHash: rot.PreviousHash,
		Seeds:          rot.Previous,
		Nonce:          1,
		Params:         map[string]any{"max_settle": 5.0},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", w.Code, w.Body.String())
	}
	vr := decode[VerifyResponse](t, w)
	if int(vr.GameResult.Metric) != roll.Total {
		t.Errorf("verified total = %v, table rolled %d", vr.GameResult.Metric, roll.Total)
	}

	// and by hash alone once revealed
	w = env.do(t, "POST", "/api/v1/verify", VerifyRequest{
		ServerSeedHash: rot.PreviousHash,
		Seeds:          games.Seeds{Client: rot.Previous.Client},
		Nonce:          1,
		Params:         map[string]any{"max_settle": 5.0},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify by hash status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[VerifyResponse](t, w); int(got.GameResult.Metric) != roll.Total {
		t.Errorf("verified by hash total = %v", got.GameResult.Metric)
	}

	sessions := decode[SessionsResponse](t, env.do(t, "GET", "/api/v1/sessions", nil))
	if len(sessions.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions.Sessions))
	}

	w = env.do(t, "GET", "/api/v1/sessions/"+st.SessionID+"/export.csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "nonce,die1,die2,total") {
		t.Errorf("csv = %q", w.Body.String())
	}
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "GET", "/api/v1/sessions/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/sessions/00000000-0000-0000-0000-000000000001", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/rolls?page=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad page status = %d", w.Code)
	}
}

func TestVerifyValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []VerifyRequest{
		{Game: "nope", Seeds: games.Seeds{Server: "s", Client: "c"}, Nonce: 1},
		{Game: "craps", Seeds: games.Seeds{Client: "c"}, Nonce: 1},
		{Game: "craps", Seeds: games.Seeds{Server: "s", Client: "c"}, Nonce: 0},
		{Game: "craps", Seeds: games.Seeds{Server: "s", Client: "c"}, Nonce: 1, Params: map[string]any{"max_settle": -1.0}},
	}
	for i, c := range cases {
		if w := env.do(t, "POST", "/api/v1/verify", c); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d", i, w.Code)
		}
	}
}

func TestScanEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := scan.Request{
		Game:       "pair",
		Seeds:      games.Seeds{Server: "scan-s", Client: "scan-c"},
		NonceStart: 1,
		NonceEnd:   500,
		TargetOp:   scan.OpGreaterEqual,
		TargetVal:  11,
	}
	w := env.do(t, "POST", "/api/v1/scan", req)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d: %s", w.Code, w.Body.String())
	}
	res := decode[scan.Result](t, w)
	if res.Summary.TotalEvaluated != 500 {
		t.Errorf("evaluated = %d", res.Summary.TotalEvaluated)
	}
	if want := res.Summary.Totals[11] + res.Summary.Totals[12]; res.Summary.HitsFound != want {
		t.Errorf("hits = %d, want %d", res.Summary.HitsFound, want)
	}

	bad := []scan.Request{
		{Game: "pair", NonceStart: 1, NonceEnd: 5},
		{Game: "pair", Seeds: req.Seeds, NonceStart: 5, NonceEnd: 1},
		{Game: "pair", Seeds: req.Seeds, NonceStart: 1, NonceEnd: 5, TargetOp: "near"},
		{Game: "dice", Seeds: req.Seeds, NonceStart: 1, NonceEnd: 5},
	}
	for i, b := range bad {
		if w := env.do(t, "POST", "/api/v1/scan", b); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d", i, w.Code)
		}
	}
}

func TestAutoplayEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "DELETE", "/api/v1/autoplay", nil); w.Code != http.StatusConflict {
		t.Errorf("stop idle status = %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/v1/autoplay", AutoplayRequest{Script: "var x = 1"}); w.Code != http.StatusBadRequest {
		t.Errorf("script without dobet status = %d", w.Code)
	}

	script := `
		nextbet = 5
		dobet = function() { if (bets >= 2) stop() }
	`
	if w := env.do(t, "POST", "/api/v1/autoplay", AutoplayRequest{Script: script}); w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(30 * time.Second)
	var resp AutoplayResponse
	for time.Now().Before(deadline) {
		resp = decode[AutoplayResponse](t, env.do(t, "GET", "/api/v1/autoplay", nil))
		if resp.Engine.State != scripting.StateRunning {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if resp.Engine.State != scripting.StateStopped {
		t.Fatalf("autoplay state = %s (%s)", resp.Engine.State, resp.Engine.Error)
	}
	if resp.Engine.Stats == nil || resp.Engine.Stats.Bets != 2 {
		t.Fatalf("stats = %+v", resp.Engine.Stats)
	}

	st := decode[table.State](t, env.do(t, "GET", "/api/v1/table", nil))
	want := 1000 + int(resp.Engine.Stats.Profit.IntPart())
	if st.Wallet != want {
		t.Errorf("wallet = %d, want %d", st.Wallet, want)
	}

	// the run row is finalized just after the state flips to stopped
	var runs AutoplayRunsResponse
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		runs = decode[AutoplayRunsResponse](t, env.do(t, "GET", "/api/v1/autoplay/runs", nil))
		if len(runs.Runs) == 1 && runs.Runs[0].EndedAt != nil {
			break
		}
	}
	if len(runs.Runs) != 1 || runs.Runs[0].ID.String() != resp.Engine.RunID || runs.Runs[0].Bets != 2 {
		t.Errorf("runs = %+v", runs.Runs)
	}
}

func TestWebsocketStreamsState(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.routes)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	type raw struct {
		T string          `json:"t"`
		P json.RawMessage `json:"p"`
	}
	var first raw
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if first.T != "state" {
		t.Fatalf("first envelope = %s", first.T)
	}

	if w := env.do(t, "POST", "/api/v1/bets", BetRequest{Amount: 10}); w.Code != http.StatusOK {
		t.Fatalf("bet status = %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/v1/rolls", RollRequest{Wait: true}); w.Code != http.StatusOK {
		t.Fatalf("roll status = %d", w.Code)
	}

	seen := map[string]bool{}
	for !(seen["frame"] && seen["message"] && seen["bet_state"]) {
		var e raw
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[e.T] = true
		if e.T == "state" {
			var st table.State
			if err := json.Unmarshal(e.P, &st); err != nil {
				t.Fatal(err)
			}
			if st.CurrentBet == 10 || (st.LastRoll != nil && st.LastRoll.Bet == 10) {
				seen["bet_state"] = true
			}
		}
	}
}

func TestHubFrameStride(t *testing.T) {
	h := NewHub(60, 20)
	if h.frameStride != 3 {
		t.Fatalf("stride = %d", h.frameStride)
	}
	if NewHub(20, 60).frameStride != 1 {
		t.Error("stride must be at least 1")
	}
}

func TestHubRegistersBeforeGreeting(t *testing.T) {
	h := NewHub(60, 20)
	h.logger.SetOutput(io.Discard)
	defer h.Close()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, func() []Envelope {
			// an event landing while the greeting is being built
			h.Message("bet placed", 0)
			return []Envelope{{T: "state", P: table.State{Message: "greeting"}}}
		})
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	seen := map[string]bool{}
	for len(seen) < 2 {
		var e struct {
			T string `json:"t"`
		}
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[e.T] = true
	}
	if !seen["message"] || !seen["state"] {
		t.Errorf("seen = %v, want message and state", seen)
	}
}
