package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/services/ramindex/internal/ledger"
	"github.com/greymass/ramindex/services/ramindex/internal/market"
	"github.com/greymass/ramindex/services/ramindex/internal/query"
)

var (
	ramcore = chain.NewSymbolFromString(4, "RAMCORE")
	ram     = chain.NewSymbolFromString(0, "RAM")
	enu     = chain.NewSymbolFromString(4, "ENU")
)

type fixedChain uint32

func (c fixedChain) LastIrreversibleBlock(ctx context.Context) (uint32, error) {
	return uint32(c), nil
}

type fixedMarket struct{}

func (fixedMarket) RAMMarket(ctx context.Context) (market.State, error) {
	return market.State{
		Supply: chain.NewAsset(100000000000000, ramcore),
		Base:   market.Connector{Balance: chain.NewAsset(68719476736, ram), Weight: 0.5},
		Quote:  market.Connector{Balance: chain.NewAsset(10000000000, enu), Weight: 0.5},
	}, nil
}

func newTestServer(t *testing.T, cfg Config, actions int) *Server {
	t.Helper()
	store, err := ledger.NewStore(t.TempDir(), ledger.StoreConfig{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	l, err := ledger.Open(store)
	if err != nil {
		t.Fatal(err)
	}

	trx, _ := chain.ParseChecksum256(strings.Repeat("0f", 32))
	tx := l.Begin()
	for i := 0; i < actions; i++ {
		if _, err := tx.Append(ledger.Action{
			Payer:        chain.StringToName("alice"),
			Receiver:     chain.StringToName("bob"),
			Name:         chain.StringToName("buyrambytes"),
			Token:        chain.NewAsset(10050, enu),
			Fee:          chain.NewAsset(50, enu),
			RAMRequested: 4096,
			RAMRealized:  4096,
			BlockNum:     uint32(100 + i),
			BlockTime:    1000,
			TrxID:        trx,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tx.Update(chain.StringToName("bob"), 4096*int64(actions)); err != nil {
		t.Fatal(err)
	}
	tx.SetFeedPosition(uint64(actions), uint32(100+actions))
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	history := query.NewHistory(l, fixedChain(99), time.Second)
	evaluator := query.NewEvaluator(fixedMarket{}, fixedChain(99), enu, ram)
	s, err := New(cfg, history, evaluator, l, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, target, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q", method, target, rec.Body.String())
	}
	return rec.Code, out
}

func TestGetActions(t *testing.T) {
	s := newTestServer(t, Config{}, 30)

	code, out := do(t, s, http.MethodGet, "/v1/ram/get_actions", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, out)
	}
	actions := out["actions"].([]any)
	if len(actions) != 20 {
		t.Fatalf("got %d actions, want 20", len(actions))
	}
	first := actions[0].(map[string]any)
	if first["action_seq"] != float64(11) || first["payer"] != "alice" || first["token"] != "1.0050 ENU" {
		t.Errorf("first action = %v", first)
	}
	if out["last_irreversible_block"] != float64(99) {
		t.Errorf("last_irreversible_block = %v", out["last_irreversible_block"])
	}
	if _, ok := out["time_limit_exceeded_error"]; ok {
		t.Error("time_limit_exceeded_error should be omitted")
	}

	code, out = do(t, s, http.MethodPost, "/v1/ram/get_actions", `{"pos":0,"offset":5}`)
	if code != http.StatusOK || len(out["actions"].([]any)) != 5 {
		t.Errorf("POST pos=0 offset=5: status %d, %v", code, out)
	}

	code, out = do(t, s, http.MethodGet, "/v1/ram/get_actions?pos=5&offset=-2", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	got := out["actions"].([]any)
	if len(got) != 2 || got[1].(map[string]any)["action_seq"] != float64(5) {
		t.Errorf("pos=5 offset=-2 = %v", got)
	}
}


func TestGetAccountActions(t *testing.T) {
	s := newTestServer(t, Config{}, 30)

	code, out := do(t, s, http.MethodGet, "/v1/ram/get_account_actions?account=bob&pos=0&offset=3", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, out)
	}
	actions := out["actions"].([]any)
	if len(actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(actions))
	}
	last := actions[2].(map[string]any)
	if last["account_action_seq"] != float64(3) || last["action_seq"] != float64(3) || last["receiver"] != "bob" {
		t.Errorf("last action = %v", last)
	}

	code, out = do(t, s, http.MethodPost, "/v1/ram/get_account_actions", `{"account":"alice"}`)
	if code != http.StatusOK || len(out["actions"].([]any)) != 20 {
		t.Errorf("POST account=alice: status %d, %v", code, out)
	}

	code, out = do(t, s, http.MethodGet, "/v1/ram/get_account_actions?account=carol", "")
	if code != http.StatusOK || len(out["actions"].([]any)) != 0 {
		t.Errorf("account=carol: status %d, %v", code, out)
	}

	for _, target := range []string{
		"/v1/ram/get_account_actions",
		"/v1/ram/get_account_actions?account=NotAName",
		"/v1/ram/get_account_actions?account=bob&pos=40&offset=1",
	} {
		if code, out := do(t, s, http.MethodGet, target, ""); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body %v", target, code, out)
		}
	}
}
func TestGetActionsErrors(t *testing.T) {
	s := newTestServer(t, Config{}, 3)

	tests := []struct {
		method, target, body string
		status               int
		kind                 string
	}{
		{http.MethodPost, "/v1/ram/get_actions", `{"pos":10,"offset":5}`, 400, "invalid_range"},
		{http.MethodPost, "/v1/ram/get_actions", `{"pos":"abc"}`, 400, "bad_request"},
		{http.MethodPost, "/v1/ram/get_actions", `{"offset":9999999999}`, 400, "bad_request"},
		{http.MethodPost, "/v1/ram/get_actions", `{not json`, 400, "bad_request"},
		{http.MethodDelete, "/v1/ram/get_actions", "", 405, "bad_request"},
	}
	for _, tc := range tests {
		code, out := do(t, s, tc.method, tc.target, tc.body)
		if code != tc.status {
			t.Errorf("%s %s %s: status = %d, want %d", tc.method, tc.target, tc.body, code, tc.status)
			continue
		}
		errBody, _ := out["error"].(map[string]any)
		if errBody["kind"] != tc.kind {
			t.Errorf("%s %s: error = %v, want kind %s", tc.method, tc.body, out, tc.kind)
		}
	}
}

func TestEvaluate(t *testing.T) {
	s := newTestServer(t, Config{}, 0)

	code, out := do(t, s, http.MethodPost, "/v1/ram/evaluate", `{"from":"200.0000 ENU"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, out)
	}
	want := map[string]any{
		"to":                      "13672454 RAM",
		"fee":                     "1.0000 ENU",
		"rammarket_base":          "68719476736 RAM",
		"rammarket_quote":         "1000000.0000 ENU",
		"last_irreversible_block": float64(99),
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("%s = %v, want %v", k, out[k], v)
		}
	}

	code, out = do(t, s, http.MethodGet, "/v1/ram/evaluate?from=1000000%20RAM", "")
	if code != http.StatusOK || out["to"] != "14.4788 ENU" || out["fee"] != "0.0728 ENU" {
		t.Errorf("RAM to ENU: status %d, %v", code, out)
	}

	for body, kind := range map[string]string{
		`{"from":"1.0000 EOS"}`: "illegal_symbol",
		`{"from":"lots"}`:       "bad_request",
		`{}`:                    "bad_request",
	} {
		code, out := do(t, s, http.MethodPost, "/v1/ram/evaluate", body)
		errBody, _ := out["error"].(map[string]any)
		if code != http.StatusBadRequest || errBody["kind"] != kind {
			t.Errorf("evaluate %s: status %d, %v, want %s", body, code, out, kind)
		}
	}

	// Beyond the largest valid asset amount.
	code, out = do(t, s, http.MethodPost, "/v1/ram/evaluate", `{"from":"922337203685477.5807 ENU"}`)
	if errBody, _ := out["error"].(map[string]any); code != http.StatusBadRequest || errBody["kind"] != "bad_request" {
		t.Errorf("evaluate max int64: status %d, %v", code, out)
	}
}

func TestShuttingDown(t *testing.T) {
	s := newTestServer(t, Config{}, 1)
	s.SetShuttingDown()
	code, out := do(t, s, http.MethodGet, "/v1/ram/get_actions", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, %v", code, out)
	}
}

func TestHealthAndDebug(t *testing.T) {
	s := newTestServer(t, Config{DebugEndpoints: true}, 2)

	code, out := do(t, s, http.MethodGet, "/health", "")
	if code != http.StatusOK || out["ledger_size"] != float64(2) || out["last_block"] != float64(102) {
		t.Errorf("health = %d %v", code, out)
	}

	code, out = do(t, s, http.MethodGet, "/debug/snapshot?account=bob", "")
	snaps, _ := out["snapshots"].([]any)
	if code != http.StatusOK || len(snaps) != 1 || snaps[0].(map[string]any)["ram"] != float64(8192) {
		t.Errorf("debug snapshot = %d %v", code, out)
	}

	code, out = do(t, s, http.MethodGet, "/debug/snapshot", "")
	if snaps, _ := out["snapshots"].([]any); code != http.StatusOK || len(snaps) != 1 {
		t.Errorf("debug snapshot list = %d %v", code, out)
	}

	code, out = do(t, s, http.MethodGet, "/debug/properties", "")
	if code != http.StatusOK || out["feed_seq"] != float64(2) {
		t.Errorf("debug properties = %d %v", code, out)
	}
}

func TestDebugDisabled(t *testing.T) {
	s := newTestServer(t, Config{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/debug/properties", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("debug route status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "/debug/") {
		t.Errorf("openapi.json status %d, debug paths present: %v", rec.Code, strings.Contains(rec.Body.String(), "/debug/"))
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2}, 0)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2, 172.16.0.1")
	if ip := clientIP(req); ip != "10.0.0.2" {
		t.Errorf("clientIP() = %q", ip)
	}
}
