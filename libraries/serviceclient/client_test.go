package serviceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type infoResponse struct {
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
}

func TestPost_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chain/get_info" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "ramindex/test" {
			t.Errorf("User-Agent = %q", ua)
		}
		fmt.Fprint(w, `{"last_irreversible_block_num": 1234}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, "ramindex/test")
	var resp infoResponse
	if err := c.Post(context.Background(), "/v1/chain/get_info", struct{}{}, &resp); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.LastIrreversibleBlockNum != 1234 {
		t.Errorf("lib = %d", resp.LastIrreversibleBlockNum)
	}
}

func TestPost_UnixSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "node.sock")
	l, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"last_irreversible_block_num": 7}`)
	})}
	go srv.Serve(l)
	defer srv.Close()

	c := New("unix://"+socket, time.Second, "")
	if c.BaseURL() != "http://localhost" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
	var resp infoResponse
	if err := c.Post(context.Background(), "/v1/chain/get_info", nil, &resp); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.LastIrreversibleBlockNum != 7 {
		t.Errorf("lib = %d", resp.LastIrreversibleBlockNum)
	}
}

func TestPost_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantUnknown   bool
		wantText      string
	}{
		{"unknown account", 500, `{"code":500,"error":{"name":"unknown_key_exception","what":"unknown key"}}`, false, true, "unknown key"},
		{"node failure", 500, `{"code":500,"error":{"name":"fc_exception","what":"database dirty"}}`, true, false, "database dirty"},
		{"bad gateway", 502, ``, true, false, "Bad Gateway"},
		{"bad request", 400, `nope`, false, false, "nope"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			err := New(srv.URL, time.Second, "").Post(context.Background(), "/v1/chain/get_account", nil, nil)
			var se *ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *ServiceError", err)
			}
			if se.StatusCode != tc.status {
				t.Errorf("StatusCode = %d", se.StatusCode)
			}
			if se.IsUnknownKey() != tc.wantUnknown {
				t.Errorf("IsUnknownKey() = %v", se.IsUnknownKey())
			}
			if IsRetryable(err) != tc.wantRetryable {
				t.Errorf("IsRetryable() = %v", IsRetryable(err))
			}
			if !strings.Contains(err.Error(), tc.wantText) {
				t.Errorf("Error() = %q, want to contain %q", err.Error(), tc.wantText)
			}
		})
	}
}

func TestPost_DecodeAndTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	var resp infoResponse
	if err := New(srv.URL, time.Second, "").Post(context.Background(), "/x", nil, &resp); err == nil {
		t.Error("expected decode error")
	}

	err := New("http://127.0.0.1:1", 100*time.Millisecond, "").Post(context.Background(), "/x", nil, nil)
	if err == nil || !IsRetryable(err) {
		t.Errorf("connection error = %v, retryable = %v", err, IsRetryable(err))
	}

	if IsRetryable(nil) || IsRetryable(context.Canceled) {
		t.Error("nil and cancellation must not be retryable")
	}
}
