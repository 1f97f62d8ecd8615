package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/wlanlogin/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &client{http: srv.Client(), apiURL: srv.URL, apiKey: "k1"}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return text.Text
}

func TestHandleLogin(t *testing.T) {
	var got models.LoginRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/login" || r.Header.Get("X-API-Key") != "k1" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(models.LoginResponse{
			Success: true,
			Outcome: &models.LoginOutcome{
				Authenticated:   true,
				DetectionMethod: models.DetectionPathMatch,
				State:           models.StateAuthenticated,
				FinalURL:        "http://portal.test/srun_portal_success",
			},
		})
	})

	res, err := c.handleLogin(t.Context(), callRequest(map[string]any{"force": true}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if !got.Force {
		t.Error("force not forwarded")
	}
	if text := resultText(t, res); !strings.Contains(text, "Authenticated via path-match") {
		t.Errorf("text = %q", text)
	}
}

func TestHandleLoginError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(models.LoginResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeNavigation, Reason: models.ReasonRedirectLoop, Message: "too many redirects"},
		})
	})

	res, err := c.handleLogin(t.Context(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if text := resultText(t, res); !strings.Contains(text, "NAVIGATION_FAILED/redirect-loop") {
		t.Errorf("text = %q", text)
	}
}

func TestHandleAttempts(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode(models.AttemptsResponse{
			Success: true,
			Total:   7,
			Attempts: []models.Attempt{{
				ID:        "a1",
				Trigger:   "watch",
				StartedAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
				Duration:  1500 * time.Millisecond,
				Outcome:   &models.LoginOutcome{Authenticated: false},
			}},
		})
	})

	res, err := c.handleAttempts(t.Context(), callRequest(map[string]any{"limit": 3}))
	if err != nil {
		t.Fatal(err)
	}
	if query != "limit=3" {
		t.Errorf("query = %q", query)
	}
	text := resultText(t, res)
	if !strings.Contains(text, "7 attempts recorded, showing 1") || !strings.Contains(text, "not authenticated") {
		t.Errorf("text = %q", text)
	}
}

func TestHandleStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.StatusResponse{
			Success:  true,
			Online:   true,
			LoginURL: "http://portal.test/index_8.html",
			Attempts: 2,
		})
	})

	res, err := c.handleStatus(t.Context(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, res)
	if !strings.HasPrefix(text, "Network: online") || !strings.Contains(text, "Attempts: 2") {
		t.Errorf("text = %q", text)
	}
}
