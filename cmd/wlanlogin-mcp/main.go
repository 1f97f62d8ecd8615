// Command wlanlogin-mcp exposes the wlanlogin status API as MCP tools over
// stdio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/wlanlogin/models"
)

// client talks to a running "wlanlogin watch" API.
type client struct {
	http   *http.Client
	apiURL string
	apiKey string
}

func main() {
	apiURL := os.Getenv("WLANLOGIN_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8787"
	}
	c := &client{
		// A login run settles redirects and scripts; give it room.
		http:   &http.Client{Timeout: 120 * time.Second},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: os.Getenv("WLANLOGIN_API_KEY"),
	}

	if err := server.ServeStdio(newServer(c)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *client) *server.MCPServer {
	s := server.NewMCPServer(
		"wlanlogin",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	loginTool := mcp.NewTool("portal_login",
		mcp.WithDescription("Log in to the campus captive portal. Unless force is set, nothing is done when the network is already online."),
		mcp.WithString("login_url",
			mcp.Description("Portal login URL; defaults to the configured or discovered one"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Attempt a login even when the connectivity probe reports online"),
		),
	)
	s.AddTool(loginTool, c.handleLogin)

	statusTool := mcp.NewTool("portal_status",
		mcp.WithDescription("Report connectivity and the latest login attempt."),
	)
	s.AddTool(statusTool, c.handleStatus)

	attemptsTool := mcp.NewTool("portal_attempts",
		mcp.WithDescription("List recent login attempts, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of attempts to return (default: 10, max: 200)"),
		),
	)
	s.AddTool(attemptsTool, c.handleAttempts)

	return s
}

// do sends a request to the API and decodes the JSON response into out.
func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (c *client) handleLogin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload := models.LoginRequest{
		LoginURL: request.GetString("login_url", ""),
		Force:    request.GetBool("force", false),
	}

	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/login", payload, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if resp.Error != nil {
		return mcp.NewToolResultError(formatError(resp.Error)), nil
	}
	if resp.Skipped {
		return mcp.NewToolResultText("Network is already online; no login attempted."), nil
	}
	if resp.Outcome == nil {
		return mcp.NewToolResultError("login returned no outcome"), nil
	}
	return mcp.NewToolResultText(formatOutcome(resp.Outcome)), nil
}

func (c *client) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	state := "offline"
	if resp.Online {
		state = "online"
	}
	fmt.Fprintf(&sb, "Network: %s", state)
	if !resp.LastChecked.IsZero() {
		fmt.Fprintf(&sb, " (checked %s)", resp.LastChecked.Format(time.RFC3339))
	}
	sb.WriteString("\n")
	if resp.LoginURL != "" {
		fmt.Fprintf(&sb, "Login URL: %s\n", resp.LoginURL)
	}
	fmt.Fprintf(&sb, "Attempts: %d (consecutive failures: %d)\n", resp.Attempts, resp.Failures)
	if resp.LastError != nil {
		fmt.Fprintf(&sb, "Last error: %s\n", formatError(resp.LastError))
	}
	if resp.LastOutcome != nil {
		sb.WriteString("\nLast outcome:\n")
		sb.WriteString(formatOutcome(resp.LastOutcome))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *client) handleAttempts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	var resp models.AttemptsResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/attempts?limit=%d", limit), nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if resp.Error != nil {
		return mcp.NewToolResultError(formatError(resp.Error)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d attempts recorded, showing %d\n\n", resp.Total, len(resp.Attempts))
	for _, a := range resp.Attempts {
		result := "error"
		switch {
		case a.Error != nil:
			result = formatError(a.Error)
		case a.Outcome != nil && a.Outcome.Authenticated:
			result = "authenticated (" + string(a.Outcome.DetectionMethod) + ")"
		case a.Outcome != nil:
			result = "not authenticated"
		}
		fmt.Fprintf(&sb, "- %s [%s] %s in %s: %s\n",
			a.StartedAt.Format(time.RFC3339), a.Trigger, a.ID, a.Duration.Round(time.Millisecond), result)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func formatError(e *models.ErrorDetail) string {
	if e.Reason != "" {
		return fmt.Sprintf("[%s/%s] %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func formatOutcome(o *models.LoginOutcome) string {
	var sb strings.Builder
	if o.Authenticated {
		fmt.Fprintf(&sb, "Authenticated via %s\n", o.DetectionMethod)
	} else {
		sb.WriteString("Not authenticated\n")
	}
	fmt.Fprintf(&sb, "State: %s\nFinal URL: %s\nInjected: %d\n", o.State, o.FinalURL, o.Injected)
	if len(o.Settle.Redirects) > 0 {
		fmt.Fprintf(&sb, "Redirects: %s\n", strings.Join(o.Settle.Redirects, " -> "))
	}
	if o.PortalMessage != "" {
		fmt.Fprintf(&sb, "Portal says: %s\n", o.PortalMessage)
	}
	if o.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", o.Summary)
	}
	return sb.String()
}
