package login

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/engine"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/portal"
	"github.com/use-agent/wlanlogin/snapshot"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// portalServer serves fixed pages and counts hits per path.
type portalServer struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

func newPortalServer(t *testing.T, pages map[string]string) (*portalServer, *httptest.Server) {
	t.Helper()
	ps := &portalServer{hits: map[string]int{}, pages: pages}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.hits[r.URL.Path]++
		ps.mu.Unlock()
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "/srun_portal_success", http.StatusFound)
			return
		case "/auth":
			r.ParseForm()
			if r.PostForm.Get("password") == "secret" {
				http.Redirect(w, r, "/srun_portal_success", http.StatusFound)
				return
			}
			http.Redirect(w, r, "/form?error=1", http.StatusFound)
			return
		}
		body, ok := ps.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/form" && r.URL.Query().Get("error") != "" {
			body = failedFormPage
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return ps, srv
}

func (ps *portalServer) count(path string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.hits[path]
}

const formPage = `<html><head><title>Portal</title></head><body>
<form method="post" action="/auth">
  <input id="username" name="username">
  <input id="password" name="password" type="password">
  <input id="domain" name="domain" type="hidden">
  <button id="login-account" type="submit">Login</button>
</form></body></html>`

const failedFormPage = `<html><head><title>Portal</title></head><body>
<div id="login-error">E2901: (Third party 1)bind_user2: ldap_bind error</div>
<form method="post" action="/auth">
  <input id="username" name="username">
  <input id="password" name="password" type="password">
  <input id="domain" name="domain" type="hidden">
  <button id="login-account" type="submit">Login</button>
</form></body></html>`

var testPages = map[string]string{
	"/index_8.html": `<html><head><meta http-equiv="refresh" content="0;url=/step2"></head><body><script>window.xdwlan_login = {message: "never"};</script></body></html>`,
	"/step2":        `<html><head><script>window.xdwlan_login = {message: "ok"};</script></head><body>step two</body></html>`,
	"/noflag":       `<html><head><meta http-equiv="refresh" content="0;url=/step3"></head></html>`,
	"/step3":        `<html><head><script>var portalReady = true;</script></head><body>nothing to click</body></html>`,
	"/form":         formPage,
	"/srun_portal_success": `<html><head><title>Online</title></head><body><h1>Connected</h1>
<p>Your device is now online and may access the internet.</p></body></html>`,
}

func newTestAutomator(t *testing.T, creds models.Credentials) *Automator {
	t.Helper()
	page, err := browser.NewEmulatedPage(browser.Options{
		SettleTimeout:  2 * time.Second,
		ScriptTimeout:  time.Second,
		DynamicScripts: true,
		Logger:         discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { page.Close() })

	vendor, err := portal.New(config.VendorForm, portal.Settings{})
	if err != nil {
		t.Fatal(err)
	}
	taker, err := snapshot.NewTaker("#login-error", discard)
	if err != nil {
		t.Fatal(err)
	}
	nav := engine.NewNavigator(page, engine.Options{Logger: discard})
	return New(nav, vendor, creds, WithSnapshots(taker), WithLogger(discard))
}

func TestRunAutoDetectedByPath(t *testing.T) {
	ps, srv := newPortalServer(t, testPages)
	a := newTestAutomator(t, models.Credentials{Username: "u", Password: "secret"})

	out, err := a.Run(context.Background(), srv.URL+"/redirect")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Authenticated || out.DetectionMethod != models.DetectionPathMatch {
		t.Errorf("outcome = %+v, want path-match", out)
	}
	if out.Injected != 0 || out.State != models.StateAutoDetectedSuccess {
		t.Errorf("injected = %d state = %s, want 0 and auto-detected", out.Injected, out.State)
	}
	if ps.count("/auth") != 0 {
		t.Error("credentials were posted although the client was online")
	}
	if out.RunID == "" || out.Summary == "" {
		t.Errorf("RunID = %q Summary = %q, want both set", out.RunID, out.Summary)
	}
}

func TestRunAutoDetectedByFlag(t *testing.T) {
	ps, srv := newPortalServer(t, testPages)
	a := newTestAutomator(t, models.Credentials{Username: "u", Password: "p"})

	out, err := a.Run(context.Background(), srv.URL+"/index_8.html")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Authenticated || out.DetectionMethod != models.DetectionFlagMatch || out.RawMessage != "ok" {
		t.Errorf("outcome = %+v, want flag-match ok", out)
	}
	if out.Injected != 0 {
		t.Errorf("injected = %d, want 0", out.Injected)
	}
	if n := ps.count("/step2"); n != 1 {
		t.Errorf("/step2 loaded %d times, want 1", n)
	}
	if len(out.Settle.Redirects) != 1 {
		t.Errorf("redirects = %v, want one hop", out.Settle.Redirects)
	}
}

func TestRunFlagAbsentInjectsOnce(t *testing.T) {
	_, srv := newPortalServer(t, testPages)
	a := newTestAutomator(t, models.Credentials{Username: "u", Password: "p"})

	out, err := a.Run(context.Background(), srv.URL+"/noflag")
	if err != nil {
		t.Fatal(err)
	}
	if out.Authenticated {
		t.Errorf("outcome = %+v, want not authenticated", out)
	}
	if out.Injected != 1 || out.State != models.StateNotAuthenticated {
		t.Errorf("injected = %d state = %s, want 1 and not-authenticated", out.Injected, out.State)
	}
	if out.RawMessage != portal.PendingMessage {
		t.Errorf("RawMessage = %q, want the pending flag", out.RawMessage)
	}
}

func TestRunFormLogin(t *testing.T) {
	tests := []struct {
		name     string
		password string
		auth     bool
		state    models.LoginState
		portal   string
	}{
		{"accepted", "secret", true, models.StateAuthenticated, ""},
		{"rejected", "wrong", false, models.StateNotAuthenticated, "E2901: (Third party 1)bind_user2: ldap_bind error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, srv := newPortalServer(t, testPages)
			a := newTestAutomator(t, models.Credentials{Username: "u", Password: tt.password, Domain: "@dx"})

			out, err := a.Run(context.Background(), srv.URL+"/form")
			if err != nil {
				t.Fatal(err)
			}
			if out.Authenticated != tt.auth || out.State != tt.state {
				t.Errorf("outcome = %+v, want auth=%v state=%s", out, tt.auth, tt.state)
			}
			if out.PortalMessage != tt.portal {
				t.Errorf("PortalMessage = %q, want %q", out.PortalMessage, tt.portal)
			}
			if ps.count("/auth") != 1 {
				t.Errorf("/auth posted %d times, want 1", ps.count("/auth"))
			}
			if tt.auth && !out.PageChanged {
				t.Error("PageChanged = false after landing on the success page")
			}
		})
	}
}

func TestRunUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := newTestAutomator(t, models.Credentials{})
	_, err := a.Run(context.Background(), url+"/index_8.html")
	var le *models.LoginError
	if !errors.As(err, &le) || le.Code != models.ErrCodeNavigation || le.Reason != models.ReasonUnreachable {
		t.Fatalf("Run() error = %v, want NAVIGATION_FAILED(unreachable)", err)
	}
	if _, err := a.Run(context.Background(), url); err == nil {
		t.Error("second Run on the same automator should fail")
	}
}
