package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/models"
)

func testVendor(t *testing.T, name string) Vendor {
	t.Helper()
	v, err := New(name, Settings{})
	if err != nil {
		t.Fatalf("New(%q): %v", name, err)
	}
	return v
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "form", "portal-api"} {
		if _, err := New(name, Settings{}); err != nil {
			t.Errorf("New(%q) error = %v", name, err)
		}
	}
	_, err := New("juniper", Settings{})
	var le *models.LoginError
	if !errors.As(err, &le) || le.Code != models.ErrCodeConfiguration {
		t.Errorf("New(unknown) error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestBuildLoginScriptInjective(t *testing.T) {
	creds := []models.Credentials{
		{Username: "20009100001", Password: "secret", Domain: "@dx"},
		{Username: "20009100001", Password: "secret", Domain: "@lt"},
		{Username: "20009100001", Password: "secret2", Domain: "@dx"},
		{Username: "2000910000", Password: "1secret", Domain: "@dx"},
		{Username: `a"b`, Password: `</script><script>x()`, Domain: ""},
		{Username: "username_placeholder", Password: "password_placeholder", Domain: "domain_placeholder"},
		{Username: "学号", Password: "密码 with spaces\n", Domain: ""},
	}

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			v := testVendor(t, name)
			seen := make(map[string]models.Credentials)
			for _, c := range creds {
				script, err := v.BuildLoginScript(c)
				if err != nil {
					t.Fatalf("BuildLoginScript(%+v): %v", c, err)
				}
				if prev, dup := seen[script]; dup {
					t.Errorf("credentials %+v and %+v produced the same script", prev, c)
				}
				seen[script] = c
				if !strings.HasPrefix(script, "(function (p) {") {
					t.Errorf("script does not start with the parameter function: %.40q", script)
				}
			}
		})
	}
}

func TestBuildLoginScriptPlaceholderFree(t *testing.T) {
	c := models.Credentials{Username: "alice", Password: "p<a>ss&word", Domain: "@yd"}
	for _, name := range Names() {
		script, err := testVendor(t, name).BuildLoginScript(c)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(script, "placeholder") {
			t.Errorf("%s: script contains a placeholder token", name)
		}
		for _, want := range []string{`"alice"`, `"p<a>ss&word"`, `"@yd"`} {
			if !strings.Contains(script, want) {
				t.Errorf("%s: script lacks literal %s", name, want)
			}
		}
	}
}

type mapContext map[string]any

func (m mapContext) Get(_ context.Context, path string) (any, error) { return m[path], nil }
func (m mapContext) Set(_ context.Context, name string, value any) error {
	m[name] = value
	return nil
}
func (m mapContext) Run(context.Context, string) error { return nil }

func TestDetectSuccess(t *testing.T) {
	v := testVendor(t, "form")
	tests := []struct {
		name   string
		path   string
		flag   any
		auth   bool
		method models.DetectionMethod
		raw    string
	}{
		{"path match", "/srun_portal_success", nil, true, models.DetectionPathMatch, ""},
		{"path wins over flag", "/srun_portal_success", "failed", true, models.DetectionPathMatch, ""},
		{"flag ok", "/index_8.html", "ok", true, models.DetectionFlagMatch, "ok"},
		{"flag pending", "/index_8.html", PendingMessage, false, models.DetectionNone, PendingMessage},
		{"nothing", "/index_8.html", nil, false, models.DetectionNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := mapContext{}
			if tt.flag != nil {
				exec["xdwlan_login.message"] = tt.flag
			}
			d, err := v.DetectSuccess(context.Background(), models.PageLocation{Pathname: tt.path}, exec)
			if err != nil {
				t.Fatal(err)
			}
			if d.Authenticated != tt.auth || d.Method != tt.method || d.RawMessage != tt.raw {
				t.Errorf("DetectSuccess() = %+v, want {%v %q %q}", d, tt.auth, tt.method, tt.raw)
			}
		})
	}
}

// srunPortal is a minimal srun-style portal: a login form that posts to
// /auth, which redirects to the success page on good credentials.
type srunPortal struct {
	mu    sync.Mutex
	posts []string
}

func (s *srunPortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/index_8.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>portal</title></head><body>
<form id="login" method="post" action="/auth">
  <input id="username" name="username">
  <input id="password" name="password" type="password">
  <select id="domain" name="domain">
    <option value="">campus</option>
    <option value="@dx">telecom</option>
    <option value="@lt">unicom</option>
  </select>
  <button id="login-account" type="submit">Login</button>
</form>
<script>
  window.Portal = {
    login: function (opts) {
      var xhr = new XMLHttpRequest();
      xhr.open("POST", "/api/login");
      xhr.onload = function () {
        var res = JSON.parse(xhr.responseText);
        if (res.error === "ok") { opts.success(res); } else { opts.error(res); }
      };
      xhr.send("username=" + encodeURIComponent(opts.username) + "&password=" + encodeURIComponent(opts.password));
    }
  };
</script>
</body></html>`)
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		s.mu.Lock()
		s.posts = append(s.posts, r.PostForm.Encode())
		s.mu.Unlock()
		if r.PostForm.Get("password") == "secret" {
			http.Redirect(w, r, "/srun_portal_success", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/index_8.html", http.StatusFound)
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), "password=secret") {
			io.WriteString(w, `{"error":"ok"}`)
			return
		}
		io.WriteString(w, `{"error":"login_error","error_msg":"E2901: wrong password"}`)
	})
	mux.HandleFunc("/srun_portal_success", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>online</body></html>`)
	})
	return mux
}

func openPortal(t *testing.T, srv *httptest.Server) *browser.EmulatedPage {
	t.Helper()
	p, err := browser.NewEmulatedPage(browser.Options{
		SettleTimeout:  2 * time.Second,
		ScriptTimeout:  time.Second,
		DynamicScripts: true,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	ctx := context.Background()
	if err := p.Navigate(ctx, srv.URL+"/index_8.html"); err != nil {
		t.Fatal(err)
	}
	return p
}

// runPageScripts runs the portal's own inline scripts the way the engine
// would before a login script is injected.
func runPageScripts(t *testing.T, p *browser.EmulatedPage) {
	t.Helper()
	ctx := context.Background()
	doc, err := p.Document(ctx)
	if err != nil {
		t.Fatal(err)
	}
	goquery.NewDocumentFromNode(doc).Find("script").Each(func(_ int, s *goquery.Selection) {
		if err := p.Scripting().Run(ctx, s.Text()); err != nil {
			t.Fatalf("page script: %v", err)
		}
	})
}

func TestFormLogin(t *testing.T) {
	tests := []struct {
		name     string
		password string
		auth     bool
		method   models.DetectionMethod
	}{
		{"accepted", "secret", true, models.DetectionPathMatch},
		{"rejected", "wrong", false, models.DetectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portal := &srunPortal{}
			srv := httptest.NewServer(portal.handler())
			defer srv.Close()
			p := openPortal(t, srv)
			ctx := context.Background()

			v := testVendor(t, "form")
			script, err := v.BuildLoginScript(models.Credentials{Username: "alice", Password: tt.password, Domain: "@dx"})
			if err != nil {
				t.Fatal(err)
			}
			if err := p.Scripting().Run(ctx, script); err != nil {
				t.Fatalf("login script: %v", err)
			}
			if err := p.Wait(ctx); err != nil {
				t.Fatal(err)
			}

			if len(portal.posts) != 1 {
				t.Fatalf("posts = %v, want one form submission", portal.posts)
			}
			if want := "domain=%40dx&password=" + tt.password + "&username=alice"; portal.posts[0] != want {
				t.Errorf("post = %q, want %q", portal.posts[0], want)
			}

			d, err := v.DetectSuccess(ctx, p.Location(), p.Scripting())
			if err != nil {
				t.Fatal(err)
			}
			if d.Authenticated != tt.auth || d.Method != tt.method {
				t.Errorf("DetectSuccess() = %+v, want auth=%v method=%q", d, tt.auth, tt.method)
			}
		})
	}
}

func TestPortalAPILogin(t *testing.T) {
	tests := []struct {
		name     string
		password string
		auth     bool
		raw      string
	}{
		{"accepted", "secret", true, "ok"},
		{"rejected", "wrong", false, "E2901: wrong password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer((&srunPortal{}).handler())
			defer srv.Close()
			p := openPortal(t, srv)
			runPageScripts(t, p)
			ctx := context.Background()

			v := testVendor(t, "portal-api")
			if err := v.ResetFlag(ctx, p.Scripting()); err != nil {
				t.Fatal(err)
			}
			script, err := v.BuildLoginScript(models.Credentials{Username: "alice", Password: tt.password})
			if err != nil {
				t.Fatal(err)
			}
			if err := p.Scripting().Run(ctx, script); err != nil {
				t.Fatalf("login script: %v", err)
			}
			if err := p.Wait(ctx); err != nil {
				t.Fatal(err)
			}

			d, err := v.DetectSuccess(ctx, p.Location(), p.Scripting())
			if err != nil {
				t.Fatal(err)
			}
			if d.Authenticated != tt.auth || d.RawMessage != tt.raw {
				t.Errorf("DetectSuccess() = %+v, want auth=%v raw=%q", d, tt.auth, tt.raw)
			}
		})
	}
}

func TestPortalAPIMissingClient(t *testing.T) {
	srv := httptest.NewServer((&srunPortal{}).handler())
	defer srv.Close()
	p := openPortal(t, srv)

	script, err := testVendor(t, "portal-api").BuildLoginScript(models.Credentials{Username: "a", Password: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Scripting().Run(context.Background(), script); err == nil {
		t.Fatal("expected an error without a Portal object")
	}
}
