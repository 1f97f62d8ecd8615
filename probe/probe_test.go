package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
)

const portalHost = "w.xidian.edu.cn"

func newTestProber(t *testing.T, probeURL, discoveryURL string) *Prober {
	t.Helper()
	p := New(config.ProbeConfig{
		ProbeURL:      probeURL,
		DiscoveryURL:  discoveryURL,
		DiscoveryHost: portalHost,
		Attempts:      3,
		Timeout:       2 * time.Second,
		MemoryTTL:     time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.interval = time.Millisecond
	t.Cleanup(p.Close)
	return p
}

func TestOnline(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    bool
	}{
		{"no content", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }, true},
		{"captive page", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "<html>login</html>") }, false},
		{"captive redirect", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "http://"+portalHost+"/", http.StatusFound)
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			got, err := newTestProber(t, srv.URL+"/generate_204", "").Online(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Online() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOnlineUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	got, err := newTestProber(t, addr+"/generate_204", "").Online(context.Background())
	if err != nil || got {
		t.Errorf("Online() = %v, %v; want false, nil", got, err)
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"form action", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<html><body><form action="https://w.xidian.edu.cn/srun_portal_pc?ac_id=8&theme=pro"></form></body></html>`)
		}, "https://w.xidian.edu.cn/srun_portal_pc?ac_id=8&theme=pro"},
		{"meta refresh", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<html><head><meta http-equiv="refresh" content="0; url='http://w.xidian.edu.cn/index_8.html'"></head></html>`)
		}, "http://w.xidian.edu.cn/index_8.html"},
		{"location header", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "http://w.xidian.edu.cn/index_8.html?wlanuserip=10.0.0.2", http.StatusFound)
		}, "http://w.xidian.edu.cn/index_8.html?wlanuserip=10.0.0.2"},
		{"script text", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<script>top.self.location.href='https://w.xidian.edu.cn/index_8.html?ac_id=8'</script>`)
		}, "https://w.xidian.edu.cn/index_8.html?ac_id=8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			got, err := newTestProber(t, "", srv.URL).Discover(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Discover() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiscoverRetriesAndRemembers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The first answer is the real site: the gateway did not intercept.
		if hits.Add(1) == 1 {
			io.WriteString(w, `<html><body>baidu</body></html>`)
			return
		}
		io.WriteString(w, `<form action="https://w.xidian.edu.cn/srun_portal_pc"></form>`)
	}))
	defer srv.Close()

	p := newTestProber(t, "", srv.URL)
	for i := 0; i < 2; i++ {
		got, err := p.Discover(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != "https://w.xidian.edu.cn/srun_portal_pc" {
			t.Errorf("Discover() = %q", got)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("discovery URL fetched %d times, want 2", n)
	}

	p.Forget()
	if _, err := p.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("after Forget fetched %d times, want 3", n)
	}
}

func TestDiscoverFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `<a href="https://example.com/">elsewhere</a>`)
	}))
	defer srv.Close()

	_, err := newTestProber(t, "", srv.URL).Discover(context.Background())
	var le *models.LoginError
	if !errors.As(err, &le) || le.Code != models.ErrCodeDiscovery {
		t.Fatalf("Discover() error = %v, want DISCOVERY_FAILED", err)
	}
	if hits.Load() != 3 {
		t.Errorf("attempts = %d, want 3", hits.Load())
	}
}

func TestFindLoginURLIgnoresOtherHosts(t *testing.T) {
	p := newTestProber(t, "", "")
	base, _ := url.Parse("http://www.baidu.com/")
	page := `<a href="https://w.xidian.edu.cn.evil.example/">x</a>
<form action="/relative"></form>
<a href="https://w.xidian.edu.cn/index_8.html">login</a>`
	if got := p.FindLoginURL(page, base); got != "https://w.xidian.edu.cn/index_8.html" {
		t.Errorf("FindLoginURL() = %q", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	defer m.Stop()
	m.Set("h", "http://h/login")
	if got := m.Get("h"); got != "http://h/login" {
		t.Fatalf("Get() = %q", got)
	}
	time.Sleep(40 * time.Millisecond)
	if got := m.Get("h"); got != "" {
		t.Errorf("Get() after TTL = %q, want empty", got)
	}
	m.Stop()
}
