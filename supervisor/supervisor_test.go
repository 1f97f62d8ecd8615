package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
)

type fakeRunner struct {
	mu       sync.Mutex
	urls     []string
	outcomes []*models.LoginOutcome
	errs     []error
}

func (r *fakeRunner) Login(_ context.Context, loginURL string) (*models.LoginOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := len(r.urls)
	r.urls = append(r.urls, loginURL)
	var out *models.LoginOutcome
	var err error
	if i < len(r.outcomes) {
		out = r.outcomes[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	if out == nil && err == nil {
		out = &models.LoginOutcome{RunID: "run", Authenticated: true}
	}
	return out, err
}

type fakeProber struct {
	mu         sync.Mutex
	results    []bool // consumed in order; the last value repeats
	probes     int
	discovered string
	discovers  int
	forgotten  int
}

func (p *fakeProber) Online(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.probes, len(p.results)-1)
	p.probes++
	return p.results[i], nil
}

func (p *fakeProber) Discover(context.Context) (string, error) {
	p.discovers++
	if p.discovered == "" {
		return "", models.NewLoginError(models.ErrCodeDiscovery, "nothing", nil)
	}
	return p.discovered, nil
}

func (p *fakeProber) Forget() { p.forgotten++ }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Portal.LoginURL = "http://w.example/index_8.html"
	cfg.Watch.AttemptsPerMinute = 0
	return cfg
}

func newTestSupervisor(cfg *config.Config, r Runner, p Prober) *Supervisor {
	s := New(cfg, Deps{
		Runner: r,
		Prober: p,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return s
}

func TestWatchRecoversThenChecks(t *testing.T) {
	runner := &fakeRunner{
		outcomes: []*models.LoginOutcome{{RunID: "a", State: models.StateNotAuthenticated}, {RunID: "b", Authenticated: true}},
	}
	prober := &fakeProber{results: []bool{false, false, true}}
	s := newTestSupervisor(testConfig(), runner, prober)

	ctx, cancel := context.WithCancel(context.Background())
	checks := 0
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if d == s.cfg.Check {
			checks++
			if checks == 3 {
				cancel()
			}
		}
		return ctx.Err()
	}

	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch() = %v, want nil on cancel", err)
	}
	if len(runner.urls) != 2 {
		t.Fatalf("attempts = %d, want 2", len(runner.urls))
	}
	if runner.urls[0] != "http://w.example/index_8.html" {
		t.Errorf("login URL = %q", runner.urls[0])
	}
	st := s.Status()
	if !st.Online || st.Attempts != 2 || st.Failures != 0 {
		t.Errorf("Status() = %+v", st)
	}
	if st.LastOutcome == nil || st.LastOutcome.RunID != "b" {
		t.Errorf("LastOutcome = %+v", st.LastOutcome)
	}
}

func TestWatchAlreadyOnline(t *testing.T) {
	runner := &fakeRunner{}
	prober := &fakeProber{results: []bool{true}}
	s := newTestSupervisor(testConfig(), runner, prober)

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	if err := s.Watch(ctx); err != nil {
		t.Fatal(err)
	}
	if len(runner.urls) != 0 {
		t.Errorf("attempts = %d, want 0 while online", len(runner.urls))
	}
}

func TestTriggerSkipsWhenOnline(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestSupervisor(testConfig(), runner, &fakeProber{results: []bool{true}})

	out, skipped, err := s.Trigger(context.Background(), TriggerAPI, models.LoginRequest{})
	if err != nil || !skipped || out != nil {
		t.Fatalf("Trigger() = %v, %v, %v; want skipped", out, skipped, err)
	}
	out, skipped, err = s.Trigger(context.Background(), TriggerAPI, models.LoginRequest{Force: true, LoginURL: "http://other/"})
	if err != nil || skipped || out == nil {
		t.Fatalf("forced Trigger() = %v, %v, %v", out, skipped, err)
	}
	if runner.urls[0] != "http://other/" {
		t.Errorf("login URL = %q, want the request override", runner.urls[0])
	}
}

func TestAttemptRecordsErrors(t *testing.T) {
	navErr := models.NewNavigationFailure(models.ReasonUnreachable, "down", errors.New("dial tcp"))
	runner := &fakeRunner{errs: []error{navErr}}
	prober := &fakeProber{results: []bool{false}, discovered: "http://w.example/found"}
	cfg := testConfig()
	cfg.Portal.LoginURL = ""
	cfg.Probe.Discover = true
	s := newTestSupervisor(cfg, runner, prober)

	_, err := s.Attempt(context.Background(), TriggerCLI, models.LoginRequest{})
	if !errors.Is(err, navErr) {
		t.Fatalf("Attempt() error = %v", err)
	}
	if runner.urls[0] != "http://w.example/found" {
		t.Errorf("login URL = %q, want the discovered one", runner.urls[0])
	}
	if prober.forgotten != 1 {
		t.Errorf("Forget() calls = %d, want 1 after a navigation failure", prober.forgotten)
	}
	st := s.Status()
	if st.LastError == nil || st.LastError.Code != models.ErrCodeNavigation || st.Failures != 1 {
		t.Errorf("Status() = %+v", st)
	}
	list := s.History().List(0)
	if len(list) != 1 || list[0].Error == nil || list[0].Trigger != TriggerCLI {
		t.Errorf("history = %+v", list)
	}
}

func TestAttemptWithoutURL(t *testing.T) {
	cfg := testConfig()
	cfg.Portal.LoginURL = ""
	runner := &fakeRunner{}
	s := newTestSupervisor(cfg, runner, &fakeProber{results: []bool{false}})

	_, err := s.Attempt(context.Background(), TriggerCLI, models.LoginRequest{})
	if !errors.Is(err, config.ErrMissingLoginURL) {
		t.Errorf("Attempt() error = %v, want ErrMissingLoginURL", err)
	}
	if len(runner.urls) != 0 {
		t.Error("runner called without a URL")
	}
}
