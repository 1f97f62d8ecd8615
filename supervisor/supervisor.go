// Package supervisor keeps the machine online: it probes connectivity on
// an interval and runs login attempts while the network is captive.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/history"
	"github.com/use-agent/wlanlogin/metrics"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/webhook"
	"golang.org/x/time/rate"
)

// Runner performs one login attempt.
type Runner interface {
	Login(ctx context.Context, loginURL string) (*models.LoginOutcome, error)
}

// Prober checks connectivity and finds the portal.
type Prober interface {
	Online(ctx context.Context) (bool, error)
	Discover(ctx context.Context) (string, error)
	Forget()
}

// Triggers recorded with each attempt.
const (
	TriggerCLI   = "cli"
	TriggerWatch = "watch"
	TriggerAPI   = "api"
)

// Deps are the collaborators of a Supervisor. Metrics and Notifier may be
// nil.
type Deps struct {
	Runner   Runner
	Prober   Prober
	History  *history.History
	Metrics  *metrics.Metrics
	Notifier *webhook.Notifier
	Logger   *slog.Logger
}

// Supervisor serialises login attempts and tracks connectivity.
type Supervisor struct {
	runner   Runner
	prober   Prober
	hist     *history.History
	metrics  *metrics.Metrics
	notifier *webhook.Notifier
	log      *slog.Logger

	cfg      config.WatchConfig
	loginURL string
	discover bool
	limiter  *rate.Limiter

	// attemptMu allows one login attempt at a time; a run owns one page.
	attemptMu sync.Mutex

	mu          sync.RWMutex
	online      bool
	lastChecked time.Time
	lastURL     string
	lastErr     *models.ErrorDetail

	// sleep waits for d or until ctx ends.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg *config.Config, deps Deps) *Supervisor {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	hist := deps.History
	if hist == nil {
		hist = history.New(cfg.History.MaxEntries)
	}
	perMinute := cfg.Watch.AttemptsPerMinute
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	burst := cfg.Watch.AttemptBurst
	if burst <= 0 {
		burst = 1
	}
	return &Supervisor{
		runner:   deps.Runner,
		prober:   deps.Prober,
		hist:     hist,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		log:      log.With("component", "supervisor"),
		cfg:      cfg.Watch,
		loginURL: cfg.Portal.LoginURL,
		discover: cfg.Probe.Discover,
		limiter:  rate.NewLimiter(limit, burst),
		sleep:    sleepCtx,
	}
}

// History returns the attempt history.
func (s *Supervisor) History() *history.History { return s.hist }

// Probe checks connectivity and records the result.
func (s *Supervisor) Probe(ctx context.Context) (bool, error) {
	online, err := s.prober.Online(ctx)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.online = online
	s.lastChecked = time.Now()
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ObserveProbe(online)
	}
	return online, nil
}

// Watch runs until ctx ends: recheck every Check interval while online,
// and while offline attempt a login, give the network NetworkSettle to
// come up, and retry every Retry interval.
func (s *Supervisor) Watch(ctx context.Context) error {
	s.log.Info("watch started",
		"check", s.cfg.Check,
		"retry", s.cfg.Retry,
		"attempts_per_minute", s.cfg.AttemptsPerMinute,
	)
	online, err := s.Probe(ctx)
	if err != nil {
		return ignoreDone(ctx, err)
	}
	if online {
		s.log.Info("already online")
	} else if err := s.recover(ctx); err != nil {
		return ignoreDone(ctx, err)
	}

	for {
		if err := s.sleep(ctx, s.cfg.Check); err != nil {
			return ignoreDone(ctx, err)
		}
		online, err := s.Probe(ctx)
		if err != nil {
			return ignoreDone(ctx, err)
		}
		if !online {
			if err := s.recover(ctx); err != nil {
				return ignoreDone(ctx, err)
			}
		}
	}
}

// recover loops login attempts until the probe reports online.
func (s *Supervisor) recover(ctx context.Context) error {
	s.log.Warn("network is offline, logging in")
	s.publish(webhook.NewEvent(webhook.EventNetworkOffline, "", nil))

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		// Attempt errors are recorded; the probe decides whether to retry.
		s.Attempt(ctx, TriggerWatch, models.LoginRequest{Force: true})

		if err := s.sleep(ctx, s.cfg.NetworkSettle); err != nil {
			return err
		}
		online, err := s.Probe(ctx)
		if err != nil {
			return err
		}
		if online {
			s.log.Info("network is online")
			s.publish(webhook.NewEvent(webhook.EventNetworkRestored, "", nil))
			return nil
		}
		if err := s.sleep(ctx, s.cfg.Retry); err != nil {
			return err
		}
	}
}

// Trigger runs an on-demand attempt. Unless req.Force is set, nothing is
// done when the probe finds the network online and skipped is true.
func (s *Supervisor) Trigger(ctx context.Context, trigger string, req models.LoginRequest) (out *models.LoginOutcome, skipped bool, err error) {
	if !req.Force {
		online, err := s.Probe(ctx)
		if err != nil {
			return nil, false, err
		}
		if online {
			return nil, true, nil
		}
	}
	out, err = s.Attempt(ctx, trigger, req)
	return out, false, err
}

// Attempt performs and records one login attempt.
func (s *Supervisor) Attempt(ctx context.Context, trigger string, req models.LoginRequest) (*models.LoginOutcome, error) {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	started := time.Now()
	attempt := models.Attempt{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: started,
	}

	loginURL, discovered, err := s.resolveURL(ctx, req)
	var out *models.LoginOutcome
	if err == nil {
		out, err = s.runner.Login(ctx, loginURL)
	}
	attempt.Duration = time.Since(started)
	attempt.Outcome = out
	if out != nil {
		attempt.ID = out.RunID
	}

	var detail *models.ErrorDetail
	if err != nil {
		detail = toDetail(err)
		attempt.Error = detail
		if discovered {
			var le *models.LoginError
			if errors.As(err, &le) && le.Code == models.ErrCodeNavigation {
				s.prober.Forget()
			}
		}
	}
	s.hist.Record(attempt)
	if s.metrics != nil {
		s.metrics.ObserveAttempt(trigger, out, attempt.Duration)
	}

	s.mu.Lock()
	s.lastURL = loginURL
	s.lastErr = detail
	s.mu.Unlock()

	switch {
	case err != nil:
		s.log.Error("login attempt failed",
			"attempt", attempt.ID,
			"trigger", trigger,
			"code", detail.Code,
			"error", err,
		)
		s.publish(webhook.NewEvent(webhook.EventLoginFailed, attempt.ID, detail))
	case out.Authenticated:
		s.publish(webhook.NewEvent(webhook.EventLoginSucceeded, out.RunID, out))
	default:
		s.log.Warn("login not confirmed",
			"attempt", attempt.ID,
			"trigger", trigger,
			"message", out.RawMessage,
			"portal_message", out.PortalMessage,
		)
		s.publish(webhook.NewEvent(webhook.EventLoginFailed, out.RunID, out))
	}
	return out, err
}

// resolveURL picks the request URL, the configured URL, or a discovered
// one, in that order.
func (s *Supervisor) resolveURL(ctx context.Context, req models.LoginRequest) (u string, discovered bool, err error) {
	if req.LoginURL != "" {
		return req.LoginURL, false, nil
	}
	if s.loginURL != "" {
		return s.loginURL, false, nil
	}
	if !s.discover {
		return "", false, models.NewLoginError(models.ErrCodeConfiguration, "no login URL configured", config.ErrMissingLoginURL)
	}
	u, err = s.prober.Discover(ctx)
	return u, err == nil, err
}

// Status summarises connectivity and the latest attempt.
func (s *Supervisor) Status() models.StatusResponse {
	s.mu.RLock()
	resp := models.StatusResponse{
		Success:     true,
		Online:      s.online,
		LastChecked: s.lastChecked,
		LoginURL:    s.lastURL,
		LastError:   s.lastErr,
	}
	s.mu.RUnlock()

	resp.Attempts = s.hist.Total()
	resp.Failures = s.hist.ConsecutiveFailures()
	if last, ok := s.hist.Last(); ok {
		resp.LastOutcome = last.Outcome
	}
	if resp.LoginURL == "" {
		resp.LoginURL = s.loginURL
	}
	return resp
}

func (s *Supervisor) publish(ev *webhook.Event) {
	if s.notifier.Enabled() {
		s.notifier.Publish(ev)
	}
}

// toDetail converts any error into an API-facing ErrorDetail.
func toDetail(err error) *models.ErrorDetail {
	var le *models.LoginError
	if errors.As(err, &le) {
		return le.ToDetail()
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}

func ignoreDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
