package login

import (
	"context"
	"errors"
	"log/slog"

	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/engine"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/portal"
	"github.com/use-agent/wlanlogin/snapshot"
)

// Runner performs login attempts from the application config. Every
// attempt gets a fresh page that is closed when the attempt ends, so no
// state leaks between attempts.
type Runner struct {
	cfg    *config.Config
	vendor portal.Vendor
	taker  *snapshot.Taker
	log    *slog.Logger

	// open creates the page of one attempt.
	open func(ctx context.Context, opts browser.Options) (browser.Page, error)
}

// NewRunner resolves the configured vendor and snapshot settings. cfg
// must already be validated.
func NewRunner(cfg *config.Config, log *slog.Logger) (*Runner, error) {
	if log == nil {
		log = slog.Default()
	}
	vendor, err := portal.New(cfg.Portal.Vendor, portal.SettingsFrom(cfg))
	if err != nil {
		return nil, err
	}
	taker, err := snapshot.NewTaker(cfg.Portal.ErrorSelector, log)
	if err != nil {
		return nil, err
	}
	backend := cfg.Browser.Backend
	return &Runner{
		cfg:    cfg,
		vendor: vendor,
		taker:  taker,
		log:    log,
		open: func(ctx context.Context, opts browser.Options) (browser.Page, error) {
			return browser.Open(ctx, backend, opts)
		},
	}, nil
}

// Login runs one attempt against loginURL, or the configured login URL
// when loginURL is empty.
func (r *Runner) Login(ctx context.Context, loginURL string) (*models.LoginOutcome, error) {
	if loginURL == "" {
		loginURL = r.cfg.Portal.LoginURL
	}
	if loginURL == "" {
		return nil, models.NewLoginError(models.ErrCodeConfiguration, "no login URL configured", config.ErrMissingLoginURL)
	}

	engOpts := engine.OptionsFrom(r.cfg)
	engOpts.Logger = r.log

	pageOpts := browser.OptionsFrom(r.cfg, engOpts.SkipList.Match)
	pageOpts.Logger = r.log

	page, err := r.open(ctx, pageOpts)
	if err != nil {
		var le *models.LoginError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, models.NewLoginError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.log.Debug("page close failed", "error", err)
		}
	}()

	nav := engine.NewNavigator(page, engOpts)
	return New(nav, r.vendor, r.cfg.Credentials(),
		WithSnapshots(r.taker),
		WithLogger(r.log),
	).Run(ctx, loginURL)
}
