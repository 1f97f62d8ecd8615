// Package login drives one captive-portal login attempt: settle the
// landing page, check whether the client is already authenticated, and if
// not, inject the vendor's login script and check again.
package login

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/wlanlogin/engine"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/portal"
	"github.com/use-agent/wlanlogin/snapshot"
	"golang.org/x/net/html"
)

// Automator is the login state machine. It is single use: one Automator
// drives one page through one run.
type Automator struct {
	nav    *engine.Navigator
	vendor portal.Vendor
	creds  models.Credentials
	taker  *snapshot.Taker
	log    *slog.Logger

	state models.LoginState
	used  bool
}

// Option customises an Automator.
type Option func(*Automator)

// WithSnapshots attaches a snapshot taker used to summarise the final page.
func WithSnapshots(t *snapshot.Taker) Option {
	return func(a *Automator) { a.taker = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Automator) { a.log = l }
}

func New(nav *engine.Navigator, vendor portal.Vendor, creds models.Credentials, opts ...Option) *Automator {
	a := &Automator{
		nav:    nav,
		vendor: vendor,
		creds:  creds,
		log:    slog.Default(),
		state:  models.StateUnchecked,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// State returns the current state.
func (a *Automator) State() models.LoginState { return a.state }

// Run performs the login against loginURL. A portal that does not confirm
// the login yields an outcome with Authenticated unset, not an error.
func (a *Automator) Run(ctx context.Context, loginURL string) (*models.LoginOutcome, error) {
	if a.used {
		return nil, errors.New("login: automator already used")
	}
	a.used = true
	out := &models.LoginOutcome{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	log := a.log.With("run_id", out.RunID, "vendor", a.vendor.Name())
	page := a.nav.Page()
	exec := page.Scripting()

	defer func() {
		out.Duration = time.Since(out.StartedAt)
		out.State = a.state
	}()

	// Unchecked: settle the landing page.
	log.Info("opening login page", "url", loginURL)
	res, err := a.nav.Settle(ctx, loginURL)
	if err != nil {
		return nil, err
	}
	out.Settle = res.Stats()
	out.FinalURL = res.Location.Href

	det, err := a.vendor.DetectSuccess(ctx, res.Location, exec)
	if err != nil {
		return nil, categorize(err, "success check failed")
	}
	if det.Authenticated {
		a.state = models.StateAutoDetectedSuccess
		a.finish(out, det, res.Location, res.Document, 0)
		log.Info("already authenticated", "method", det.Method, "url", out.FinalURL)
		return out, nil
	}

	// NeedsManualLogin: inject the vendor login script.
	a.state = models.StateNeedsManualLogin
	var before uint64
	if res.Document != nil {
		before = snapshot.Structure(res.Document)
	}

	script, err := a.vendor.BuildLoginScript(a.creds)
	if err != nil {
		return nil, models.NewLoginError(models.ErrCodeInternal, "build login script", err)
	}
	if err := a.vendor.ResetFlag(ctx, exec); err != nil {
		return nil, categorize(err, "reset success flag")
	}
	log.Info("submitting credentials", "url", out.FinalURL)
	out.Injected++
	if err := exec.Run(ctx, script); err != nil {
		if ctx.Err() != nil {
			return nil, categorize(ctx.Err(), "login script interrupted")
		}
		// The portal may already have been driven far enough before the
		// script failed; the re-check decides.
		log.Warn("login script failed", "error", err)
	}
	if err := page.Wait(ctx); err != nil {
		return nil, categorize(err, "portal did not settle after login")
	}
	a.state = models.StateManualLoginSubmitted

	// ManualLoginSubmitted: check again.
	loc := page.Location()
	out.FinalURL = loc.Href
	doc, err := page.Document(ctx)
	if err != nil {
		return nil, categorize(err, "failed to read document")
	}
	det, err = a.vendor.DetectSuccess(ctx, loc, exec)
	if err != nil {
		return nil, categorize(err, "success check failed")
	}
	if det.Authenticated {
		a.state = models.StateAuthenticated
	} else {
		a.state = models.StateNotAuthenticated
	}
	a.finish(out, det, loc, doc, before)

	log.Info("login finished",
		"authenticated", out.Authenticated,
		"method", out.DetectionMethod,
		"message", out.RawMessage,
		"portal_message", out.PortalMessage,
		"page_changed", out.PageChanged,
		"url", out.FinalURL,
	)
	return out, nil
}

// finish copies the detection into out and summarises the final page.
// before is the structure fingerprint of the page the login script ran
// on, zero when nothing was injected.
func (a *Automator) finish(out *models.LoginOutcome, det portal.Detection, loc models.PageLocation, doc *html.Node, before uint64) {
	out.Authenticated = det.Authenticated
	out.DetectionMethod = det.Method
	out.RawMessage = det.RawMessage
	if doc == nil {
		return
	}
	if before != 0 {
		out.PageChanged = snapshot.Changed(before, snapshot.Structure(doc))
	}
	if a.taker == nil {
		return
	}
	snap := a.taker.Take(doc, loc)
	out.Summary = snap.Summary
	if !det.Authenticated {
		out.PortalMessage = snap.PortalMessage
	}
}

// categorize maps context errors to LOGIN_TIMEOUT and leaves typed errors
// alone.
func categorize(err error, msg string) error {
	var le *models.LoginError
	switch {
	case errors.As(err, &le):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewLoginError(models.ErrCodeTimeout, msg, err)
	default:
		return models.NewLoginError(models.ErrCodeInternal, msg, err)
	}
}
