// Package probe tells whether the machine is online and, when it is not,
// where the captive portal wants it to log in.
package probe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
)

// maxPage bounds how much of an intercepted page discovery reads.
const maxPage = 1 << 20

// Prober runs connectivity checks and login URL discovery.
type Prober struct {
	client   *http.Client
	cfg      config.ProbeConfig
	memory   *Memory
	log      *slog.Logger
	interval time.Duration // pause between discovery attempts
}

// New creates a Prober. Requests bypass any proxy and never follow
// redirects: a captive portal answers the probe with a redirect or a page
// of its own, and that answer is what discovery inspects.
func New(cfg config.ProbeConfig, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	return &Prober{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:      cfg,
		memory:   NewMemory(cfg.MemoryTTL),
		log:      log.With("component", "probe"),
		interval: 500 * time.Millisecond,
	}
}

// Close stops the discovery memory.
func (p *Prober) Close() {
	p.memory.Stop()
}

// Online reports whether the probe URL answers 204 No Content. Network
// errors count as offline; only a done ctx is returned as an error.
func (p *Prober) Online(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProbeURL, nil)
	if err != nil {
		return false, models.NewLoginError(models.ErrCodeConfiguration, "invalid probe URL", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, models.NewLoginError(models.ErrCodeTimeout, "probe canceled", ctx.Err())
		}
		p.log.Debug("probe failed", "url", p.cfg.ProbeURL, "error", err)
		return false, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxPage))

	online := resp.StatusCode == http.StatusNoContent
	p.log.Debug("probe", "url", p.cfg.ProbeURL, "status", resp.StatusCode, "online", online)
	return online, nil
}
