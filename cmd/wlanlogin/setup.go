package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/history"
	"github.com/use-agent/wlanlogin/logging"
	"github.com/use-agent/wlanlogin/login"
	"github.com/use-agent/wlanlogin/metrics"
	"github.com/use-agent/wlanlogin/probe"
	"github.com/use-agent/wlanlogin/supervisor"
	"github.com/use-agent/wlanlogin/webhook"
)

// portalFlags are the per-run overrides shared by login and watch.
type portalFlags struct {
	url, username, password, domain string
	vendor, backend                 string
	discover                        bool
}

func (f *portalFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.url, "url", "", "portal login URL")
	fs.StringVar(&f.username, "username", "", "portal account")
	fs.StringVar(&f.password, "password", "", "portal password")
	fs.StringVar(&f.domain, "domain", "", "ISP suffix: \"\", @dx, @lt or @yd")
	fs.StringVar(&f.vendor, "vendor", "", "login script adapter: form or portal-api")
	fs.StringVar(&f.backend, "backend", "", "page backend: emulated or rod")
	fs.BoolVar(&f.discover, "discover", false, "discover the login URL when none is configured")
}

// apply copies the flags that were set on cmd over cfg.
func (f *portalFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("url") {
		cfg.Portal.LoginURL = f.url
	}
	if fs.Changed("username") {
		cfg.Portal.Username = f.username
	}
	if fs.Changed("password") {
		cfg.Portal.Password = f.password
	}
	if fs.Changed("domain") {
		cfg.Portal.Domain = f.domain
	}
	if fs.Changed("vendor") {
		cfg.Portal.Vendor = f.vendor
	}
	if fs.Changed("backend") {
		cfg.Browser.Backend = f.backend
	}
	if fs.Changed("discover") {
		cfg.Probe.Discover = f.discover
	}
}

// app is the wired object graph of one command.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	prober  *probe.Prober
	metrics *metrics.Metrics
	sup     *supervisor.Supervisor
	closers []io.Closer
}

// loadConfig layers flags over file and environment and starts logging.
func loadConfig(cmd *cobra.Command, flags *portalFlags) (*config.Config, io.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if flags != nil {
		flags.apply(cmd, cfg)
	}
	closer := logging.Init(cfg.Log)
	if cfg.File != "" {
		slog.Debug("config loaded", "file", cfg.File)
	}
	return cfg, closer, nil
}

// newApp validates cfg and wires runner, prober, history, metrics,
// notifier and supervisor.
func newApp(cfg *config.Config, logCloser io.Closer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := slog.Default()

	runner, err := login.NewRunner(cfg, log)
	if err != nil {
		return nil, err
	}
	prober := probe.New(cfg.Probe, log)
	m := metrics.New()
	sup := supervisor.New(cfg, supervisor.Deps{
		Runner:   runner,
		Prober:   prober,
		History:  history.New(cfg.History.MaxEntries),
		Metrics:  m,
		Notifier: webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret, log),
		Logger:   log,
	})
	return &app{
		cfg:     cfg,
		log:     log,
		prober:  prober,
		metrics: m,
		sup:     sup,
		closers: []io.Closer{logCloser},
	}, nil
}

func (a *app) Close() {
	a.prober.Close()
	for _, c := range a.closers {
		c.Close()
	}
}
