package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		out  *models.LoginOutcome
		err  error
		want int
	}{
		{"authenticated", &models.LoginOutcome{Authenticated: true}, nil, exitOK},
		{"not authenticated", &models.LoginOutcome{}, nil, exitNotLoggedIn},
		{"error", nil, models.NewLoginError(models.ErrCodeTimeout, "slow", nil), exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.out, tt.err); got != tt.want {
				t.Errorf("exitCodeFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	wrapped := errors.Join(errors.New("x"), models.NewLoginError(models.ErrCodeDiscovery, "none", nil))
	if got := errorCode(wrapped); got != models.ErrCodeDiscovery {
		t.Errorf("errorCode = %q", got)
	}
	if got := errorCode(errors.New("plain")); got != models.ErrCodeInternal {
		t.Errorf("errorCode = %q", got)
	}
}

func TestPortalFlagsApplyOnlyChanged(t *testing.T) {
	var f portalFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.ParseFlags([]string{"--username", "bob", "--domain", "@lt"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Portal.Password = "from-env"
	f.apply(cmd, cfg)

	if cfg.Portal.Username != "bob" || cfg.Portal.Domain != "@lt" {
		t.Errorf("portal = %+v", cfg.Portal)
	}
	if cfg.Portal.Password != "from-env" {
		t.Errorf("unset flag overwrote password: %q", cfg.Portal.Password)
	}
}

func TestVersionCommand(t *testing.T) {
	var code int
	root := newRootCmd(&code)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "wlanlogin dev") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLoginCommandInvalidConfig(t *testing.T) {
	t.Setenv("XDWLAN_CONFIG", "")
	t.Setenv("XDWLAN_LOGIN_URL", "")
	t.Setenv("XDWLAN_USERNAME", "")
	t.Setenv("XDWLAN_PASSWORD", "")

	if got := execute([]string{"login", "--url", "ftp://portal"}); got != exitError {
		t.Errorf("exit = %d, want %d", got, exitError)
	}
}
