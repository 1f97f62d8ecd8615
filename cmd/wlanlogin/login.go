package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/supervisor"
)

func newLoginCmd(code *int) *cobra.Command {
	var flags portalFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run one login attempt and print the outcome",
		Long: "Run one login attempt and print the outcome as JSON.\n\n" +
			"Exit status is 0 when authenticated, 2 when the portal did not\n" +
			"confirm the login and 1 on error.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logCloser, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logCloser)
			if err != nil {
				logCloser.Close()
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out, err := a.sup.Attempt(ctx, supervisor.TriggerCLI, models.LoginRequest{})
			*code = exitCodeFor(out, err)
			if err != nil {
				a.log.Error("login failed", "code", errorCode(err), "error", err)
				return printJSON(models.LoginResponse{Success: false, Error: detailOf(err)})
			}
			return printJSON(models.LoginResponse{Success: out.Authenticated, Outcome: out})
		},
	}
	flags.register(cmd)
	return cmd
}

func detailOf(err error) *models.ErrorDetail {
	var le *models.LoginError
	if errors.As(err, &le) {
		return le.ToDetail()
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
