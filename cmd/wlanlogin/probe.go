package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/wlanlogin/probe"
)

func newProbeCmd(code *int) *cobra.Command {
	var discover bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity and optionally discover the portal login URL",
		Long: "Check connectivity. Exit status is 0 when online and 2 when the\n" +
			"network is captive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logCloser, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := probe.New(cfg.Probe, nil)
			defer p.Close()

			online, err := p.Online(ctx)
			if err != nil {
				return err
			}
			if online {
				fmt.Fprintln(cmd.OutOrStdout(), "online")
				*code = exitOK
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline")
			*code = exitNotLoggedIn

			if !discover {
				return nil
			}
			loginURL, err := p.Discover(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "login_url:", loginURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&discover, "discover", false, "look for the portal login URL when offline")
	return cmd
}
