// Command wlanlogin logs the machine into a campus captive portal.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/wlanlogin/models"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Process exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitNotLoggedIn = 2
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	var code int
	root := newRootCmd(&code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitError
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "wlanlogin",
		Short:         "Log in to a campus captive portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newLoginCmd(code),
		newWatchCmd(),
		newProbeCmd(code),
		newVersionCmd(),
	)
	return root
}

// exitCodeFor maps a login result to the process exit code.
func exitCodeFor(out *models.LoginOutcome, err error) int {
	if err != nil {
		return exitError
	}
	if out == nil || !out.Authenticated {
		return exitNotLoggedIn
	}
	return exitOK
}

// errorCode extracts the LoginError code of err, if any.
func errorCode(err error) string {
	var le *models.LoginError
	if errors.As(err, &le) {
		return le.Code
	}
	return models.ErrCodeInternal
}
