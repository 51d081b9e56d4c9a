package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/shaw-baobao/go-anisette/internal/cli/shared"
	"github.com/shaw-baobao/go-anisette/internal/cli/shared/errfmt"
)

// Process exit codes.
const (
	ExitSuccess = 0
	ExitUsage   = 2
	ExitError   = 1
)

// ExitCodeFromError maps a command error to a process exit code. Usage
// errors (bad flags, missing required arguments) get ExitUsage; everything
// else gets ExitError.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *shared.UsageErr
	if errors.As(err, &usageErr) {
		return ExitUsage
	}
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}

	return ExitError
}

// Run parses and executes the root command tree, writing any error to
// stderr, and returns the process exit code.
func Run(args []string, versionInfo string) int {
	root := RootCommand(versionInfo)

	if err := root.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprint(os.Stderr, errfmt.FormatStderr(err))
		return ExitUsage
	}

	err := root.Run(context.Background())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprint(os.Stderr, errfmt.FormatStderr(err))
		return ExitCodeFromError(err)
	}

	return ExitSuccess
}
