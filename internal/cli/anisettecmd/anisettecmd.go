// Package anisettecmd implements the "anisette" command group: headers and
// provision, for inspecting and forcing the Anisette provisioning state
// directly (no GSA login involved).
package anisettecmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shaw-baobao/go-anisette/internal/account"
	"github.com/shaw-baobao/go-anisette/internal/anisette"
	"github.com/shaw-baobao/go-anisette/internal/cli/shared"
	"github.com/shaw-baobao/go-anisette/internal/config"
)

// AnisetteCommand returns the anisette command group.
func AnisetteCommand() *ffcli.Command {
	fs := flag.NewFlagSet("anisette", flag.ExitOnError)

	return &ffcli.Command{
		Name:       "anisette",
		ShortUsage: "asauth anisette <subcommand> [flags]",
		ShortHelp:  "Inspect and provision Anisette headers directly.",
		LongHelp: `Inspect and provision Anisette headers without going through Apple login.

Subcommands:
  headers     Print the current Anisette header set.
  provision   Force reprovisioning against the configured ADI backend.`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Subcommands: []*ffcli.Command{
			HeadersCommand(),
			ProvisionCommand(),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}
}

type configFlags struct {
	configPath *string
}

func bindConfigFlags(fs *flag.FlagSet) configFlags {
	return configFlags{
		configPath: fs.String("config", "", "Path to config.yaml/config.jsonc (default: platform config dir)"),
	}
}

func loadConfig(explicitPath string) (config.Config, error) {
	path := strings.TrimSpace(explicitPath)
	if path == "" {
		if defaultPath, err := config.Path(); err == nil {
			path = defaultPath
		}
	}
	return config.Load(path)
}

type headerResult map[string]string

func (r headerResult) Headers() []string { return []string{"Header", "Value"} }

func (r headerResult) Rows() [][]string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, r[name]})
	}
	return rows
}

// HeadersCommand prints the current Anisette header set, provisioning first
// if necessary.
func HeadersCommand() *ffcli.Command {
	fs := flag.NewFlagSet("anisette headers", flag.ExitOnError)
	cfgFlags := bindConfigFlags(fs)
	output := shared.BindOutputFlags(fs)

	return &ffcli.Command{
		Name:       "headers",
		ShortUsage: "asauth anisette headers [flags]",
		ShortHelp:  "Print the current Anisette header set.",
		FlagSet:    fs,
		UsageFunc:  shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			requestCtx, cancel := shared.ContextWithTimeout(ctx)
			defer cancel()

			cfg, err := loadConfig(*cfgFlags.configPath)
			if err != nil {
				return fmt.Errorf("anisette headers: %w", err)
			}
			provider, err := account.NewAnisetteProvider(cfg, nil)
			if err != nil {
				return fmt.Errorf("anisette headers: %w", err)
			}

			var headers anisette.Headers
			err = shared.WithSpinner("requesting anisette headers...", func() error {
				var fetchErr error
				headers, fetchErr = provider.Headers(requestCtx)
				return fetchErr
			})
			if err != nil {
				return fmt.Errorf("anisette headers: %w", err)
			}

			return shared.PrintOutput(headerResult(headers), *output.Output, *output.Pretty)
		},
	}
}

// ProvisionCommand clears any existing provisioning blob and re-provisions
// against the configured ADI backend.
func ProvisionCommand() *ffcli.Command {
	fs := flag.NewFlagSet("anisette provision", flag.ExitOnError)
	cfgFlags := bindConfigFlags(fs)

	return &ffcli.Command{
		Name:       "provision",
		ShortUsage: "asauth anisette provision [flags]",
		ShortHelp:  "Force reprovisioning against the configured ADI backend.",
		FlagSet:    fs,
		UsageFunc:  shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			requestCtx, cancel := shared.ContextWithTimeout(ctx)
			defer cancel()

			cfg, err := loadConfig(*cfgFlags.configPath)
			if err != nil {
				return fmt.Errorf("anisette provision: %w", err)
			}

			state, err := anisette.LoadOrInit(cfg.ConfigurationPath)
			if err != nil {
				return fmt.Errorf("anisette provision: %w", err)
			}
			if err := state.ClearProvisioning(); err != nil {
				return fmt.Errorf("anisette provision: %w", err)
			}

			backend := account.SelectBackend(cfg, nil)
			err = shared.WithSpinner("provisioning...", func() error {
				return backend.Provision(requestCtx, state)
			})
			if err != nil {
				return fmt.Errorf("anisette provision: %w", err)
			}

			fmt.Fprintln(os.Stdout, "Provisioning succeeded.")
			return nil
		},
	}
}
