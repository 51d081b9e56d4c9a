package cmd

import (
	"context"
	"flag"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shaw-baobao/go-anisette/internal/cli/shared"
)

// RootCommand builds the top-level "asauth" command tree.
func RootCommand(versionInfo string) *ffcli.Command {
	fs := flag.NewFlagSet("asauth", flag.ExitOnError)
	shared.BindRootFlags(fs)

	root := &ffcli.Command{
		Name:       "asauth",
		ShortUsage: "asauth <command> [flags]",
		ShortHelp:  "Authenticate with Apple's GrandSlam login service and mint Anisette headers.",
		LongHelp: `asauth logs in to Apple's GrandSlam Authentication (GSA) service using the
SRP-6a password-authenticated key exchange, handling two-factor prompts and
session caching, and can also drive the Anisette provisioning flow on its own.`,
		FlagSet:   fs,
		UsageFunc: RootUsageFunc,
		Subcommands: []*ffcli.Command{
			AuthCommand(),
			AnisetteCommand(),
			VersionCommand(versionInfo),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}

	return root
}
