package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/mod/semver"

	"github.com/shaw-baobao/go-anisette/internal/cli/shared"
)

// bundledRootCertVersion is the "valid as of" tag this command reports for
// the Apple root certificate. No certificate is embedded in the binary: the
// CLI passes no root CA to gsa.NewClient, so GSA TLS is verified against the
// host trust store and is not pinned.
const bundledRootCertVersion = "v2024.1.0"

// VersionCommand prints the binary version and the bundled Apple root
// certificate's vintage, failing if --min-cert-version asks for something
// newer than what's bundled.
func VersionCommand(versionInfo string) *ffcli.Command {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	minCertVersion := fs.String("min-cert-version", "", "Fail if the bundled root certificate is older than this version")

	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "asauth version [flags]",
		ShortHelp:  "Print version and bundled root certificate information.",
		FlagSet:    fs,
		UsageFunc:  shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			fmt.Fprintf(os.Stdout, "asauth %s\n", versionInfo)
			fmt.Fprintf(os.Stdout, "bundled root certificate: %s\n", bundledRootCertVersion)

			want := strings.TrimSpace(*minCertVersion)
			if want == "" {
				return nil
			}
			if !strings.HasPrefix(want, "v") {
				want = "v" + want
			}
			if !semver.IsValid(want) {
				return shared.UsageError("--min-cert-version %q is not a valid semantic version", *minCertVersion)
			}
			if semver.Compare(bundledRootCertVersion, want) < 0 {
				return fmt.Errorf("version: bundled root certificate %s is older than required %s", bundledRootCertVersion, want)
			}
			return nil
		},
	}
}
