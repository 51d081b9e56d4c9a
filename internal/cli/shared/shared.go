// Package shared holds CLI helpers common to every asauth subcommand: usage
// rendering, output-format flags, progress gating, and terminal formatting.
package shared

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/term"

	"github.com/shaw-baobao/go-anisette/internal/cli/output"
)

// ANSI escape codes for bold text.
var (
	bold  = "\033[1m"
	reset = "\033[22m"
)

const defaultOutputEnvVar = "ASAUTH_DEFAULT_OUTPUT"

// UsageErr marks an error caused by invalid CLI invocation (bad flags,
// missing arguments) rather than a runtime failure, so the root command can
// exit with its usage exit code instead of the generic error code.
type UsageErr struct {
	msg string
}

func (e *UsageErr) Error() string { return e.msg }

// UsageError builds an error that the root command's runner treats as a
// usage mistake (exit code ExitUsage; only the message is printed, not the
// command's usage text) rather than a runtime failure.
func UsageError(format string, args ...any) error {
	return &UsageErr{msg: fmt.Sprintf(format, args...)}
}

var (
	isTerminal = term.IsTerminal
	noProgress bool
	verbose    bool
)

// BindRootFlags registers root-level flags that affect shared CLI behavior.
func BindRootFlags(fs *flag.FlagSet) {
	fs.BoolVar(&verbose, "verbose", false, "Enable verbose logging to stderr")
	fs.BoolVar(&noProgress, "no-progress", false, "Disable progress spinners")
}

// Verbose reports whether -verbose was set.
func Verbose() bool { return verbose }

// ProgressEnabled reports whether it's safe/appropriate to emit progress
// messages. Progress must be stderr-only and must not appear when stderr is
// non-interactive.
func ProgressEnabled() bool {
	if noProgress {
		return false
	}
	return isTerminal(int(os.Stderr.Fd()))
}

// SetNoProgress sets progress suppression (tests only).
func SetNoProgress(value bool) {
	noProgress = value
}

// Bold returns the string wrapped in ANSI bold codes.
func Bold(s string) string {
	if !supportsANSI() {
		return s
	}
	return bold + s + reset
}

// OrNA trims a string and returns "n/a" when empty.
func OrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}
	return trimmed
}

// RenderSection renders a titled section as markdown or table output.
func RenderSection(title string, headers []string, rows [][]string, markdown bool) {
	if markdown {
		fmt.Fprintf(os.Stdout, "### %s\n\n", title)
		output.RenderMarkdown(headers, rows)
		fmt.Fprintln(os.Stdout)
		return
	}

	fmt.Fprintf(os.Stdout, "%s\n", Bold(strings.ToUpper(title)))
	output.RenderTable(headers, rows)
	fmt.Fprintln(os.Stdout)
}

func supportsANSI() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	return isTerminal(int(os.Stderr.Fd()))
}

// DefaultUsageFunc returns a usage string with bold section headers.
func DefaultUsageFunc(c *ffcli.Command) string {
	var b strings.Builder

	shortHelp := strings.TrimSpace(c.ShortHelp)
	longHelp := strings.TrimSpace(c.LongHelp)
	if shortHelp == "" && longHelp != "" {
		shortHelp = longHelp
		longHelp = ""
	}

	if shortHelp != "" {
		b.WriteString(Bold("DESCRIPTION"))
		b.WriteString("\n  ")
		b.WriteString(shortHelp)
		b.WriteString("\n\n")
	}

	usage := strings.TrimSpace(c.ShortUsage)
	if usage == "" {
		usage = strings.TrimSpace(c.Name)
	}
	if usage != "" {
		b.WriteString(Bold("USAGE"))
		b.WriteString("\n  ")
		b.WriteString(usage)
		b.WriteString("\n\n")
	}

	if longHelp != "" {
		if shortHelp != "" && strings.HasPrefix(longHelp, shortHelp) {
			longHelp = strings.TrimSpace(strings.TrimPrefix(longHelp, shortHelp))
		}
		if longHelp != "" {
			b.WriteString(longHelp)
			b.WriteString("\n\n")
		}
	}

	if len(c.Subcommands) > 0 {
		b.WriteString(Bold("SUBCOMMANDS"))
		b.WriteString("\n")
		tw := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.ShortHelp)
		}
		tw.Flush()
		b.WriteString("\n")
	}

	if c.FlagSet != nil {
		hasFlags := false
		c.FlagSet.VisitAll(func(*flag.Flag) { hasFlags = true })
		if hasFlags {
			b.WriteString(Bold("FLAGS"))
			b.WriteString("\n")
			tw := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
			c.FlagSet.VisitAll(func(f *flag.Flag) {
				if f.DefValue != "" {
					fmt.Fprintf(tw, "  --%-12s %s (default: %s)\n", f.Name, f.Usage, f.DefValue)
					return
				}
				fmt.Fprintf(tw, "  --%-12s %s\n", f.Name, f.Usage)
			})
			tw.Flush()
			b.WriteString("\n")
		}
	}

	return b.String()
}

// OutputFlags stores pointers to output-related flag values.
type OutputFlags struct {
	Output *string
	Pretty *bool
}

// BindOutputFlagsWith registers a custom output-format flag and --pretty.
func BindOutputFlagsWith(fs *flag.FlagSet, flagName, defaultValue, usage string) OutputFlags {
	name := strings.TrimSpace(flagName)
	if name == "" {
		name = "output"
	}
	return OutputFlags{
		Output: fs.String(name, defaultValue, usage),
		Pretty: fs.Bool("pretty", false, "Pretty-print JSON output"),
	}
}

// BindOutputFlags registers --output and --pretty flags on the provided flagset.
func BindOutputFlags(fs *flag.FlagSet) OutputFlags {
	return BindOutputFlagsWith(fs, "output", DefaultOutputFormat(), "Output format: json (default), table, markdown")
}

var (
	defaultOutputOnce  sync.Once
	defaultOutputValue string
)

// DefaultOutputFormat returns the default output format for CLI commands,
// reading ASAUTH_DEFAULT_OUTPUT (json, table, markdown, md) and falling back
// to json.
func DefaultOutputFormat() string {
	defaultOutputOnce.Do(func() {
		defaultOutputValue = resolveDefaultOutput()
	})
	return defaultOutputValue
}

// ResetDefaultOutputFormat clears the cached default output format so that
// DefaultOutputFormat() re-reads ASAUTH_DEFAULT_OUTPUT on its next call.
// Tests only.
func ResetDefaultOutputFormat() {
	defaultOutputOnce = sync.Once{}
	defaultOutputValue = ""
}

func resolveDefaultOutput() string {
	env := strings.TrimSpace(os.Getenv(defaultOutputEnvVar))
	if env == "" {
		return "json"
	}
	switch normalized := strings.ToLower(env); normalized {
	case "json", "table", "markdown", "md":
		if normalized == "md" {
			return "markdown"
		}
		return normalized
	default:
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q (expected json, table, markdown, or md); using json\n", defaultOutputEnvVar, env)
		return "json"
	}
}

// NormalizeOutputFormat lowercases format and canonicalizes aliases.
func NormalizeOutputFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md":
		return "markdown"
	default:
		return strings.ToLower(strings.TrimSpace(format))
	}
}

// ValidateOutputFormat validates format against the standard json/table/markdown set.
func ValidateOutputFormat(format string, pretty bool) (string, error) {
	normalized := NormalizeOutputFormat(format)
	if normalized == "" {
		normalized = "json"
	}
	switch normalized {
	case "json", "table", "markdown":
	default:
		return "", fmt.Errorf("unsupported format: %s", normalized)
	}
	if pretty && normalized != "json" {
		return "", fmt.Errorf("--pretty is only valid with JSON output")
	}
	return normalized, nil
}

// PrintOutput renders data in the requested format to stdout.
func PrintOutput(data any, format string, pretty bool) error {
	normalized, err := ValidateOutputFormat(format, pretty)
	if err != nil {
		return err
	}
	switch normalized {
	case "json":
		if pretty {
			return output.PrintPrettyJSON(data)
		}
		return output.PrintJSON(data)
	case "table":
		renderer, ok := data.(output.TableRenderer)
		if !ok {
			return fmt.Errorf("shared: %T does not support table output", data)
		}
		return output.PrintTable(os.Stdout, renderer)
	case "markdown":
		renderer, ok := data.(output.TableRenderer)
		if !ok {
			return fmt.Errorf("shared: %T does not support markdown output", data)
		}
		output.RenderMarkdown(renderer.Headers(), renderer.Rows())
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", normalized)
	}
}

func contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, ResolveTimeout())
}

// ContextWithTimeout derives a context bounded by ResolveTimeout.
func ContextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return contextWithTimeout(ctx)
}

const timeoutEnvVar = "ASAUTH_TIMEOUT"

// ResolveTimeout returns the configured per-request timeout, defaulting to
// 30s. Invalid values fall back to the default with a stderr warning.
func ResolveTimeout() time.Duration {
	raw := strings.TrimSpace(os.Getenv(timeoutEnvVar))
	if raw == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q; using 30s\n", timeoutEnvVar, raw)
		return 30 * time.Second
	}
	return d
}

// SplitCSV splits a comma-separated flag value, trimming and dropping empties.
func SplitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return cleaned
}
