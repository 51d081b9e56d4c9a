package cmd

import (
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shaw-baobao/go-anisette/internal/cli/shared"
)

type rootCommandGroup struct {
	title    string
	commands []string
}

var rootUsageGroups = []rootCommandGroup{
	{
		title:    "AUTHENTICATION COMMANDS",
		commands: []string{"auth"},
	},
	{
		title:    "ANISETTE COMMANDS",
		commands: []string{"anisette"},
	},
	{
		title:    "UTILITY COMMANDS",
		commands: []string{"version"},
	},
}

// RootUsageFunc renders grouped root help.
func RootUsageFunc(c *ffcli.Command) string {
	var b strings.Builder

	shortHelp := strings.TrimSpace(c.ShortHelp)
	longHelp := strings.TrimSpace(c.LongHelp)
	if shortHelp == "" && longHelp != "" {
		shortHelp = longHelp
		longHelp = ""
	}

	if shortHelp != "" {
		b.WriteString(shared.Bold("DESCRIPTION"))
		b.WriteString("\n  ")
		b.WriteString(shortHelp)
		b.WriteString("\n\n")
	}

	usage := strings.TrimSpace(c.ShortUsage)
	if usage == "" {
		usage = strings.TrimSpace(c.Name)
	}
	if usage != "" {
		b.WriteString(shared.Bold("USAGE"))
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

	writeRootGroupedSubcommands(&b, c.Subcommands)
	writeRootFlags(&b, c.FlagSet)
	return b.String()
}

func writeRootGroupedSubcommands(b *strings.Builder, subcommands []*ffcli.Command) {
	if len(subcommands) == 0 {
		return
	}

	byName := make(map[string]*ffcli.Command, len(subcommands))
	for _, sub := range subcommands {
		byName[sub.Name] = sub
	}

	rendered := make(map[string]bool, len(subcommands))
	for _, group := range rootUsageGroups {
		groupCommands := make([]*ffcli.Command, 0, len(group.commands))
		for _, name := range group.commands {
			sub, ok := byName[name]
			if !ok || rendered[name] {
				continue
			}
			rendered[name] = true
			groupCommands = append(groupCommands, sub)
		}
		if len(groupCommands) == 0 {
			continue
		}

		b.WriteString(shared.Bold(group.title))
		b.WriteString("\n")
		tw := tabwriter.NewWriter(b, 0, 2, 2, ' ', 0)
		for _, sub := range groupCommands {
			_, _ = fmt.Fprintf(tw, "  %s:\t%s\n", sub.Name, sub.ShortHelp)
		}
		_ = tw.Flush()
		b.WriteString("\n")
	}

	additional := make([]*ffcli.Command, 0)
	for _, sub := range subcommands {
		if !rendered[sub.Name] {
			additional = append(additional, sub)
		}
	}
	if len(additional) == 0 {
		return
	}

	b.WriteString(shared.Bold("ADDITIONAL COMMANDS"))
	b.WriteString("\n")
	tw := tabwriter.NewWriter(b, 0, 2, 2, ' ', 0)
	for _, sub := range additional {
		_, _ = fmt.Fprintf(tw, "  %s:\t%s\n", sub.Name, sub.ShortHelp)
	}
	_ = tw.Flush()
	b.WriteString("\n")
}

func writeRootFlags(b *strings.Builder, fs *flag.FlagSet) {
	if fs == nil {
		return
	}

	hasFlags := false
	fs.VisitAll(func(*flag.Flag) { hasFlags = true })
	if !hasFlags {
		return
	}

	b.WriteString(shared.Bold("FLAGS"))
	b.WriteString("\n")
	tw := tabwriter.NewWriter(b, 0, 2, 2, ' ', 0)
	fs.VisitAll(func(f *flag.Flag) {
		if f.DefValue != "" {
			_, _ = fmt.Fprintf(tw, "  --%s\t%s (default: %s)\n", f.Name, f.Usage, f.DefValue)
			return
		}
		_, _ = fmt.Fprintf(tw, "  --%s\t%s\n", f.Name, f.Usage)
	})
	_ = tw.Flush()
	b.WriteString("\n")
}
