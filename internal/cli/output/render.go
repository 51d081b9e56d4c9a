package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// RenderTable writes headers/rows as a bordered table to stdout.
func RenderTable(headers []string, rows [][]string) {
	table := tablewriter.NewTable(os.Stdout)
	if len(headers) > 0 {
		table.Header(headers)
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()
}

// RenderMarkdown writes headers/rows as a GitHub-flavored markdown table to
// stdout.
func RenderMarkdown(headers []string, rows [][]string) {
	if len(headers) == 0 {
		return
	}
	fmt.Fprintln(os.Stdout, "| "+strings.Join(headers, " | ")+" |")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintln(os.Stdout, "| "+strings.Join(sep, " | ")+" |")
	for _, row := range rows {
		fmt.Fprintln(os.Stdout, "| "+strings.Join(row, " | ")+" |")
	}
}

// PrintJSON writes v to stdout as compact JSON followed by a newline.
func PrintJSON(v any) error {
	return printJSON(os.Stdout, v, false)
}

// PrintPrettyJSON writes v to stdout as indented JSON.
func PrintPrettyJSON(v any) error {
	return printJSON(os.Stdout, v, true)
}
