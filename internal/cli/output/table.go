// Package output renders command results as tables for terminal display.
package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a
// table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a formatted table to w.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewTable(w)
	table.Header(data.Headers())
	for _, row := range data.Rows() {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// TableData is an ad-hoc TableRenderer.
type TableData struct {
	headers []string
	rows    [][]string
}

// NewTableData creates a TableData with the given headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

// AddRow appends a row.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// Headers implements TableRenderer.
func (t *TableData) Headers() []string { return t.headers }

// Rows implements TableRenderer.
func (t *TableData) Rows() [][]string { return t.rows }

// KeyValueTable prints a two-column key/value table with no headers.
func KeyValueTable(w io.Writer, pairs [][2]string) error {
	table := tablewriter.NewTable(w)
	for _, pair := range pairs {
		if err := table.Append([]string{pair[0], pair[1]}); err != nil {
			return err
		}
	}
	return table.Render()
}
