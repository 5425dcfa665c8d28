// Package output provides structured output formatting for the dsf CLI.
//
// Output supports multiple formats:
//   - table: Human-readable tables (default)
//   - json: Machine-readable JSON
//   - yaml: Machine-readable YAML
//   - quiet: Minimal output (ids and signatures only)
//
// Table headers are styled with lipgloss when stdout is a terminal and
// color is enabled.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatQuiet Format = "quiet"
)

// ParseFormat parses a format string. Unknown formats fall back to table.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "quiet", "q":
		return FormatQuiet
	default:
		return FormatTable
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Writer handles formatted output based on the configured format.
type Writer struct {
	format Format
	out    io.Writer
	err    io.Writer
	styled bool
}

// NewWriter creates a writer on stdout and stderr. Styling is on when
// stdout is a terminal.
func NewWriter(format Format) *Writer {
	return &Writer{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
		styled: isTerminal(os.Stdout),
	}
}

// WithOutput sets the output writer. Styling follows the new writer.
func (w *Writer) WithOutput(out io.Writer) *Writer {
	w.out = out
	w.styled = w.styled && isTerminal(out)
	return w
}

// WithError sets the error writer.
func (w *Writer) WithError(err io.Writer) *Writer {
	w.err = err
	return w
}

// WithColor turns styling off when color is false.
func (w *Writer) WithColor(color bool) *Writer {
	w.styled = w.styled && color
	return w
}

// WithFormat overrides the output format.
func (w *Writer) WithFormat(format Format) *Writer {
	w.format = format
	return w
}

// Format returns the current format.
func (w *Writer) Format() Format {
	return w.format
}

// Write outputs data according to the configured format.
func (w *Writer) Write(data any) error {
	switch w.format {
	case FormatJSON:
		return w.writeJSON(data)
	case FormatYAML:
		return w.writeYAML(data)
	case FormatQuiet:
		return w.writeQuiet(data)
	default:
		return w.writeTable(data)
	}
}

func (w *Writer) writeJSON(data any) error {
	if q, ok := data.(Quiet); ok {
		data = q.Raw()
	}
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// writeYAML goes through JSON first so the json tags and text
// marshalers of the domain types shape the document.
func (w *Writer) writeYAML(data any) error {
	if q, ok := data.(Quiet); ok {
		data = q.Raw()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func (w *Writer) writeQuiet(data any) error {
	switch v := data.(type) {
	case Quiet:
		for _, s := range v.QuietLines() {
			fmt.Fprintln(w.out, s)
		}
	case string:
		fmt.Fprintln(w.out, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w.out, s)
		}
	default:
		return w.writeJSON(data)
	}
	return nil
}

func (w *Writer) writeTable(data any) error {
	switch v := data.(type) {
	case Tabular:
		return w.renderTable(v.TableData())
	case *Table:
		return w.renderTable(v)
	case string:
		fmt.Fprintln(w.out, v)
	default:
		return w.writeJSON(data)
	}
	return nil
}

func (w *Writer) renderTable(t *Table) error {
	if t == nil || len(t.Headers) == 0 {
		return nil
	}
	if t.Message != "" && len(t.Rows) == 0 {
		fmt.Fprintln(w.out, t.Message)
		return nil
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.Headers, "\t")))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	// Style the aligned header line so escape codes do not skew widths.
	header, rest, _ := strings.Cut(buf.String(), "\n")
	if w.styled {
		header = headerStyle.Render(strings.TrimRight(header, " "))
	}
	fmt.Fprintln(w.out, header)
	_, err := io.WriteString(w.out, rest)
	return err
}

// Println writes a line to output.
func (w *Writer) Println(a ...any) {
	fmt.Fprintln(w.out, a...)
}

// Printf writes formatted output.
func (w *Writer) Printf(format string, a ...any) {
	fmt.Fprintf(w.out, format, a...)
}

// Errorf writes an error message.
func (w *Writer) Errorf(format string, a ...any) {
	fmt.Fprintf(w.err, format, a...)
}

// Success writes a success message. Quiet output suppresses it.
func (w *Writer) Success(message string) {
	if w.format == FormatQuiet {
		return
	}
	fmt.Fprintln(w.out, w.style(successStyle, "✓ "+message))
}

// Warn writes a warning message to the error writer.
func (w *Writer) Warn(message string) {
	fmt.Fprintln(w.err, w.style(warnStyle, "⚠ "+message))
}

// Info writes an info message. Quiet output suppresses it.
func (w *Writer) Info(message string) {
	if w.format == FormatQuiet {
		return
	}
	fmt.Fprintf(w.out, "ℹ %s\n", message)
}

func (w *Writer) style(s lipgloss.Style, text string) string {
	if !w.styled {
		return text
	}
	return s.Render(text)
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Quiet is implemented by values with a minimal line form. Raw returns the
// value to encode for json and yaml.
type Quiet interface {
	QuietLines() []string
	Raw() any
}

// Tabular is an interface for objects that can be rendered as a table.
type Tabular interface {
	TableData() *Table
}

// Table represents tabular data. Message replaces the table when there are
// no rows.
type Table struct {
	Headers []string
	Rows    [][]string
	Message string
}

// NewTable creates a new table with headers.
func NewTable(headers ...string) *Table {
	return &Table{
		Headers: headers,
		Rows:    make([][]string, 0),
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) *Table {
	t.Rows = append(t.Rows, cells)
	return t
}

// Empty sets the message printed instead of an empty table.
func (t *Table) Empty(message string) *Table {
	t.Message = message
	return t
}

// TableData implements Tabular for Table.
func (t *Table) TableData() *Table {
	return t
}
