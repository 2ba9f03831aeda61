package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/wesnick/gshell/pkg/gshell/diff"
)

// outputWriter handles formatted output (text, JSON or YAML)
type outputWriter struct {
	json    bool
	yaml    bool
	noColor bool
	verbose bool
	writer  io.Writer
	errOut  io.Writer
}

func newOutputWriter(useJSON, useYAML, noColor, verbose bool) *outputWriter {
	if noColor {
		color.NoColor = true
	}
	return &outputWriter{
		json:    useJSON,
		yaml:    useYAML,
		noColor: noColor,
		verbose: verbose,
		writer:  os.Stdout,
		errOut:  os.Stderr,
	}
}

// writeDiff prints a unified diff, coloured unless --no-color is set
func (o *outputWriter) writeDiff(d string) {
	d = strings.TrimRight(d, "\n")
	if !o.noColor {
		d = diff.Colorize(d)
	}
	o.writeMessage(d)
}

// structured reports whether output should be machine readable
func (o *outputWriter) structured() bool {
	return o.json || o.yaml
}

// writeData outputs data in the selected structured format
func (o *outputWriter) writeData(data interface{}) error {
	if o.yaml {
		return o.writeYAML(data)
	}
	return o.writeJSON(data)
}

// writeJSON outputs data as JSON
func (o *outputWriter) writeJSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// writeYAML outputs data as YAML, keeping the JSON field names and order
func (o *outputWriter) writeYAML(data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return err
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = o.writer.Write(buf.Bytes())
	return err
}

// blockStyle drops the flow style inherited from the JSON source
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// writeTable outputs tabular data
func (o *outputWriter) writeTable(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(o.writer, 0, 0, 2, ' ', 0)

	head := strings.Join(headers, "\t")
	if !o.noColor {
		head = color.New(color.Bold).Sprint(head)
	}
	fmt.Fprintln(w, head)

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return w.Flush()
}

// writeFields outputs aligned "Key: value" pairs, skipping empty values
func (o *outputWriter) writeFields(fields [][2]string) error {
	w := tabwriter.NewWriter(o.writer, 0, 0, 1, ' ', 0)
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
	}
	return w.Flush()
}

// writeMessage outputs a simple message
func (o *outputWriter) writeMessage(msg string) {
	fmt.Fprintln(o.writer, msg)
}

// writeError outputs an error message to stderr
func (o *outputWriter) writeError(err error) {
	prefix := "Error:"
	if !o.noColor {
		prefix = color.New(color.FgRed, color.Bold).Sprint(prefix)
	}
	fmt.Fprintf(o.errOut, "%s %v\n", prefix, err)
}

// writeVerbose outputs a verbose message to stderr if verbose mode is enabled
func (o *outputWriter) writeVerbose(format string, args ...interface{}) {
	if o.verbose {
		fmt.Fprintf(o.errOut, "VERBOSE: "+format+"\n", args...)
	}
}

// formatDate formats a millisecond timestamp for display
func formatDate(timestamp int64) string {
	t := time.UnixMilli(timestamp)
	return t.Format("2006-01-02 15:04")
}

// formatRFC3339 shortens an RFC3339 timestamp for display
func formatRFC3339(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04")
}

// formatSize formats bytes as human-readable size
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// truncateString truncates a string to maxLen runes with ellipsis
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
