// Package diff renders unified diffs for change previews.
package diff

import (
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
)

// Unified returns a unified diff from old to new, or "" when they are equal.
func Unified(name, old, new string) (string, error) {
	if old == new {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(old),
		B:        splitLines(new),
		FromFile: "current/" + name,
		ToFile:   "new/" + name,
		Context:  3,
	})
}

// splitLines splits s into newline terminated lines. difflib.SplitLines
// adds a spurious empty line when s already ends in a newline.
func splitLines(s string) []string {
	lines := strings.SplitAfter(ensureNewline(s), "\n")
	return lines[:len(lines)-1]
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// Colorize highlights headers, hunks, removals and additions. It honours
// color.NoColor.
func Colorize(diff string) string {
	if color.NoColor {
		return diff
	}
	var b strings.Builder
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			bold.Fprint(&b, line)
		case strings.HasPrefix(line, "@@"):
			cyan.Fprint(&b, line)
		case strings.HasPrefix(line, "-"):
			red.Fprint(&b, line)
		case strings.HasPrefix(line, "+"):
			green.Fprint(&b, line)
		default:
			b.WriteString(line)
		}
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
