// Package diag formats compiler diagnostics for the terminal: caret-style
// source markers for parse errors and function dumps for pass failures.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a diagnostic.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Reporter formats diagnostics against one source file.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter for a file's source text.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// FormatAt renders a message anchored at a source position with the
// offending line and a caret marker underneath.
func (r *Reporter) FormatAt(level Level, line, column int, message string) string {
	var b strings.Builder

	levelColor := r.levelColor(level)
	dim := color.New(color.Faint).SprintFunc()

	b.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(level)), message))

	width := lineNumberWidth(line)
	indent := strings.Repeat(" ", width)
	b.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, line, column))

	if line >= 1 && line <= len(r.lines) {
		content := r.lines[line-1]
		b.WriteString(fmt.Sprintf("%s %s\n", dim(fmt.Sprintf("%*d", width, line)), content))
		marker := strings.Repeat(" ", max(0, column-1)) + levelColor("^")
		b.WriteString(fmt.Sprintf("%s %s\n", indent, marker))
	}

	return b.String()
}

// FormatFunctionError renders a pass failure: the error, the function that
// failed, and optionally the offending instruction.
func FormatFunctionError(fnName, fnText, instText string, err error) string {
	var b strings.Builder

	red := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	b.WriteString(fmt.Sprintf("%s: function %%%s: %s\n", red("error"), fnName, err))
	if instText != "" {
		b.WriteString(fmt.Sprintf("  %s %s\n", dim("in:"), instText))
	}
	b.WriteString(dim(fnText))
	if !strings.HasSuffix(fnText, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Reporter) levelColor(level Level) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}
