// Package output renders dispatch reports for the CLI.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// ANSI color codes for status output (used when Colored=true).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[0;31m"
	ansiGreen  = "\033[0;32m"
	ansiYellow = "\033[0;33m"
)

// TableOptions controls how RenderResults renders execution results.
type TableOptions struct {
	// Colored wraps status labels with ANSI codes. Default false (CI-safe).
	Colored bool
}

// statusCell returns the status padded to width characters. When colored,
// ANSI codes wrap only the text; trailing padding spaces are plain so
// subsequent columns stay visually aligned regardless of terminal ANSI
// support.
func statusCell(status models.ExecutionStatus, width int, colored bool) string {
	text := string(status)
	if !colored {
		return fmt.Sprintf("%-*s", width, text)
	}
	var code string
	switch status {
	case models.StatusSuccess:
		code = ansiGreen
	case models.StatusFailure:
		code = ansiRed
	case models.StatusSkipped:
		code = ansiYellow
	default:
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// ShortenMessage truncates msg to at most max runes, appending "..." when
// truncated. max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// truncateField shortens s to at most max bytes for ID/label columns.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// RenderResults writes a formatted execution result table to w.
//
// Column order:
//
//	POLICY  ACCOUNT  REGION  STATUS  RESOURCES  REASON
func RenderResults(w io.Writer, results []models.ExecutionResult, opts TableOptions) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No policy executions.")
		return
	}

	// Fixed column display widths.
	const (
		wPolicy  = 36
		wAccount = 14
		wRegion  = 15
		wStatus  = 9
		wCount   = 9
		wReason  = 55
	)

	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s",
		wPolicy, "POLICY",
		wAccount, "ACCOUNT",
		wRegion, "REGION",
		wStatus, "STATUS",
		wCount, "RESOURCES",
		wReason, "REASON",
	)
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, r := range results {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wPolicy, truncateField(r.PolicyName, wPolicy)))
		rb.WriteString(fmt.Sprintf("  %-*s", wAccount, truncateField(r.AccountID, wAccount)))
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, truncateField(r.Region, wRegion)))
		rb.WriteString("  " + statusCell(r.Status, wStatus, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*d", wCount, r.ResourceCount))
		rb.WriteString(fmt.Sprintf("  %-*s", wReason, ShortenMessage(r.Reason, wReason)))
		fmt.Fprintln(w, rb.String())
	}
}

// RenderSummary writes the compact per-dispatch summary to w: event header,
// overall status, and per-status counts.
func RenderSummary(w io.Writer, rep *models.DispatchReport) {
	fmt.Fprintf(w, "Dispatch:  %s\n", rep.DispatchID)
	fmt.Fprintf(w, "Source:    %s\n", rep.Source)
	fmt.Fprintf(w, "Account:   %s\n", rep.AccountID)
	fmt.Fprintf(w, "Event:     %s\n", rep.EventName)
	fmt.Fprintf(w, "Status:    %s\n", rep.Status)
	if rep.Reason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", rep.Reason)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Succeeded: %d\n", rep.Succeeded)
	fmt.Fprintf(w, "Failed:    %d\n", rep.Failed)
	fmt.Fprintf(w, "Skipped:   %d\n", rep.Skipped)

	if len(rep.Failures) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, f := range rep.Failures {
			fmt.Fprintf(w, "  %s @ %s [%s]: %s\n", f.PolicyName, f.AccountID, f.Status, ShortenMessage(f.Reason, 80))
		}
	}
}
