package reporting

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/codewithboateng/jitprof/internal/ir"
)

// topOffenders caps the bar chart section of the HTML report.
const topOffenders = 20

func WriteHTML(runID, outDir string, run *ir.Run) (string, error) {
	path := filepath.Join(outDir, runID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Head + styles
	fmt.Fprintf(f, "<!doctype html><html><head><meta charset='utf-8'><title>%s</title>", html.EscapeString(runID))
	fmt.Fprint(f, "<style>body{font-family:system-ui,Arial,sans-serif;padding:20px;line-height:1.4} table{border-collapse:collapse;margin:8px 0} td,th{border:1px solid #ddd;padding:6px} h1,h2{margin:6px 0 4px} .dim{color:#666} .mono{font-family:ui-monospace,Menlo,Consolas,monospace} .bar{background:#c0392b;height:10px}</style>")
	fmt.Fprint(f, "</head><body>")

	// Title + summary
	fmt.Fprintf(f, "<h1>jitprof report – <span class='mono'>%s</span></h1>", html.EscapeString(runID))
	fmt.Fprintf(f, "<p>Traces: %d &nbsp; Warnings: %d &nbsp; Array type switches: %d</p>",
		len(run.Traces), len(run.Warnings), run.Stats.Transitions)
	fmt.Fprintf(f, "<p class='dim'>Events: %d &nbsp; Writes: %d &nbsp; Array writes: %d &nbsp; Arrays: %d</p>",
		run.Stats.Events, run.Stats.Puts, run.Stats.ArrayPuts, run.Stats.Arrays)

	fmt.Fprintf(f, "<p class='dim'>Warning limit: %d", run.Context.WarningLimit)
	if n := len(run.Context.DisabledRules); n > 0 {
		fmt.Fprintf(f, " &nbsp; Disabled rules: %s", html.EscapeString(strings.Join(run.Context.DisabledRules, ", ")))
	}
	if run.Context.Waived > 0 {
		fmt.Fprintf(f, " &nbsp; Waived: %d", run.Context.Waived)
	}
	fmt.Fprint(f, "</p>")

	if len(run.Warnings) == 0 {
		fmt.Fprint(f, "<h2>Warnings</h2><p class='dim'>No array type switches were observed.</p>")
		fmt.Fprint(f, "</body></html>")
		return path, nil
	}

	// Top offenders; warnings arrive sorted by count desc.
	top := run.Warnings
	if len(top) > topOffenders {
		top = top[:topOffenders]
	}
	peak := top[0].Count
	fmt.Fprint(f, "<h2>Top Offenders</h2><table><tr><th>Location</th><th>Usages</th><th></th></tr>")
	for _, w := range top {
		width := 0
		if peak > 0 {
			width = w.Count * 200 / peak
		}
		fmt.Fprintf(f, "<tr><td class='mono'>%s</td><td>%d</td><td><div class='bar' style='width:%dpx'></div></td></tr>",
			html.EscapeString(w.Location), w.Count, width)
	}
	fmt.Fprint(f, "</table>")

	// All warnings
	fmt.Fprint(f, "<h2>All Warnings</h2><table><tr><th>ID</th><th>Rule</th><th>Site</th><th>Location</th><th>Count</th><th>Message</th></tr>")
	for _, w := range run.Warnings {
		fmt.Fprintf(f, "<tr><td class='mono'>%s</td><td>%s</td><td class='mono'>%s</td><td class='mono'>%s</td><td>%d</td><td>%s</td></tr>",
			html.EscapeString(w.ID),
			html.EscapeString(w.RuleID),
			html.EscapeString(w.IID),
			html.EscapeString(w.Location),
			w.Count,
			html.EscapeString(w.Message),
		)
	}
	fmt.Fprint(f, "</table>")

	fmt.Fprint(f, "</body></html>")
	return path, nil
}
