package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/codewithboateng/jitprof/internal/ir"
)

// maxLocationWidth truncates very long locations in the text table.
const maxLocationWidth = 72

// WriteText renders the run's warnings as an aligned plain-text table.
func WriteText(runID, outDir string, run *ir.Run) (string, error) {
	path := filepath.Join(outDir, runID+".txt")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := RenderText(f, run); err != nil {
		return "", err
	}
	return path, nil
}

func RenderText(w io.Writer, run *ir.Run) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s  traces=%d  switches=%d  warnings=%d\n",
		run.ID, len(run.Traces), run.Stats.Transitions, len(run.Warnings))
	if len(run.Warnings) == 0 {
		sb.WriteString("no array type switches observed\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	const locHeader = "LOCATION"
	width := runewidth.StringWidth(locHeader)
	locs := make([]string, len(run.Warnings))
	for i, wr := range run.Warnings {
		loc := wr.Location
		if loc == "" {
			loc = wr.IID
		}
		loc = runewidth.Truncate(loc, maxLocationWidth, "...")
		locs[i] = loc
		if n := runewidth.StringWidth(loc); n > width {
			width = n
		}
	}

	fmt.Fprintf(&sb, "%s  %6s  %s\n", runewidth.FillRight(locHeader, width), "COUNT", "RULE")
	for i, wr := range run.Warnings {
		fmt.Fprintf(&sb, "%s  %6d  %s\n", runewidth.FillRight(locs[i], width), wr.Count, wr.RuleID)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
