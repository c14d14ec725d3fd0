package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codewithboateng/jitprof/internal/ir"
)

// WriteJSON stores the run document as <outDir>/<runID>.json. The file is
// written beside its final name and renamed, so readers never see a partial
// report.
func WriteJSON(runID, outDir string, run *ir.Run) (string, error) {
	if run.IRVersion == "" {
		run.IRVersion = ir.Version
	}
	b, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", runID, err)
	}
	path := filepath.Join(outDir, runID+".json")
	tmp, err := os.CreateTemp(outDir, "."+runID+"-*.json")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}
