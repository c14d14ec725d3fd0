package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codewithboateng/jitprof/internal/ir"
)

type DiffResult struct {
	BaseID  string        `json:"base_id"`
	HeadID  string        `json:"head_id"`
	Summary DiffSummary   `json:"summary"`
	New     []DiffWarning `json:"new"`
	Removed []DiffWarning `json:"removed"`
	Changed []DiffChanged `json:"changed"`
}

type DiffSummary struct {
	NewCount     int `json:"new"`
	RemovedCount int `json:"removed"`
	ChangedCount int `json:"changed"`
}

type DiffWarning struct {
	RuleID   string `json:"rule_id"`
	IID      string `json:"iid"`
	Location string `json:"location,omitempty"`
	Count    int    `json:"count"`
}

type DiffChanged struct {
	Key     string      `json:"key"`
	Base    DiffWarning `json:"base"`
	Head    DiffWarning `json:"head"`
	Delta   int         `json:"delta"`
	Changed []string    `json:"fields_changed"`
}

// Diff compares the warnings of two runs. Warnings are matched on rule and
// call-site id; a matched pair is "changed" when its count or resolved
// location differs.
func Diff(baseID, headID string, base, head *ir.Run) DiffResult {
	bm := map[string]ir.Warning{}
	hm := map[string]ir.Warning{}
	for _, w := range base.Warnings {
		bm[keyOf(w)] = w
	}
	for _, w := range head.Warnings {
		hm[keyOf(w)] = w
	}

	added := []DiffWarning{}
	removed := []DiffWarning{}
	changed := []DiffChanged{}

	// additions & changes
	for k, hw := range hm {
		bw, ok := bm[k]
		if !ok {
			added = append(added, asDiff(hw))
			continue
		}
		var fields []string
		if bw.Count != hw.Count {
			fields = append(fields, "count")
		}
		if strings.TrimSpace(bw.Location) != strings.TrimSpace(hw.Location) {
			fields = append(fields, "location")
		}
		if len(fields) > 0 {
			changed = append(changed, DiffChanged{
				Key:     k,
				Base:    asDiff(bw),
				Head:    asDiff(hw),
				Delta:   hw.Count - bw.Count,
				Changed: fields,
			})
		}
	}
	// removals
	for k, bw := range bm {
		if _, ok := hm[k]; !ok {
			removed = append(removed, asDiff(bw))
		}
	}

	sort.Slice(added, func(i, j int) bool { return lessDiff(added[i], added[j]) })
	sort.Slice(removed, func(i, j int) bool { return lessDiff(removed[i], removed[j]) })
	sort.Slice(changed, func(i, j int) bool { return changed[i].Key < changed[j].Key })

	return DiffResult{
		BaseID: baseID, HeadID: headID,
		Summary: DiffSummary{
			NewCount:     len(added),
			RemovedCount: len(removed),
			ChangedCount: len(changed),
		},
		New:     added,
		Removed: removed,
		Changed: changed,
	}
}

func WriteDiffJSON(baseID, headID, outDir string, base, head *ir.Run) (string, error) {
	path := filepath.Join(outDir, "diff_"+baseID+"__"+headID+".json")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(Diff(baseID, headID, base, head), "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, b, 0o644)
}

func keyOf(w ir.Warning) string {
	return norm(w.RuleID) + "|" + strings.TrimSpace(w.IID)
}

func lessDiff(a, b DiffWarning) bool {
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	return a.IID < b.IID
}

func asDiff(w ir.Warning) DiffWarning {
	return DiffWarning{
		RuleID:   w.RuleID,
		IID:      w.IID,
		Location: w.Location,
		Count:    w.Count,
	}
}

func norm(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
