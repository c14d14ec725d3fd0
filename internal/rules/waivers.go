package rules

import (
	"strings"

	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/storage"
)

// ApplyWaivers filters out warnings that match any active waiver.
// Returns (kept, waivedCount)
func ApplyWaivers(in []ir.Warning, waivers []storage.Waiver) ([]ir.Warning, int) {
	if len(waivers) == 0 || len(in) == 0 {
		return in, 0
	}
	var out []ir.Warning
	waived := 0
nextWarning:
	for _, w := range in {
		for _, wv := range waivers {
			if !eqCI(w.RuleID, wv.RuleID) {
				continue
			}
			if wv.IID != "" && strings.TrimSpace(w.IID) != strings.TrimSpace(wv.IID) {
				continue
			}
			if wv.PatternSub != "" {
				ps := strings.ToUpper(wv.PatternSub)
				if !strings.Contains(strings.ToUpper(w.Location), ps) {
					continue
				}
			}
			waived++
			continue nextWarning
		}
		out = append(out, w)
	}
	return out, waived
}

func eqCI(a, b string) bool { return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) }
