package rules

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"github.com/codewithboateng/jitprof/internal/ir"
)

var (
	registry  []Rule
	ruleIndex = map[string]int{} // UPPER(ruleID) -> index
)

func Register(r Rule) {
	registry = append(registry, r)
	ruleIndex[strings.ToUpper(strings.TrimSpace(r.ID))] = len(registry) - 1
}

func List() []Rule {
	out := make([]Rule, 0, len(registry))
	for _, r := range registry {
		if rsettings.Disabled[strings.ToUpper(r.ID)] {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a rule by ID if registered (used by the HTML report and API).
func Get(id string) (Rule, bool) {
	idx, ok := ruleIndex[strings.ToUpper(strings.TrimSpace(id))]
	if !ok || idx < 0 || idx >= len(registry) {
		return Rule{}, false
	}
	return registry[idx], true
}

// Session fans host callbacks out to every enabled analysis of one run.
type Session struct {
	analyses []Analysis
	endOnce  sync.Once
}

func NewSession(env Env) *Session {
	s := &Session{}
	for _, r := range List() {
		s.analyses = append(s.analyses, r.New(env))
	}
	return s
}

func (s *Session) PutFieldPre(iid string, base Base, offset, val ir.Value) {
	for _, a := range s.analyses {
		a.PutFieldPre(iid, base, offset, val)
	}
}

// EndExecution delivers the end-of-run notification; repeated calls are
// ignored.
func (s *Session) EndExecution() {
	s.endOnce.Do(func() {
		for _, a := range s.analyses {
			a.EndExecution()
		}
	})
}

// Summary is the run-wide warning collector handed to analyses as their sink.
type Summary struct {
	mu       sync.Mutex
	warnings []ir.Warning
}

func (s *Summary) AddWarnings(ws []ir.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, ws...)
	return nil
}

func (s *Summary) Warnings() []ir.Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.Warning(nil), s.warnings...)
}

// Evaluate assigns run-unique IDs and returns the warnings in stable order:
// count desc, then rule, then location id.
func Evaluate(in []ir.Warning) []ir.Warning {
	all := append([]ir.Warning(nil), in...)

	seen := make(map[string]struct{})
	seq := 0
	put := func(id string) bool {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
		return true
	}

	for k := range all {
		id := all[k].ID
		if id == "" {
			id = makeID(all[k].RuleID, all[k].IID)
		}
		if !put(id) {
			for {
				seq++
				candidate := fmt.Sprintf("%s-%06d", all[k].RuleID, seq)
				if put(candidate) {
					id = candidate
					break
				}
			}
		}
		all[k].ID = id
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		if all[i].RuleID != all[j].RuleID {
			return all[i].RuleID < all[j].RuleID
		}
		return all[i].IID < all[j].IID
	})
	return all
}

func makeID(ruleID, iid string) string {
	sum := crc32.ChecksumIEEE([]byte(ruleID + "|" + iid))
	return fmt.Sprintf("%s-%08x", ruleID, sum)
}
