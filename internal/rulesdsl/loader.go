// Package rulesdsl loads YAML rule packs. A pack rule watches property
// writes that match its filter, counts them per call site, and reports the
// busiest sites at the end of the run like the built-in rules do.
package rulesdsl

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/reporting"
	"github.com/codewithboateng/jitprof/internal/rules"
)

// Category is the counter category shared by all pack rules; the rule id is
// the subcategory.
const Category = "rule-pack"

type dslPack struct {
	Rules []dslRule `yaml:"rules"`
}

type dslRule struct {
	ID      string `yaml:"id"`
	Summary string `yaml:"summary"`
	Message string `yaml:"message"`
	Limit   int    `yaml:"limit"` // 0 uses the run's warning limit

	Where struct {
		ValueKinds kindList `yaml:"value_kinds"` // undefined|null|bool|number|string|object
		ValueRegex string   `yaml:"value_regex"` // regex on string values (optional)
		Target     string   `yaml:"target"`      // array (default) | object | any
		Offset     string   `yaml:"offset"`      // index (default) | any
	} `yaml:"where"`
}

// kindList keeps a bare YAML null entry as the "null" kind; a plain
// []string would decode it as "" and drop it.
type kindList []string

func (k *kindList) UnmarshalYAML(node *yaml.Node) error {
	items := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		items = node.Content
	}
	out := make(kindList, 0, len(items))
	for _, it := range items {
		if it.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value_kinds entries must be scalars", it.Line)
		}
		if it.ShortTag() == "!!null" {
			out = append(out, "null")
			continue
		}
		out = append(out, it.Value)
	}
	*k = out
	return nil
}

type compiled struct {
	rule    dslRule
	kinds   map[ir.Kind]bool
	reValue *regexp.Regexp
	target  string
	anyOff  bool
}

var kindNames = map[string]ir.Kind{
	"undefined": ir.KindUndefined,
	"null":      ir.KindNull,
	"bool":      ir.KindBool,
	"number":    ir.KindNumber,
	"string":    ir.KindString,
	"object":    ir.KindObject,
}

// LoadAndRegister compiles every rule in the pack at path and registers it.
// Rules are all-or-nothing: nothing is registered if any rule is invalid.
func LoadAndRegister(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rules pack: %w", err)
	}
	var pack dslPack
	if err := yaml.Unmarshal(b, &pack); err != nil {
		return 0, fmt.Errorf("parse yaml: %w", err)
	}
	seen := map[string]bool{}
	var out []*compiled
	for _, r := range pack.Rules {
		cr, err := compile(r)
		if err != nil {
			return 0, fmt.Errorf("compile rule %q: %w", r.ID, err)
		}
		id := strings.ToUpper(r.ID)
		if _, exists := rules.Get(r.ID); exists || seen[id] {
			return 0, fmt.Errorf("compile rule %q: duplicate id", r.ID)
		}
		seen[id] = true
		out = append(out, cr)
	}
	for _, cr := range out {
		registerCompiled(cr)
	}
	return len(out), nil
}

func compile(r dslRule) (*compiled, error) {
	if r.ID == "" || r.Message == "" {
		return nil, fmt.Errorf("missing required fields (id/message)")
	}
	if len(r.Where.ValueKinds) == 0 && r.Where.ValueRegex == "" {
		return nil, fmt.Errorf("where needs value_kinds or value_regex")
	}
	c := &compiled{rule: r, kinds: map[ir.Kind]bool{}}
	for _, k := range r.Where.ValueKinds {
		kind, ok := kindNames[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			return nil, fmt.Errorf("unknown value kind %q", k)
		}
		c.kinds[kind] = true
	}
	if r.Where.ValueRegex != "" {
		re, err := regexp.Compile("(?i)" + r.Where.ValueRegex)
		if err != nil {
			return nil, fmt.Errorf("value_regex: %w", err)
		}
		c.reValue = re
	}
	switch t := strings.ToLower(strings.TrimSpace(r.Where.Target)); t {
	case "", "array":
		c.target = "array"
	case "object", "any":
		c.target = t
	default:
		return nil, fmt.Errorf("unknown target %q", r.Where.Target)
	}
	switch o := strings.ToLower(strings.TrimSpace(r.Where.Offset)); o {
	case "", "index":
	case "any":
		c.anyOff = true
	default:
		return nil, fmt.Errorf("unknown offset %q", r.Where.Offset)
	}
	return c, nil
}

func (c *compiled) matches(base rules.Base, offset, val ir.Value) bool {
	if base == nil {
		return false
	}
	switch c.target {
	case "array":
		if !base.IsArray() {
			return false
		}
	case "object":
		if base.IsArray() {
			return false
		}
	}
	if !c.anyOff && !rules.IsElementOffset(offset) {
		return false
	}
	if len(c.kinds) > 0 && !c.kinds[val.Kind] {
		return false
	}
	if c.reValue != nil && (val.Kind != ir.KindString || !c.reValue.MatchString(val.Str)) {
		return false
	}
	return true
}

func registerCompiled(c *compiled) {
	rules.Register(rules.Rule{
		ID:      c.rule.ID,
		Summary: c.rule.Summary,
		New: func(env rules.Env) rules.Analysis {
			return &packAnalysis{c: c, env: env}
		},
	})
}

type packAnalysis struct {
	c   *compiled
	env rules.Env
}

func (a *packAnalysis) PutFieldPre(iid string, base rules.Base, offset, val ir.Value) {
	if a.env.DB == nil || !a.c.matches(base, offset, val) {
		return
	}
	a.env.DB.Increment(Category, a.c.rule.ID, iid)
}

func (a *packAnalysis) EndExecution() {
	limit := a.c.rule.Limit
	if limit <= 0 {
		limit = rules.CurrentSettings().WarningLimit
	}
	var entries reporting.Entries
	if a.env.DB != nil {
		entries = a.env.DB
	}
	r := &reporting.TopN{
		Entries:  entries,
		Resolver: a.env.Resolver,
		Sink:     a.env.Sink,
		Out:      a.env.Out,
		Logger:   a.env.Logger,
		Rule:     a.c.rule.ID,
		Message:  a.c.rule.Message,
	}
	r.Report(Category, a.c.rule.ID, limit)
}
