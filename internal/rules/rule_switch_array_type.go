package rules

import (
	"math"
	"strconv"
	"strings"

	"github.com/codewithboateng/jitprof/internal/arraytype"
	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/reporting"
)

func init() {
	Register(Rule{
		ID:      reporting.SwitchArrayTypeRule,
		Summary: "Non-numeric value stored into a numeric array; forces an element-kind transition.",
		New:     newSwitchArrayType,
	})
}

type switchArrayType struct {
	env Env
	cls *arraytype.Classifier
}

func newSwitchArrayType(env Env) Analysis {
	return &switchArrayType{
		env: env,
		cls: arraytype.New(env.Shadow, env.incrementer()),
	}
}

func (a *switchArrayType) PutFieldPre(iid string, base Base, offset, val ir.Value) {
	if base == nil || !base.IsArray() || !IsElementOffset(offset) {
		return
	}
	arr, ok := base.(arraytype.Array)
	if !ok {
		return
	}
	if tr, switched := a.cls.Observe(arr, val, iid); switched {
		a.env.logger().Debug("array type switch", "iid", tr.IID, "value", tr.Value.Kind.String())
	}
}

func (a *switchArrayType) EndExecution() {
	r := &reporting.TopN{
		Entries:  a.env.entries(),
		Resolver: a.env.Resolver,
		Sink:     a.env.Sink,
		Out:      a.env.Out,
		Logger:   a.env.logger().With("rule", reporting.SwitchArrayTypeRule),
	}
	r.Report(arraytype.Category, arraytype.Subcategory, rsettings.WarningLimit)
}

// IsElementOffset accepts offsets that address array elements: any non-NaN
// number, or a string that is the canonical decimal spelling of an integer
// ("12", "-1"; not "007", "+5" or "-0").
func IsElementOffset(v ir.Value) bool {
	switch v.Kind {
	case ir.KindNumber:
		return !math.IsNaN(v.Num)
	case ir.KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" || s != v.Str {
			return false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		return err == nil && strconv.FormatInt(n, 10) == s
	default:
		return false
	}
}
