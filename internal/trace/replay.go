package trace

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/parser"
	"github.com/codewithboateng/jitprof/internal/rules"
)

// Replayer drives recorded traces through a rules session, acting as the
// instrumentation host: it owns the heap model and the shadow slots, and
// calls PutFieldPre before applying each write.
type Replayer struct {
	Session *rules.Session
	Sources *SourceMap
	Logger  *slog.Logger
}

// Replay processes one trace until its end event or EOF. It does not deliver
// the end-of-execution notification; the caller does that once all traces of
// a run are done.
func (rp *Replayer) Replay(ctx context.Context, r io.Reader, name string) (ir.Stats, parser.Diagnostics, error) {
	var (
		stats  ir.Stats
		heap   = make(map[int64]*Object)
		extra  parser.Diagnostics
		ctxErr error
	)
	log := rp.logger().With("trace", name)

	diags, err := parser.Scan(r, name, func(line int, ev parser.Event) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		stats.Events++
		switch ev.Op {
		case parser.OpScript:
			rp.Sources.AddScript(ev.SID, ev.File)
		case parser.OpIID:
			rp.Sources.AddIID(ev.SID, ev.IID, ev.Pos)
		case parser.OpAlloc:
			obj, err := allocate(ev)
			if err != nil {
				extra.Warnings = append(extra.Warnings, name+":"+strconv.Itoa(line)+": "+err.Error())
				return true
			}
			if obj.IsArray() {
				stats.Arrays++
			}
			heap[ev.ID] = obj
		case parser.OpPut:
			stats.Puts++
			off, err1 := parser.DecodeValue(ev.Offset)
			val, err2 := parser.DecodeValue(ev.Val)
			if err1 != nil || err2 != nil {
				extra.Warnings = append(extra.Warnings, name+":"+strconv.Itoa(line)+": undecodable put operand")
				return true
			}
			var base rules.Base
			obj := (*Object)(nil)
			if ev.Base != nil {
				if o, ok := heap[*ev.Base]; ok {
					obj, base = o, o
				}
			}
			if obj != nil && obj.IsArray() {
				stats.ArrayPuts++
			}
			rp.Session.PutFieldPre(ir.GlobalIID(ev.SID, ev.IID), base, off, val)
			if obj != nil {
				obj.set(off, val)
			}
		case parser.OpEnd:
			return false
		}
		return true
	})
	diags.Warnings = append(diags.Warnings, extra.Warnings...)
	if err != nil {
		return stats, diags, err
	}
	if ctxErr != nil {
		return stats, diags, ctxErr
	}
	log.Debug("trace replayed", "events", stats.Events, "puts", stats.Puts, "arrays", stats.Arrays)
	return stats, diags, nil
}

func (rp *Replayer) logger() *slog.Logger {
	if rp.Logger != nil {
		return rp.Logger
	}
	return slog.Default()
}

func allocate(ev parser.Event) (*Object, error) {
	isArray := ev.Kind == "array"
	var elems []ir.Value
	if isArray {
		elems = make([]ir.Value, 0, len(ev.Elems))
		for _, raw := range ev.Elems {
			v, err := parser.DecodeValue(raw)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
	}
	shadow := ev.Shadow == nil || *ev.Shadow
	return newObject(ev.ID, isArray, shadow, elems), nil
}

// index converts an element offset to a dense index.
func index(offset ir.Value) (int, bool) {
	switch offset.Kind {
	case ir.KindNumber:
		f := offset.Num
		if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	case ir.KindString:
		n, err := strconv.Atoi(offset.Str)
		if err != nil || n < 0 || strconv.Itoa(n) != offset.Str {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
