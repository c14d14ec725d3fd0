package reporting

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/codewithboateng/jitprof/internal/counter"
	"github.com/codewithboateng/jitprof/internal/ir"
)

const (
	DefaultLimit = 30

	SwitchArrayTypeRule    = "SwitchArrayType"
	SwitchArrayTypeMessage = "Switching array type"
)

// Entries is the read side of the event counter.
type Entries interface {
	EntriesFor(category, subcategory string) iter.Seq2[counter.Key, int]
}

// Resolver maps a call-site id to a readable source location.
type Resolver interface {
	Resolve(iid string) (string, error)
}

// Sink collects the warnings of a run.
type Sink interface {
	AddWarnings(ws []ir.Warning) error
}

// TopN ranks counted locations and turns the worst ones into warnings.
type TopN struct {
	Entries  Entries
	Resolver Resolver
	Sink     Sink
	Out      io.Writer    // human-readable report lines; may be nil
	Logger   *slog.Logger // diagnostics; nil means slog.Default()

	Rule    string // defaults to SwitchArrayTypeRule
	Message string // defaults to SwitchArrayTypeMessage
}

type ranked struct {
	iid   string
	count int
}

// Report emits at most limit warnings for (category, subcategory), highest
// count first, ties broken by ascending location id. The summary line counts
// every distinct location, reported or not. Collaborator failures
// are logged and never returned: reporting is best effort.
func (r *TopN) Report(category, subcategory string, limit int) []ir.Warning {
	if limit <= 0 {
		limit = DefaultLimit
	}
	log := r.logger().With("category", category, "subcategory", subcategory)

	var all []ranked
	if r.Entries != nil {
		for k, n := range r.Entries.EntriesFor(category, subcategory) {
			all = append(all, ranked{iid: k.Location, count: n})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count == all[j].count {
			return all[i].iid < all[j].iid
		}
		return all[i].count > all[j].count
	})
	total := len(all)
	if total > limit {
		all = all[:limit]
	}

	r.println(log, "---------------------------")
	noun := strings.ToLower(r.message())
	r.println(log, "Report of "+noun)

	warnings := make([]ir.Warning, 0, len(all))
	for _, e := range all {
		loc := r.resolve(log, e.iid)
		r.println(log, fmt.Sprintf(" * [location: %s]: Number of usages: %d", loc, e.count))
		warnings = append(warnings, ir.Warning{
			RuleID:   r.rule(),
			IID:      e.iid,
			Location: loc,
			Message:  r.message(),
			Count:    e.count,
		})
	}

	r.deliver(log, warnings)

	r.println(log, "...")
	r.println(log, fmt.Sprintf("Number of %s spotted: %d", noun, total))
	r.println(log, fmt.Sprintf("[****]%s: %d", r.rule(), total))
	return warnings
}

func (r *TopN) resolve(log *slog.Logger, iid string) (loc string) {
	if r.Resolver == nil {
		return iid
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn("location resolver panicked", "iid", iid, "panic", p)
			loc = iid
		}
	}()
	s, err := r.Resolver.Resolve(iid)
	if err != nil {
		log.Warn("cannot resolve location", "iid", iid, "err", err)
		return iid
	}
	return s
}

func (r *TopN) deliver(log *slog.Logger, ws []ir.Warning) {
	if r.Sink == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn("warning sink panicked", "panic", p)
		}
	}()
	if err := r.Sink.AddWarnings(ws); err != nil {
		log.Warn("warning sink rejected report", "warnings", len(ws), "err", err)
	}
}

func (r *TopN) println(log *slog.Logger, line string) {
	if r.Out == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn("report log writer panicked", "panic", p)
		}
	}()
	if _, err := io.WriteString(r.Out, line+"\n"); err != nil {
		log.Debug("report log write failed", "err", err)
	}
}

func (r *TopN) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *TopN) rule() string {
	if r.Rule != "" {
		return r.Rule
	}
	return SwitchArrayTypeRule
}

func (r *TopN) message() string {
	if r.Message != "" {
		return r.Message
	}
	return SwitchArrayTypeMessage
}
