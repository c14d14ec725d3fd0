package rules

import (
	"io"
	"log/slog"

	"github.com/codewithboateng/jitprof/internal/arraytype"
	"github.com/codewithboateng/jitprof/internal/counter"
	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/reporting"
)

// Rule represents a single dynamic analysis attached to a run.
type Rule struct {
	ID      string
	Summary string
	// New builds the analysis instance for one run.
	New func(env Env) Analysis
}

// Base is the target object of an intercepted property write.
type Base interface {
	IsArray() bool
}

// Analysis receives the host's instrumentation callbacks.
type Analysis interface {
	// PutFieldPre runs before base[offset] = val is performed.
	PutFieldPre(iid string, base Base, offset, val ir.Value)
	// EndExecution runs once, after the program has finished.
	EndExecution()
}

// Env carries the run-wide collaborators shared by every analysis.
type Env struct {
	DB       *counter.Counter
	Shadow   arraytype.ShadowFunc
	Resolver reporting.Resolver
	Sink     reporting.Sink
	Out      io.Writer
	Logger   *slog.Logger
}

// incrementer and entries hide a nil *counter.Counter behind a nil
// interface, so collaborators' nil checks hold.
func (e Env) incrementer() arraytype.Incrementer {
	if e.DB == nil {
		return nil
	}
	return e.DB
}

func (e Env) entries() reporting.Entries {
	if e.DB == nil {
		return nil
	}
	return e.DB
}

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
