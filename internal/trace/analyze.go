package trace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codewithboateng/jitprof/internal/arraytype"
	"github.com/codewithboateng/jitprof/internal/counter"
	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/parser"
	"github.com/codewithboateng/jitprof/internal/rules"
)

// Options configures one analysis run over a set of traces.
type Options struct {
	// Paths are trace files or directories holding *.jsonl / *.trace files.
	Paths []string
	// Workers bounds how many traces replay at once; <=0 means 1.
	Workers int
	// CacheSize sizes the location cache; <=0 picks a default.
	CacheSize int
	// Out receives the analyses' text reports. Nil discards them.
	Out    io.Writer
	Logger *slog.Logger
}

// Result is what a run produced, before persistence.
type Result struct {
	Traces      []string
	Stats       ir.Stats
	Warnings    []ir.Warning
	Diagnostics parser.Diagnostics
	Counter     *counter.Counter
}

// Analyze replays every discovered trace into one shared session, then
// delivers a single end-of-execution notification and collects warnings.
// Traces run concurrently but share the counter, the source map and the
// analyses.
func Analyze(ctx context.Context, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	var res Result
	for _, p := range opts.Paths {
		files, d := parser.Discover(p)
		res.Traces = append(res.Traces, files...)
		res.Diagnostics.Warnings = append(res.Diagnostics.Warnings, d.Warnings...)
	}
	if len(res.Traces) == 0 {
		return res, fmt.Errorf("no traces to analyze")
	}

	sources := NewSourceMap()
	resolver, err := NewCachedResolver(sources, opts.CacheSize)
	if err != nil {
		return res, err
	}
	db := counter.New()
	summary := &rules.Summary{}
	session := rules.NewSession(rules.Env{
		DB:       db,
		Shadow:   ShadowOf,
		Resolver: resolver,
		Sink:     summary,
		Out:      out,
		Logger:   log,
	})
	rp := &Replayer{Session: session, Sources: sources, Logger: log}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range res.Traces {
		g.Go(func() error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open trace: %w", err)
			}
			defer f.Close()

			st, d, err := rp.Replay(gctx, f, file)
			mu.Lock()
			res.Stats.Add(st)
			res.Diagnostics.Warnings = append(res.Diagnostics.Warnings, d.Warnings...)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	session.EndExecution()

	for _, n := range db.EntriesFor(arraytype.Category, arraytype.Subcategory) {
		res.Stats.Transitions += n
	}
	for _, c := range db.Categories() {
		n := 0
		for range db.EntriesFor(c[0], c[1]) {
			n++
		}
		log.Debug("counted locations", "category", c[0], "subcategory", c[1], "locations", n)
	}
	res.Counter = db
	res.Warnings = rules.Evaluate(summary.Warnings())
	log.Info("analysis finished",
		"traces", len(res.Traces),
		"events", res.Stats.Events,
		"transitions", res.Stats.Transitions,
		"warnings", len(res.Warnings))
	return res, nil
}
