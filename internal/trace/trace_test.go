package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codewithboateng/jitprof/internal/arraytype"
	"github.com/codewithboateng/jitprof/internal/counter"
	"github.com/codewithboateng/jitprof/internal/ir"
	"github.com/codewithboateng/jitprof/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// switchTrace stores a string into a numeric array twice from one site and
// once from another; the second store from site 7 hits an already
// non-numeric array and must not count.
const switchTrace = `{"op":"script","sid":1,"file":"app.js"}
{"op":"iid","sid":1,"iid":7,"pos":[3,5,3,12]}
{"op":"iid","sid":1,"iid":9,"pos":[8,1,8,20]}
{"op":"alloc","id":1,"kind":"array","elems":[1,2,3]}
{"op":"alloc","id":2,"kind":"array","elems":[4.5]}
{"op":"alloc","id":3,"kind":"object"}
{"op":"put","sid":1,"iid":7,"base":1,"offset":3,"val":"x"}
{"op":"put","sid":1,"iid":7,"base":1,"offset":4,"val":"y"}
{"op":"put","sid":1,"iid":9,"base":2,"offset":"1","val":true}
{"op":"put","sid":1,"iid":9,"base":3,"offset":0,"val":"z"}
{"op":"put","sid":1,"iid":9,"base":99,"offset":0,"val":"z"}
{"op":"end"}
{"op":"put","sid":1,"iid":9,"base":1,"offset":0,"val":"after end"}
`

func newReplayer(db *counter.Counter, sum *rules.Summary, out io.Writer) *Replayer {
	sources := NewSourceMap()
	sess := rules.NewSession(rules.Env{
		DB:       db,
		Shadow:   ShadowOf,
		Resolver: sources,
		Sink:     sum,
		Out:      out,
		Logger:   quiet(),
	})
	return &Replayer{Session: sess, Sources: sources, Logger: quiet()}
}

func TestReplay_CountsTransitionsPerSite(t *testing.T) {
	db := counter.New()
	sum := &rules.Summary{}
	var out bytes.Buffer
	rp := newReplayer(db, sum, &out)

	st, diags, err := rp.Replay(context.Background(), strings.NewReader(switchTrace), "app.jsonl")
	require.NoError(t, err)
	assert.Empty(t, diags.Warnings)
	assert.Equal(t, 12, st.Events)
	assert.Equal(t, 5, st.Puts)
	assert.Equal(t, 3, st.ArrayPuts)
	assert.Equal(t, 2, st.Arrays)

	assert.Equal(t, 1, db.Count(counter.Key{Category: arraytype.Category, Subcategory: arraytype.Subcategory, Location: "1:7"}))
	assert.Equal(t, 1, db.Count(counter.Key{Category: arraytype.Category, Subcategory: arraytype.Subcategory, Location: "1:9"}))

	rp.Session.EndExecution()
	ws := sum.Warnings()
	require.Len(t, ws, 2)
	locs := []string{ws[0].Location, ws[1].Location}
	assert.ElementsMatch(t, []string{"(app.js:3:5:3:12)", "(app.js:8:1:8:20)"}, locs)
	assert.Contains(t, out.String(), "Number of switching array type spotted: 2")
}

func TestReplay_ShadowlessArrayIsIgnored(t *testing.T) {
	db := counter.New()
	rp := newReplayer(db, &rules.Summary{}, io.Discard)
	in := `{"op":"alloc","id":1,"kind":"array","elems":[1],"shadow":false}
{"op":"put","sid":1,"iid":1,"base":1,"offset":1,"val":"s"}`
	_, _, err := rp.Replay(context.Background(), strings.NewReader(in), "t")
	require.NoError(t, err)
	assert.Zero(t, db.Len())
}

func TestReplay_AppliesWritesAfterAnalysis(t *testing.T) {
	db := counter.New()
	rp := newReplayer(db, &rules.Summary{}, io.Discard)
	// The lazy scan on the first write must see [1], not the string being
	// stored, so the write counts as a switch.
	in := `{"op":"alloc","id":1,"kind":"array","elems":[1]}
{"op":"put","sid":1,"iid":1,"base":1,"offset":0,"val":"s"}
{"op":"alloc","id":2,"kind":"array","elems":[]}
{"op":"put","sid":1,"iid":2,"base":2,"offset":"length","val":2}
{"op":"put","sid":1,"iid":3,"base":2,"offset":0,"val":1}
{"op":"put","sid":1,"iid":4,"base":2,"offset":1,"val":"s"}`
	_, _, err := rp.Replay(context.Background(), strings.NewReader(in), "t")
	require.NoError(t, err)

	key := func(loc string) counter.Key {
		return counter.Key{Category: arraytype.Category, Subcategory: arraytype.Subcategory, Location: loc}
	}
	assert.Equal(t, 1, db.Count(key("1:1")))
	// "length" is not an element offset; the holes it creates leave the
	// array Unknown until the number at 1:3 makes it Numeric.
	assert.Zero(t, db.Count(key("1:2")))
	assert.Zero(t, db.Count(key("1:3")))
	assert.Equal(t, 1, db.Count(key("1:4")))
}

func TestReplay_BadOperandsBecomeDiagnostics(t *testing.T) {
	rp := newReplayer(counter.New(), &rules.Summary{}, io.Discard)
	in := `{"op":"alloc","id":1,"kind":"array","elems":[1,}
{"op":"alloc","id":2,"kind":"array","elems":[[1,]]}
{"op":"put","sid":1,"iid":1,"base":2,"offset":0,"val":[1,]}`
	_, diags, err := rp.Replay(context.Background(), strings.NewReader(in), "bad")
	require.NoError(t, err)
	assert.NotEmpty(t, diags.Warnings)
}

func TestReplay_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rp := newReplayer(counter.New(), &rules.Summary{}, io.Discard)
	_, _, err := rp.Replay(ctx, strings.NewReader(switchTrace), "t")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestObjectSet(t *testing.T) {
	o := newObject(1, true, true, []ir.Value{ir.Number(1)})
	o.set(ir.Number(3), ir.String("a"))
	assert.Equal(t, 4, o.Len())
	assert.True(t, o.At(1).IsUndefined())
	assert.Equal(t, ir.String("a"), o.At(3))

	o.set(ir.String("length"), ir.Number(1))
	assert.Equal(t, 1, o.Len())

	o.set(ir.String("foo"), ir.Number(1))
	o.set(ir.Number(-1), ir.Number(1))
	o.set(ir.Number(1.5), ir.Number(1))
	assert.Equal(t, 1, o.Len())
	assert.True(t, o.At(10).IsUndefined())

	plain := newObject(2, false, true, nil)
	plain.set(ir.Number(0), ir.Number(1))
	assert.Zero(t, plain.Len())

	assert.Nil(t, ShadowOf(newObject(3, true, false, nil)))
	assert.NotNil(t, ShadowOf(o))
	assert.Equal(t, arraytype.Unset, o.Class())
}

func TestIndex(t *testing.T) {
	cases := []struct {
		in   ir.Value
		want int
		ok   bool
	}{
		{ir.Number(0), 0, true},
		{ir.Number(12), 12, true},
		{ir.Number(-1), 0, false},
		{ir.Number(2.5), 0, false},
		{ir.String("7"), 7, true},
		{ir.String("07"), 0, false},
		{ir.String("-1"), 0, false},
		{ir.Bool(true), 0, false},
	}
	for _, c := range cases {
		got, ok := index(c.in)
		assert.Equal(t, c.ok, ok, c.in.String())
		assert.Equal(t, c.want, got, c.in.String())
	}
}

func TestSourceMapResolve(t *testing.T) {
	m := NewSourceMap()
	m.AddScript(1, "app.js")
	m.AddIID(1, 7, []int{3, 5, 3, 12})
	m.AddIID(2, 1, []int{1, 1, 1, 2})

	loc, err := m.Resolve("1:7")
	require.NoError(t, err)
	assert.Equal(t, "(app.js:3:5:3:12)", loc)

	loc, err = m.Resolve("2:1")
	require.NoError(t, err)
	assert.Equal(t, "(script-2:1:1:1:2)", loc)

	for _, bad := range []string{"1:8", "nope", "a:b"} {
		_, err := m.Resolve(bad)
		assert.True(t, errors.Is(err, ErrUnknownLocation), bad)
	}
}

type countingResolver struct{ calls int }

func (c *countingResolver) Resolve(iid string) (string, error) {
	c.calls++
	if iid == "bad" {
		return "", ErrUnknownLocation
	}
	return "(" + iid + ")", nil
}

func TestCachedResolver(t *testing.T) {
	next := &countingResolver{}
	c, err := NewCachedResolver(next, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		loc, err := c.Resolve("1:1")
		require.NoError(t, err)
		assert.Equal(t, "(1:1)", loc)
	}
	assert.Equal(t, 1, next.calls)

	_, err = c.Resolve("bad")
	assert.Error(t, err)
	_, _ = c.Resolve("bad")
	assert.Equal(t, 3, next.calls, "failures are not cached")
}

func writeTrace(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestAnalyze_ConcurrentTracesShareCounter(t *testing.T) {
	dir := t.TempDir()
	const traces = 8
	for i := 0; i < traces; i++ {
		// Every trace stores a string into its own numeric array from the
		// same global site 1:1, so all transitions aggregate on one key.
		body := fmt.Sprintf(`{"op":"script","sid":1,"file":"shared.js"}
{"op":"iid","sid":1,"iid":1,"pos":[1,1,1,5]}
{"op":"alloc","id":%d,"kind":"array","elems":[1,2]}
{"op":"put","sid":1,"iid":1,"base":%d,"offset":0,"val":"s"}
{"op":"end"}
`, i+1, i+1)
		writeTrace(t, dir, fmt.Sprintf("t%02d.jsonl", i), body)
	}

	var out bytes.Buffer
	res, err := Analyze(context.Background(), Options{
		Paths:   []string{dir},
		Workers: 4,
		Out:     &out,
		Logger:  quiet(),
	})
	require.NoError(t, err)
	assert.Len(t, res.Traces, traces)
	assert.Equal(t, traces, res.Stats.Transitions)
	assert.Equal(t, traces, res.Stats.Arrays)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, traces, res.Warnings[0].Count)
	assert.Equal(t, "(shared.js:1:1:1:5)", res.Warnings[0].Location)
	assert.NotEmpty(t, res.Warnings[0].ID)
	assert.Equal(t, 1, strings.Count(out.String(), "Report of switching array type"), "end of execution is delivered once")
}

func TestAnalyze_NoTraces(t *testing.T) {
	_, err := Analyze(context.Background(), Options{Paths: []string{t.TempDir()}, Logger: quiet()})
	assert.Error(t, err)
}

func TestAnalyze_MissingPathIsDiagnostic(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "a.jsonl", switchTrace)
	missing := filepath.Join(dir, "gone.jsonl")
	writeTrace(t, dir, "gone.jsonl", "")
	require.NoError(t, os.Remove(missing))

	res, err := Analyze(context.Background(), Options{Paths: []string{filepath.Join(dir, "a.jsonl"), missing}, Logger: quiet()})
	require.NoError(t, err, "undiscoverable paths are diagnostics")
	assert.NotEmpty(t, res.Diagnostics.Warnings)
}
