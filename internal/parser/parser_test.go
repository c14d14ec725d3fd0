package parser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewithboateng/jitprof/internal/ir"
)

const sampleTrace = `{"op":"script","sid":1,"file":"app.js"}
{"op":"iid","sid":1,"iid":7,"pos":[3,5,3,12]}

# comment lines are ignored
{"op":"alloc","id":1,"kind":"array","elems":[1,2,{"$type":"undefined"}]}
{"op":"put","sid":1,"iid":7,"base":1,"offset":3,"val":"x"}
{"op":"bogus"}
not json
{"op":"end"}
`

func TestScan_EventsAndDiagnostics(t *testing.T) {
	var ops []string
	var lines []int
	diags, err := Scan(strings.NewReader(sampleTrace), "app.jsonl", func(line int, ev Event) bool {
		ops = append(ops, ev.Op)
		lines = append(lines, line)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{OpScript, OpIID, OpAlloc, OpPut, OpEnd}, ops)
	assert.Equal(t, []int{1, 2, 5, 6, 9}, lines)
	require.Len(t, diags.Warnings, 2)
	assert.Contains(t, diags.Warnings[0], `app.jsonl:7: unknown op "bogus"`)
	assert.Contains(t, diags.Warnings[1], "app.jsonl:8: malformed event")
}

func TestScan_StopsEarly(t *testing.T) {
	n := 0
	_, err := Scan(strings.NewReader(sampleTrace), "t", func(int, Event) bool {
		n++
		return n < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestScan_PutFields(t *testing.T) {
	in := `{"op":"put","sid":2,"iid":9,"base":4,"offset":"1","val":null}
{"op":"put","sid":2,"iid":9,"offset":0}`
	var evs []Event
	_, err := Scan(strings.NewReader(in), "t", func(_ int, ev Event) bool {
		evs = append(evs, ev)
		return true
	})
	require.NoError(t, err)
	require.Len(t, evs, 2)

	require.NotNil(t, evs[0].Base)
	assert.EqualValues(t, 4, *evs[0].Base)
	v, err := DecodeValue(evs[0].Val)
	require.NoError(t, err)
	assert.Equal(t, ir.KindNull, v.Kind)
	off, err := DecodeValue(evs[0].Offset)
	require.NoError(t, err)
	assert.Equal(t, ir.String("1"), off)

	assert.Nil(t, evs[1].Base)
	v, err = DecodeValue(evs[1].Val)
	require.NoError(t, err)
	assert.True(t, v.IsUndefined(), "omitted val is undefined")
}

func TestDecodeValue(t *testing.T) {
	cases := map[string]ir.Value{
		`42`:                    ir.Number(42),
		`-1.5e3`:                ir.Number(-1500),
		`"42"`:                  ir.String("42"),
		`true`:                  ir.Bool(true),
		`null`:                  ir.Null(),
		`{"$type":"undefined"}`: ir.Undefined,
		`{"a":1}`:               ir.Object(),
		`{"$type":"symbol"}`:    ir.Object(),
		`[1,2]`:                 ir.Object(),
		` 7 `:                   ir.Number(7),
	}
	for raw, want := range cases {
		got, err := DecodeValue(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := DecodeValue(json.RawMessage(`[1,`))
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jsonl", "a.trace", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.jsonl"), []byte("{}\n"), 0o644))

	files, diags := Discover(dir)
	assert.Empty(t, diags.Warnings)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.trace"),
		filepath.Join(dir, "b.jsonl"),
		filepath.Join(dir, "sub", "c.jsonl"),
	}, files)

	single, _ := Discover(filepath.Join(dir, "notes.txt"))
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, single)

	_, diags = Discover(filepath.Join(dir, "missing"))
	assert.Len(t, diags.Warnings, 1)

	empty := t.TempDir()
	files, diags = Discover(empty)
	assert.Empty(t, files)
	assert.Len(t, diags.Warnings, 1)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "(app.js:3:5:3:12)", Location("app.js", []int{3, 5, 3, 12}))
	assert.Equal(t, "(app.js)", Location("app.js", nil))
}

// Fuzz the scanner with arbitrary content to ensure we never panic.
func FuzzScanNoPanic(f *testing.F) {
	seeds := []string{
		sampleTrace,
		`{"op":"put","base":1,"offset":{"$type":"undefined"},"val":[1,{"x":2}]}`,
		"garbage-but-should-not-panic\n",
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Scan(strings.NewReader(string(data)), "fuzz", func(_ int, ev Event) bool {
			_, _ = DecodeValue(ev.Val)
			_, _ = DecodeValue(ev.Offset)
			for _, e := range ev.Elems {
				_, _ = DecodeValue(e)
			}
			return true
		})
	})
}
