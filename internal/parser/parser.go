package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codewithboateng/jitprof/internal/ir"
)

// Trace ops.
const (
	OpScript = "script"
	OpIID    = "iid"
	OpAlloc  = "alloc"
	OpPut    = "put"
	OpEnd    = "end"
)

// maxLine bounds a single trace line; large array literals can be long.
const maxLine = 16 << 20

// Event is one line of a JSONL execution trace.
type Event struct {
	Op   string `json:"op"`
	SID  int64  `json:"sid,omitempty"`
	IID  int64  `json:"iid,omitempty"`
	File string `json:"file,omitempty"`
	Pos  []int  `json:"pos,omitempty"`

	ID     int64             `json:"id,omitempty"`
	Kind   string            `json:"kind,omitempty"`
	Elems  []json.RawMessage `json:"elems,omitempty"`
	Shadow *bool             `json:"shadow,omitempty"`

	Base   *int64          `json:"base,omitempty"`
	Offset json.RawMessage `json:"offset,omitempty"`
	Val    json.RawMessage `json:"val,omitempty"`
}

type Diagnostics struct {
	Warnings []string
}

func (d *Diagnostics) warnf(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// Discover lists trace files under path. A file path is returned as is; a
// directory is walked for *.jsonl and *.trace files.
func Discover(path string) ([]string, Diagnostics) {
	diags := Diagnostics{}
	fi, err := os.Stat(path)
	if err != nil {
		diags.warnf("cannot stat %s: %v", path, err)
		return nil, diags
	}
	if !fi.IsDir() {
		return []string{filepath.Clean(path)}, diags
	}

	var files []string
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, ".trace") {
			return nil
		}
		files = append(files, p)
		return nil
	})
	sort.Strings(files)

	if len(files) == 0 {
		diags.warnf("no trace files found under %s", path)
	}
	return files, diags
}

// Scan decodes r line by line and calls fn for each event. Blank lines are
// skipped and malformed lines become diagnostics. Scan stops early when fn
// returns false, and returns only read errors.
func Scan(r io.Reader, name string, fn func(line int, ev Event) bool) (Diagnostics, error) {
	diags := Diagnostics{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			diags.warnf("%s:%d: malformed event: %v", name, line, err)
			continue
		}
		switch ev.Op {
		case OpScript, OpIID, OpAlloc, OpPut, OpEnd:
		default:
			diags.warnf("%s:%d: unknown op %q", name, line, ev.Op)
			continue
		}
		if !fn(line, ev) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return diags, fmt.Errorf("read %s: %w", name, err)
	}
	return diags, nil
}

// undefinedTag is the $type spelling of undefined inside arrays.
const undefinedTag = "undefined"

// DecodeValue maps a raw JSON value to an ir.Value. An empty raw value (the
// field was omitted) and {"$type":"undefined"} both mean undefined.
func DecodeValue(raw json.RawMessage) (ir.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ir.Undefined, nil
	}
	switch raw[0] {
	case 'n':
		return ir.Null(), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return ir.Value{}, err
		}
		return ir.Bool(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ir.Value{}, err
		}
		return ir.String(s), nil
	case '{':
		var tagged struct {
			Type string `json:"$type"`
		}
		if err := json.Unmarshal(raw, &tagged); err != nil {
			return ir.Value{}, err
		}
		if tagged.Type == undefinedTag {
			return ir.Undefined, nil
		}
		return ir.Object(), nil
	case '[':
		if !json.Valid(raw) {
			return ir.Value{}, fmt.Errorf("invalid array value")
		}
		return ir.Object(), nil
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return ir.Value{}, err
		}
		return ir.Number(f), nil
	}
}

// Location renders a script file and position the way call sites are
// reported: (file:line:col:endLine:endCol).
func Location(file string, pos []int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(file)
	for _, p := range pos {
		fmt.Fprintf(&sb, ":%d", p)
	}
	sb.WriteByte(')')
	return sb.String()
}
