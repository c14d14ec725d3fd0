package trace

import (
	"github.com/codewithboateng/jitprof/internal/arraytype"
	"github.com/codewithboateng/jitprof/internal/ir"
)

// Object is the replay host's model of a heap object. Arrays keep their
// elements so the classifier can scan them; other objects are opaque.
type Object struct {
	ID    int64
	array bool
	elems []ir.Value

	// slot is the embedded shadow state; nil when the traced host could not
	// attach one.
	slot *arraytype.State
}

func newObject(id int64, array, shadow bool, elems []ir.Value) *Object {
	o := &Object{ID: id, array: array, elems: elems}
	if shadow {
		o.slot = &arraytype.State{}
	}
	return o
}

func (o *Object) IsArray() bool { return o.array }
func (o *Object) Len() int      { return len(o.elems) }

func (o *Object) At(i int) ir.Value {
	if i < 0 || i >= len(o.elems) {
		return ir.Undefined
	}
	return o.elems[i]
}

// Class exposes the current classification, for inspection and tests.
func (o *Object) Class() arraytype.Class {
	if o.slot == nil {
		return arraytype.Unset
	}
	return o.slot.Class
}

// maxDenseIndex caps how far a single write may grow the modelled array.
const maxDenseIndex = 1 << 24

// set performs base[offset] = val after the analyses have seen it. Only
// dense integer indexes and "length" change the model.
func (o *Object) set(offset, val ir.Value) {
	if !o.array {
		return
	}
	if offset.Kind == ir.KindString && offset.Str == "length" {
		if val.IsNumber() && val.Num >= 0 && val.Num <= maxDenseIndex && val.Num == float64(int(val.Num)) {
			o.resize(int(val.Num))
		}
		return
	}
	idx, ok := index(offset)
	if !ok || idx > maxDenseIndex {
		return
	}
	if idx >= len(o.elems) {
		o.resize(idx + 1)
	}
	o.elems[idx] = val
}

func (o *Object) resize(n int) {
	if n <= len(o.elems) {
		o.elems = o.elems[:n]
		return
	}
	for len(o.elems) < n {
		o.elems = append(o.elems, ir.Undefined)
	}
}

// ShadowOf is the host's shadow-slot lookup handed to the classifier.
func ShadowOf(arr arraytype.Array) *arraytype.State {
	o, ok := arr.(*Object)
	if !ok || o == nil {
		return nil
	}
	return o.slot
}
