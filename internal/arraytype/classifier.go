// Package arraytype tracks, per array, whether its observed elements have
// been purely numeric, and reports the first write that pollutes a numeric
// array with a value that is neither a number nor undefined. Engines switch
// the backing store of such arrays, which is expensive.
package arraytype

import (
	"sync"

	"github.com/codewithboateng/jitprof/internal/ir"
)

// Counter categories used for array type switches.
const (
	Category    = "JIT-checker"
	Subcategory = "arr-type-switch"
)

// Class is the element-type classification of one array.
type Class uint8

const (
	Unset      Class = iota // not computed yet
	Unknown                 // only undefined observed
	Numeric                 // numbers and undefined only
	NonNumeric              // at least one other value; terminal
)

func (c Class) String() string {
	switch c {
	case Unset:
		return "unset"
	case Unknown:
		return "unknown"
	case Numeric:
		return "numeric"
	case NonNumeric:
		return "non-numeric"
	default:
		return "invalid"
	}
}

// State is the per-array shadow slot. The host allocates it and keeps it
// for the array's lifetime; the classifier only reads and writes Class.
type State struct {
	Class Class
}

// Array is the read view of an instrumented array.
type Array interface {
	Len() int
	At(i int) ir.Value
}

// ShadowFunc returns the slot attached to arr, or nil when the host could
// not attach one.
type ShadowFunc func(arr Array) *State

// Incrementer receives one call per detected switch.
type Incrementer interface {
	Increment(category, subcategory, location string)
}

// Transition is the signal returned for a numeric array receiving a
// non-numeric value.
type Transition struct {
	IID   string
	Value ir.Value
}

// Classifier is safe for concurrent use; all slot updates go through one
// lock.
type Classifier struct {
	mu     sync.Mutex
	shadow ShadowFunc
	db     Incrementer
}

func New(shadow ShadowFunc, db Incrementer) *Classifier {
	return &Classifier{shadow: shadow, db: db}
}

// Observe is called for every element write to arr. Callers filter out
// non-array bases and non-index offsets beforehand.
func (c *Classifier) Observe(arr Array, val ir.Value, iid string) (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.shadow(arr)
	if st == nil {
		return Transition{}, false
	}
	if st.Class == Unset {
		st.Class = scan(arr)
	}

	// Non-numeric to numeric is not tracked: it would need a rescan.
	switch st.Class {
	case Numeric:
		if !numericOrUndefined(val) {
			st.Class = NonNumeric
			if c.db != nil {
				c.db.Increment(Category, Subcategory, iid)
			}
			return Transition{IID: iid, Value: val}, true
		}
	case Unknown:
		switch {
		case val.IsNumber():
			st.Class = Numeric
		case val.IsUndefined():
		default:
			st.Class = NonNumeric
		}
	}
	return Transition{}, false
}

// scan computes the initial class from the elements present now. It runs
// once per array; later growth is never rescanned.
func scan(arr Array) Class {
	class := Unknown
	for i := 0; i < arr.Len(); i++ {
		v := arr.At(i)
		if !numericOrUndefined(v) {
			return NonNumeric
		}
		if v.IsNumber() {
			class = Numeric
		}
	}
	return class
}

func numericOrUndefined(v ir.Value) bool {
	return v.IsNumber() || v.IsUndefined()
}
