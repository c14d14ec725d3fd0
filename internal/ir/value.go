package ir

import (
	"fmt"
	"strconv"
)

// Kind is the runtime type tag of a traced value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a traced program value. Only the kind matters to the analyses;
// the payload fields exist so the host can keep a faithful array model.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

// Undefined is the absent-value sentinel.
var Undefined = Value{}

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Null() Value            { return Value{Kind: KindNull} }
func Object() Value          { return Value{Kind: KindObject} }

func (v Value) IsNumber() bool    { return v.Kind == KindNumber }
func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindObject:
		return "[object]"
	default:
		return v.Kind.String()
	}
}

// GlobalIID joins a script id and an instruction id into the opaque
// call-site identifier used as counter location.
func GlobalIID(sid, iid int64) string {
	return fmt.Sprintf("%d:%d", sid, iid)
}
