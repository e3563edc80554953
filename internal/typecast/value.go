// Package typecast implements the value-serialization format used for
// structured payloads: a restricted value tree (primitives plus
// list/tuple/dict containers) encoded as a compact format descriptor
// paired with a raw body.
package typecast

import (
	"github.com/nodegraph/wiresock/internal/wsockerr"
)

// Kind identifies the runtime shape of a Value.
type Kind int

const (
	KindString Kind = iota
	KindBytes
	KindInt
	KindFloat
	KindBool
	KindNull
	KindList
	KindTuple
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is a closed sum type over the leaves and containers the wire
// protocol knows how to carry. Construct one with the New* functions below;
// inspect one with the As* accessors.
type Value struct {
	kind Kind

	str   string
	bytes []byte
	i     int64
	f     float32
	b     bool

	// List/Tuple elements, in order.
	elems []Value

	// Dict entries, in insertion order (order is not meaningful across
	// the wire, but keeping it makes encoding deterministic for tests).
	keys   []string
	values []Value
}

func (v Value) Kind() Kind { return v.kind }

func NewString(s string) Value { return Value{kind: KindString, str: s} }
func NewBytes(b []byte) Value  { return Value{kind: KindBytes, bytes: append([]byte(nil), b...)} }
func NewInt(i int64) Value     { return Value{kind: KindInt, i: i} }
func NewFloat(f float32) Value { return Value{kind: KindFloat, f: f} }
func NewBool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Null() Value              { return Value{kind: KindNull} }

func NewList(elems []Value) Value  { return Value{kind: KindList, elems: elems} }
func NewTuple(elems []Value) Value { return Value{kind: KindTuple, elems: elems} }

// NewDict builds a dict Value from parallel key/value slices. Keys must be
// distinct; order is preserved for deterministic encoding.
func NewDict(keys []string, values []Value) (Value, error) {
	if len(keys) != len(values) {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "dict keys (%d) and values (%d) differ in length", len(keys), len(values))
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "duplicate dict key %q", k)
		}
		seen[k] = struct{}{}
	}
	return Value{kind: KindDict, keys: append([]string(nil), keys...), values: append([]Value(nil), values...)}, nil
}

// NewDictFromMap builds a dict Value from a Go map. Map iteration order is
// randomized by Go, so prefer NewDict when deterministic wire output
// matters (e.g. in tests).
func NewDictFromMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	values := make([]Value, 0, len(m))
	for k, v := range m {
		keys = append(keys, k)
		values = append(values, v)
	}
	v, _ := NewDict(keys, values)
	return v
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsFloat() (float32, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsSlice() ([]Value, bool) {
	if v.kind != KindList && v.kind != KindTuple {
		return nil, false
	}
	return v.elems, true
}

// AsDict returns the dict's keys and values in insertion order.
func (v Value) AsDict() (keys []string, values []Value, ok bool) {
	if v.kind != KindDict {
		return nil, nil, false
	}
	return v.keys, v.values, true
}

// Equal reports whether two Values represent the same data. Used by the
// round-trip property tests; not wired into the public API.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.str == b.str
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindBool:
		return a.b == b.b
	case KindNull:
		return true
	case KindList, KindTuple:
		if len(a.elems) != len(b.elems) {
			return false
		}
		for i := range a.elems {
			if !Equal(a.elems[i], b.elems[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.keys) != len(b.keys) {
			return false
		}
		bIdx := make(map[string]Value, len(b.keys))
		for i, k := range b.keys {
			bIdx[k] = b.values[i]
		}
		for i, k := range a.keys {
			bv, ok := bIdx[k]
			if !ok || !Equal(a.values[i], bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
