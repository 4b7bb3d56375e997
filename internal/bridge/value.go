// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

// NoneValue is the type of None.
type NoneValue struct{}

// String implements fmt.Stringer.
func (NoneValue) String() string { return "none" }

// None is the explicit "no value" marker. Absent arguments and results
// always cross the bridge as None, never as an untyped nil.
var None = NoneValue{}

// IsNone reports whether v is None or nil.
func IsNone(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NoneValue)
	return ok
}

// Callback is a function value crossing the bridge. Natives receive
// callbacks for function parameters and may call them at any later point.
type Callback func(ctx context.Context, args ...any) (any, error)

// goTypes is the canonical Go representation of each value kind.
var goTypes = map[Kind]reflect.Type{
	KindBool:     reflect.TypeFor[bool](),
	KindChar8:    reflect.TypeFor[byte](),
	KindInt8:     reflect.TypeFor[int8](),
	KindInt16:    reflect.TypeFor[int16](),
	KindInt32:    reflect.TypeFor[int32](),
	KindInt64:    reflect.TypeFor[int64](),
	KindUint8:    reflect.TypeFor[uint8](),
	KindUint16:   reflect.TypeFor[uint16](),
	KindUint32:   reflect.TypeFor[uint32](),
	KindUint64:   reflect.TypeFor[uint64](),
	KindPtr:      reflect.TypeFor[uintptr](),
	KindFloat:    reflect.TypeFor[float32](),
	KindDouble:   reflect.TypeFor[float64](),
	KindString:   reflect.TypeFor[string](),
	KindFunction: reflect.TypeFor[Callback](),
}

// GoType returns the canonical Go type for t, or nil for void.
func GoType(t Type) reflect.Type {
	elem, ok := goTypes[t.Kind]
	if !ok {
		return nil
	}
	if t.Array {
		return reflect.SliceOf(elem)
	}
	return elem
}

// resolver turns a binding key into a callback for function-typed values
// supplied by name.
type resolver func(key string) (Callback, bool)

// Marshal converts v into the canonical Go representation of t. It is the
// single conversion step every argument and result goes through.
func Marshal(t Type, v any) (any, error) {
	return marshalValue(t, v, nil)
}

func marshalValue(t Type, v any, resolve resolver) (any, error) {
	if IsNone(v) {
		if t.Nullable() {
			return None, nil
		}
		return nil, fmt.Errorf("missing value for %s", t)
	}
	if t.Array {
		return marshalArray(t.Kind, v, resolve)
	}
	return marshalScalar(t.Kind, v, resolve)
}

func marshalArray(kind Kind, v any, resolve resolver) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected %s[], got %T", kind, v)
	}
	out := reflect.MakeSlice(reflect.SliceOf(goTypes[kind]), rv.Len(), rv.Len())
	for i := range rv.Len() {
		elem, err := marshalScalar(kind, rv.Index(i).Interface(), resolve)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}

func marshalScalar(kind Kind, v any, resolve resolver) (any, error) {
	switch kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		// Named string types such as lua.LString.
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case KindFunction:
		return marshalFunction(v, resolve)
	default:
		if kind.IsNumeric() {
			return marshalNumber(kind, v)
		}
		return nil, fmt.Errorf("kind %s cannot carry a value", kind)
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, v)
}

func marshalFunction(v any, resolve resolver) (any, error) {
	switch fn := v.(type) {
	case Callback:
		return fn, nil
	case func(context.Context, ...any) (any, error):
		return Callback(fn), nil
	case string:
		if resolve == nil {
			return nil, fmt.Errorf("function reference %q cannot be resolved here", fn)
		}
		cb, ok := resolve(fn)
		if !ok {
			return nil, fmt.Errorf("function reference %q is not a registered binding", fn)
		}
		return cb, nil
	}
	return nil, fmt.Errorf("expected function, got %T", v)
}

// numberClass records which representation a numeric input arrived in.
type numberClass int

const (
	classSigned numberClass = iota
	classUnsigned
	classFloat
)

type number struct {
	class numberClass
	i     int64
	u     uint64
	f     float64
}

func readNumber(v any) (number, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{class: classSigned, i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{class: classUnsigned, u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{class: classFloat, f: rv.Float()}, true
	default:
		return number{}, false
	}
}

// signedBits and unsignedBits give the width of each integer kind.
var (
	signedBits   = map[Kind]int{KindInt8: 8, KindInt16: 16, KindInt32: 32, KindInt64: 64}
	unsignedBits = map[Kind]int{KindChar8: 8, KindUint8: 8, KindUint16: 16, KindUint32: 32, KindUint64: 64, KindPtr: 64}
)

func marshalNumber(kind Kind, v any) (any, error) {
	n, ok := readNumber(v)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %T", kind, v)
	}

	switch kind {
	case KindFloat:
		f := n.float()
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("value %v overflows %s", f, kind)
		}
		return float32(f), nil
	case KindDouble:
		return n.float(), nil
	}

	if bits, ok := signedBits[kind]; ok {
		i, ok := n.signed(bits)
		if !ok {
			return nil, fmt.Errorf("value %v does not fit %s", v, kind)
		}
		return reflect.ValueOf(i).Convert(goTypes[kind]).Interface(), nil
	}

	bits := unsignedBits[kind]
	u, ok := n.unsigned(bits)
	if !ok {
		return nil, fmt.Errorf("value %v does not fit %s", v, kind)
	}
	return reflect.ValueOf(u).Convert(goTypes[kind]).Interface(), nil
}

func (n number) float() float64 {
	switch n.class {
	case classSigned:
		return float64(n.i)
	case classUnsigned:
		return float64(n.u)
	default:
		return n.f
	}
}

func (n number) signed(bits int) (int64, bool) {
	lo := int64(-1) << (bits - 1)
	hi := -(lo + 1)
	switch n.class {
	case classSigned:
		return n.i, n.i >= lo && n.i <= hi
	case classUnsigned:
		return int64(n.u), n.u <= uint64(hi) //nolint:gosec // range checked in the same expression
	default:
		if n.f != math.Trunc(n.f) || n.f < math.Ldexp(-1, bits-1) || n.f >= math.Ldexp(1, bits-1) {
			return 0, false
		}
		return int64(n.f), true
	}
}

func (n number) unsigned(bits int) (uint64, bool) {
	hi := uint64(math.MaxUint64)
	if bits < 64 {
		hi = uint64(1)<<bits - 1
	}
	switch n.class {
	case classSigned:
		return uint64(n.i), n.i >= 0 && uint64(n.i) <= hi //nolint:gosec // sign checked first
	case classUnsigned:
		return n.u, n.u <= hi
	default:
		if n.f != math.Trunc(n.f) || n.f < 0 || n.f >= math.Ldexp(1, bits) {
			return 0, false
		}
		return uint64(n.f), true
	}
}
