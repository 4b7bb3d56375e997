// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package wire

import (
	"errors"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrFunctionValue is returned for function values, which cannot leave the
// process they live in.
var ErrFunctionValue = errors.New("function values cannot cross the process boundary")

// NoneChecker reports whether a value stands for "no value". The host
// passes bridge.IsNone; plugins pass nil and only Go nil maps to null.
type NoneChecker func(v any) bool

// ToValue encodes v. Numbers of every width travel as doubles.
func ToValue(v any, isNone NoneChecker) (*structpb.Value, error) {
	if v == nil || (isNone != nil && isNone(v)) {
		return structpb.NewNullValue(), nil
	}
	switch val := v.(type) {
	case bool:
		return structpb.NewBoolValue(val), nil
	case string:
		return structpb.NewStringValue(val), nil
	case *structpb.Value:
		return val, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return structpb.NewNumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return structpb.NewNumberValue(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return structpb.NewNumberValue(rv.Float()), nil
	case reflect.String:
		return structpb.NewStringValue(rv.String()), nil
	case reflect.Bool:
		return structpb.NewBoolValue(rv.Bool()), nil
	case reflect.Func:
		return nil, ErrFunctionValue
	case reflect.Slice, reflect.Array:
		list, err := ToList(sliceOf(rv), isNone)
		if err != nil {
			return nil, err
		}
		return structpb.NewListValue(list), nil
	}
	return nil, fmt.Errorf("cannot encode %T", v)
}

func sliceOf(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// ToList encodes values in order.
func ToList(values []any, isNone NoneChecker) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(values))}
	for i, v := range values {
		enc, err := ToValue(v, isNone)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		list.Values[i] = enc
	}
	return list, nil
}

// FromValue decodes v into nil, bool, float64, string, []any, or
// map[string]any.
func FromValue(v *structpb.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_NumberValue:
		return k.NumberValue
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_ListValue:
		return FromList(k.ListValue)
	case *structpb.Value_StructValue:
		return k.StructValue.AsMap()
	default:
		return nil
	}
}

// FromList decodes every element of list.
func FromList(list *structpb.ListValue) []any {
	out := make([]any, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, FromValue(v))
	}
	return out
}
