// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the shape of a single value crossing the bridge.
type Kind uint8

// Value kinds supported by the bridge.
const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindChar8
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindPtr
	KindFloat
	KindDouble
	KindString
	KindFunction
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindVoid:     "void",
	KindBool:     "bool",
	KindChar8:    "char8",
	KindInt8:     "int8",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindUint8:    "uint8",
	KindUint16:   "uint16",
	KindUint32:   "uint32",
	KindUint64:   "uint64",
	KindPtr:      "ptr",
	KindFloat:    "float",
	KindDouble:   "double",
	KindString:   "string",
	KindFunction: "function",
}

// kindAliases maps accepted spellings to kinds. "int" is int64 and
// "uint" is uint64 so signatures can be written without width noise.
var kindAliases = map[string]Kind{
	"int":     KindInt64,
	"uint":    KindUint64,
	"char":    KindChar8,
	"byte":    KindUint8,
	"func":    KindFunction,
	"str":     KindString,
	"float32": KindFloat,
	"float64": KindDouble,
}

// String returns the signature spelling of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindInvalid]
}

// ParseKind resolves a kind name or alias.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(name)
	for k, n := range kindNames {
		if n == name && Kind(k) != KindInvalid {
			return Kind(k), true
		}
	}
	if k, ok := kindAliases[name]; ok {
		return k, true
	}
	return KindInvalid, false
}

// IsNumeric reports whether the kind is an integer or floating point kind.
func (k Kind) IsNumeric() bool {
	return k >= KindChar8 && k <= KindDouble
}

// Type is a kind optionally wrapped in an array.
type Type struct {
	Kind  Kind
	Array bool
	// Optional admits None in place of a value, spelled with a trailing "?".
	Optional bool
}

// String returns the signature spelling of the type.
func (t Type) String() string {
	s := t.Kind.String()
	if t.Array {
		s += "[]"
	}
	if t.Optional {
		s += "?"
	}
	return s
}

// Nullable reports whether None is an acceptable value for the type.
func (t Type) Nullable() bool {
	return t.Optional
}

// Param describes one parameter of a signature.
type Param struct {
	Type Type
	// Ref marks a by-reference parameter the native may overwrite.
	Ref bool
}

// String returns the signature spelling of the parameter.
func (p Param) String() string {
	if p.Ref {
		return "ref " + p.Type.String()
	}
	return p.Type.String()
}

// Signature is the argument and return shape of a binding.
type Signature struct {
	Params []Param
	Return Type
}

// String renders the signature in the same form ParseSignature accepts.
func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> ")
	ret := s.Return
	if ret.Kind == KindInvalid {
		ret.Kind = KindVoid
	}
	b.WriteString(ret.String())
	return b.String()
}

// Arity returns the number of parameters.
func (s Signature) Arity() int {
	return len(s.Params)
}

// Void reports whether the signature returns no value.
func (s Signature) Void() bool {
	return s.Return.Kind == KindVoid || s.Return.Kind == KindInvalid
}

// Equal reports whether two signatures describe the same shape.
func (s Signature) Equal(other Signature) bool {
	if len(s.Params) != len(other.Params) || s.Void() != other.Void() {
		return false
	}
	if !s.Void() && s.Return != other.Return {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != other.Params[i] {
			return false
		}
	}
	return true
}

// Validate checks the structural rules of a signature: parameters may not
// be void, arrays may not hold void or function values, function values
// cannot be passed by reference.
func (s Signature) Validate() error {
	for i, p := range s.Params {
		if err := validateType(p.Type, false); err != nil {
			return errInvalidSignature(s.String(), fmt.Errorf("parameter %d: %w", i, err))
		}
		if p.Ref && p.Type.Kind == KindFunction {
			return errInvalidSignature(s.String(), fmt.Errorf("parameter %d: function cannot be passed by reference", i))
		}
	}
	if err := validateType(s.Return, true); err != nil {
		return errInvalidSignature(s.String(), err)
	}
	return nil
}

func validateType(t Type, allowVoid bool) error {
	switch {
	case t.Kind == KindInvalid && (!allowVoid || t.Array):
		return errors.New("invalid kind")
	case t.Kind == KindVoid && (!allowVoid || t.Array):
		return errors.New("void is only valid as a return type")
	case t.Kind == KindFunction && t.Array:
		return errors.New("arrays of functions are not supported")
	case t.Kind == KindVoid && t.Optional:
		return errors.New("void cannot be optional")
	case int(t.Kind) >= len(kindNames):
		return errors.New("unknown kind")
	}
	return nil
}
