// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// signatureLexer splits "->" and "[]" into single tokens so the grammar
// stays free of character-level sequencing.
var signatureLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Arrow", Pattern: `->`},
	{Name: "Brackets", Pattern: `\[\s*\]`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[(),?]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// signatureAST matches: "(" [ param { "," param } ] ")" [ "->" type ]
type signatureAST struct {
	Params []*paramAST `parser:"'(' ( @@ ( ',' @@ )* )? ')'"`
	Return *typeAST    `parser:"( '->' @@ )?"`
}

// paramAST matches: [ "ref" ] type
type paramAST struct {
	Ref  bool     `parser:"@'ref'?"`
	Type *typeAST `parser:"@@"`
}

// typeAST matches: ident [ "[]" ] [ "?" ]
type typeAST struct {
	Name     string `parser:"@Ident"`
	Array    bool   `parser:"@Brackets?"`
	Optional bool   `parser:"@'?'?"`
}

var signatureParser = participle.MustBuild[signatureAST](
	participle.Lexer(signatureLexer),
	participle.UseLookahead(2),
)

// ParseSignature parses the textual form of a signature, for example
// "(int32, int32) -> int32" or "(string[], ref int64) -> string?". A
// missing return clause means void. A trailing "?" makes a type optional;
// only optional types accept None.
func ParseSignature(text string) (Signature, error) {
	ast, err := signatureParser.ParseString("", text)
	if err != nil {
		return Signature{}, errInvalidSignature(text, err)
	}

	sig := Signature{
		Params: make([]Param, 0, len(ast.Params)),
		Return: Type{Kind: KindVoid},
	}
	for i, p := range ast.Params {
		t, err := p.Type.resolve()
		if err != nil {
			return Signature{}, errInvalidSignature(text, fmt.Errorf("parameter %d: %w", i, err))
		}
		sig.Params = append(sig.Params, Param{Type: t, Ref: p.Ref})
	}
	if ast.Return != nil {
		t, err := ast.Return.resolve()
		if err != nil {
			return Signature{}, errInvalidSignature(text, fmt.Errorf("return: %w", err))
		}
		sig.Return = t
	}

	if err := sig.Validate(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// MustParseSignature is ParseSignature for signatures known at compile
// time. It panics on malformed input.
func MustParseSignature(text string) Signature {
	sig, err := ParseSignature(text)
	if err != nil {
		panic(err)
	}
	return sig
}

func (t *typeAST) resolve() (Type, error) {
	kind, ok := ParseKind(t.Name)
	if !ok {
		return Type{}, fmt.Errorf("unknown type %q", t.Name)
	}
	return Type{Kind: kind, Array: t.Array, Optional: t.Optional}, nil
}
