// Package sexpr provides a participle grammar that parses the rendered
// parenthesized-prefix expression form (package expr's Render output) back
// into an expr.OpNode, the round-trip half of spec.md §8's testable
// property: "serializing an op-AST to the S-expression form and parsing it
// yields a structurally equal AST (modulo fresh variable names)".
//
// Grounded on the teacher's own participle grammar (grammar/lexer.go,
// grammar/grammar.go): a stateful lexer plus a struct-tagged grammar, scaled
// down to the handful of tokens a prefix arithmetic expression needs.
package sexpr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var sexprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Float", Pattern: `[-+]?[0-9]+\.[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `[-+*/]`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Expr is one node of the parsed tree: a branch ("(" op args... ")") or a
// leaf (a float constant or a bare variable name).
type Expr struct {
	Branch *Branch `  @@`
	Leaf   *Leaf   `| @@`
}

// Branch is a parenthesized operator application. Op accepts either an
// Ident (named ops registered without a symbol) or an Op punctuation
// token (the "+"/"-"/"*"/"/" symbols expr.Render actually emits for the
// standard arithmetic ops).
type Branch struct {
	Op   string  `"(" @(Ident | Op)`
	Args []*Expr `@@* ")"`
}

// Leaf is a constant witness (a float literal) or an abstracted variable
// (a bare identifier).
type Leaf struct {
	Number *float64 `  @Float`
	Name   *string  `| @Ident`
}

var parser = participle.MustBuild[Expr](
	participle.Lexer(sexprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)
