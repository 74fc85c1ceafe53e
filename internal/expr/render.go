package expr

import (
	"fmt"
	"strings"

	"shadowprobe/internal/hostir"
)

// VariablePool is the fixed stable-name pool spec §4.5 draws from when
// substituting variables during emission, in first-use order.
var VariablePool = []string{"x", "y", "z", "w", "a", "b", "c", "d"}

// VarName returns the i'th stable variable name, falling back to v8, v9,
// ... once the fixed pool is exhausted.
func VarName(i int) string {
	if i < len(VariablePool) {
		return VariablePool[i]
	}
	return fmt.Sprintf("v%d", i)
}

// OpSymbols names the common arithmetic/transcendental opcodes a report
// renders with their conventional symbol instead of a numeric opcode.
// Unregistered opcodes fall back to hostir's numeric name.
var OpSymbols = map[hostir.OpCode]string{}

// DefineSymbol registers a display name for op, used by both Render and
// the round-trip parser in package report/sexpr.
func DefineSymbol(op hostir.OpCode, symbol string) {
	OpSymbols[op] = symbol
}

func opSymbol(op hostir.OpCode) string {
	if s, ok := OpSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("op%d", int(op))
}

// OpCodeForSymbol is Render's inverse: given a rendered symbol, recover the
// opcode DefineSymbol registered for it, or the numeric "opN" form Render
// falls back to. Used by package report/sexpr to reconstruct an OpAST from
// its rendered text.
func OpCodeForSymbol(symbol string) (hostir.OpCode, bool) {
	for op, s := range OpSymbols {
		if s == symbol {
			return op, true
		}
	}
	var n int
	if _, err := fmt.Sscanf(symbol, "op%d", &n); err == nil {
		return hostir.OpCode(n), true
	}
	return 0, false
}

// Render produces the op AST's parenthesized-prefix form, e.g. "(+ x y)"
// or "(+ 0.000000 0.000000)", substituting variable leaves with stable
// names drawn from VariablePool in first-appearance order (spec §4.5).
func Render(ast *OpAST) string {
	names := variableNames(ast)
	var sb strings.Builder
	renderNode(&sb, ast.Root, names)
	return sb.String()
}

func variableNames(ast *OpAST) map[*Leaf]string {
	leafGroup := make(map[*Leaf]int)
	for gi, group := range ast.VarGroups {
		for _, l := range group {
			leafGroup[l] = gi
		}
	}

	var order []*Leaf
	seenLeaf := make(map[*Leaf]bool)
	var walk func(n OpNode)
	walk = func(n OpNode) {
		switch v := n.(type) {
		case *Leaf:
			if v.IsVariable() && !seenLeaf[v] {
				seenLeaf[v] = true
				order = append(order, v)
			}
		case *Branch:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	walk(ast.Root)

	names := make(map[*Leaf]string)
	groupOrder := []int{}
	seenGroup := make(map[int]bool)
	for _, l := range order {
		g, ok := leafGroup[l]
		if !ok {
			continue
		}
		if !seenGroup[g] {
			seenGroup[g] = true
			groupOrder = append(groupOrder, g)
		}
	}
	for i, g := range groupOrder {
		name := VarName(i)
		for _, l := range ast.VarGroups[g] {
			names[l] = name
		}
	}
	return names
}

// infixSymbols names the opcodes RenderHuman writes in infix rather than
// prefix-call form.
var infixSymbols = map[string]bool{"+": true, "-": true, "*": true, "/": true}

// RenderHuman produces the human-readable form of ast, spec §4.5's
// "human-friendly" alternative to Render's parenthesized-prefix form:
// common binary arithmetic renders infix ("x + y"), everything else falls
// back to the prefix-call form ("sqrt(x)").
func RenderHuman(ast *OpAST) string {
	names := variableNames(ast)
	var sb strings.Builder
	renderNodeHuman(&sb, ast.Root, names)
	return sb.String()
}

func renderNodeHuman(sb *strings.Builder, n OpNode, names map[*Leaf]string) {
	switch v := n.(type) {
	case *Leaf:
		renderLeaf(sb, v, names)
	case *Branch:
		sym := opSymbol(v.Op)
		if infixSymbols[sym] && len(v.Args) == 2 {
			sb.WriteByte('(')
			renderNodeHuman(sb, v.Args[0], names)
			fmt.Fprintf(sb, " %s ", sym)
			renderNodeHuman(sb, v.Args[1], names)
			sb.WriteByte(')')
			return
		}
		sb.WriteString(sym)
		sb.WriteByte('(')
		for i, a := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			renderNodeHuman(sb, a, names)
		}
		sb.WriteByte(')')
	}
}

func renderLeaf(sb *strings.Builder, v *Leaf, names map[*Leaf]string) {
	if v.Value != nil {
		fmt.Fprintf(sb, "%f", *v.Value)
		return
	}
	name, ok := names[v]
	if !ok {
		name = "?"
	}
	sb.WriteString(name)
}

func renderNode(sb *strings.Builder, n OpNode, names map[*Leaf]string) {
	switch v := n.(type) {
	case *Leaf:
		if v.Value != nil {
			fmt.Fprintf(sb, "%f", *v.Value)
			return
		}
		name, ok := names[v]
		if !ok {
			name = "?"
		}
		sb.WriteString(name)
	case *Branch:
		sb.WriteByte('(')
		sb.WriteString(opSymbol(v.Op))
		for _, a := range v.Args {
			sb.WriteByte(' ')
			renderNode(sb, a, names)
		}
		sb.WriteByte(')')
	}
}
