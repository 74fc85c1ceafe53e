package sexpr

import (
	"fmt"

	"shadowprobe/internal/expr"
)

// Parse parses a rendered prefix expression (expr.Render's output, e.g.
// "(+ x 2.000000)") back into an expr.OpNode.
//
// The rendered text carries an opcode's display symbol but not the
// OpKey.OpAddr that distinguished the static instruction the opcode was
// generalized from, so a parsed *expr.Branch always has a zero Key.
// Round-trip equality against the original tree must therefore compare
// structurally (opcode plus argument shape) rather than by Key identity.
func Parse(line string) (expr.OpNode, error) {
	tree, err := parser.ParseString("", line)
	if err != nil {
		return nil, fmt.Errorf("sexpr: parse %q: %w", line, err)
	}
	return toOpNode(tree)
}

func toOpNode(e *Expr) (expr.OpNode, error) {
	switch {
	case e.Branch != nil:
		return toBranch(e.Branch)
	case e.Leaf != nil:
		return toLeaf(e.Leaf), nil
	default:
		return nil, fmt.Errorf("sexpr: empty expression node")
	}
}

func toBranch(b *Branch) (*expr.Branch, error) {
	op, ok := expr.OpCodeForSymbol(b.Op)
	if !ok {
		return nil, fmt.Errorf("sexpr: unknown operator symbol %q", b.Op)
	}
	args := make([]expr.OpNode, len(b.Args))
	for i, a := range b.Args {
		node, err := toOpNode(a)
		if err != nil {
			return nil, err
		}
		args[i] = node
	}
	return &expr.Branch{Op: op, Args: args}, nil
}

func toLeaf(l *Leaf) *expr.Leaf {
	if l.Number != nil {
		v := *l.Number
		return &expr.Leaf{Value: &v}
	}
	return &expr.Leaf{}
}
