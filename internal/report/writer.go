// Package report implements the two report file formats spec.md §6
// describes, emitting the ops package expr.Entries selects (error-sorted,
// subexpression-suppressed) in either human-readable or S-expression form.
package report

import (
	"fmt"
	"io"
	"strings"

	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
)

// HumanWriter writes the per-op block format: a rendered expression, its
// address/function/source location, and its error aggregates.
type HumanWriter struct {
	Table *hostir.OpTable
}

// WriteOps writes one block per op in ops, in the order given (callers
// pass expr.Entries's already error-sorted, suppression-filtered slice).
func (h *HumanWriter) WriteOps(w io.Writer, ops []*expr.OpInfo) error {
	for _, op := range ops {
		if err := h.writeOne(w, op); err != nil {
			return err
		}
	}
	return nil
}

func (h *HumanWriter) writeOne(w io.Writer, op *expr.OpInfo) error {
	rendered := "?"
	if op.Expr != nil {
		rendered = expr.RenderHuman(op.Expr)
	}
	opName := fmt.Sprintf("op#%d", op.Key.OpCode)
	if h.Table != nil {
		opName = h.Table.Name(op.Key.OpCode)
	}
	_, err := fmt.Fprintf(w, "%s\n%s in %s at %s:%d (address 0x%x)\n%f bits average error\n%f bits max error\nAggregated over %d instances\n",
		rendered, opName, op.Function, op.File, op.Line, op.Key.OpAddr,
		op.Agg.MeanGlobalError(), op.Agg.GlobalErrorMax, op.Agg.NumCalls)
	return err
}

// SExprWriter writes the single-line, fully-parenthesized form consumed
// by report/sexpr's round-trip parser and the shadowprobe-report merge
// subcommand.
type SExprWriter struct{}

// WriteOps writes one line per op in ops.
func (SExprWriter) WriteOps(w io.Writer, ops []*expr.OpInfo) error {
	for _, op := range ops {
		if _, err := io.WriteString(w, FormatSExpr(op)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatSExpr renders one op's S-expression report line: spec.md §6's
// "((expr …) (plain-name …) (function …) (filename …) (line-num …)
// (instr-addr …) (avg-error …) (max-error …) (num-calls …))".
func FormatSExpr(op *expr.OpInfo) string {
	rendered := "?"
	plainName := "?"
	if op.Expr != nil {
		rendered = expr.Render(op.Expr)
		plainName = expr.RenderHuman(op.Expr)
	}
	var sb strings.Builder
	sb.WriteByte('(')
	fmt.Fprintf(&sb, "(expr %s) ", rendered)
	fmt.Fprintf(&sb, "(plain-name %s) ", plainName)
	fmt.Fprintf(&sb, "(function %s) ", op.Function)
	fmt.Fprintf(&sb, "(filename %s) ", op.File)
	fmt.Fprintf(&sb, "(line-num %d) ", op.Line)
	fmt.Fprintf(&sb, "(instr-addr 0x%x) ", op.Key.OpAddr)
	fmt.Fprintf(&sb, "(avg-error %f) ", op.Agg.MeanGlobalError())
	fmt.Fprintf(&sb, "(max-error %f) ", op.Agg.GlobalErrorMax)
	fmt.Fprintf(&sb, "(num-calls %d)", op.Agg.NumCalls)
	sb.WriteByte(')')
	return sb.String()
}
