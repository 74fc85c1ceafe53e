package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/report/sexpr"
)

func sampleOp() *expr.OpInfo {
	expr.DefineSymbol(hostir.OpCode(1), "+")
	variable := &expr.Leaf{}
	one := 1.0
	constant := &expr.Leaf{Value: &one}
	root := &expr.Branch{Op: hostir.OpCode(1), Args: []expr.OpNode{variable, constant}}
	op := &expr.OpInfo{
		Key:      expr.OpKey{OpCode: hostir.OpCode(1), OpAddr: 0x4000},
		Function: "compute",
		File:     "main.c",
		Line:     12,
		Expr:     &expr.OpAST{Root: root, VarGroups: [][]*expr.Leaf{{variable}}},
	}
	op.Agg.Observe(2.0, 2.0)
	op.Agg.Observe(4.0, 4.0)
	return op
}

func TestHumanWriterEmitsOneBlockPerOp(t *testing.T) {
	table := hostir.NewOpTable()
	table.Define(hostir.OpCode(1), "Iop_Add64F0x2", hostir.OpArity{})
	op := sampleOp()

	var sb strings.Builder
	w := &HumanWriter{Table: table}
	require.NoError(t, w.WriteOps(&sb, []*expr.OpInfo{op}))

	out := sb.String()
	assert.Contains(t, out, "(x + 1.000000)")
	assert.Contains(t, out, "Iop_Add64F0x2 in compute at main.c:12 (address 0x4000)")
	assert.Contains(t, out, "3.000000 bits average error")
	assert.Contains(t, out, "4.000000 bits max error")
	assert.Contains(t, out, "Aggregated over 2 instances")
}

func TestSExprWriterLineRoundTripsThroughParseRecord(t *testing.T) {
	op := sampleOp()
	line := FormatSExpr(op)

	rec, err := sexpr.ParseRecord(line)
	require.NoError(t, err)

	assert.Equal(t, "(+ x 1.000000)", rec.Expr)
	assert.Equal(t, "compute", rec.Function)
	assert.Equal(t, "main.c", rec.Filename)
	assert.Equal(t, 12, rec.LineNum)
	assert.Equal(t, uint64(0x4000), rec.InstrAddr)
	assert.Equal(t, uint64(2), rec.NumCalls)

	node, err := sexpr.Parse(rec.Expr)
	require.NoError(t, err)
	assert.IsType(t, &expr.Branch{}, node)
}

func TestMergeWeightsAverageByCallCount(t *testing.T) {
	a := &sexpr.Record{InstrAddr: 1, AvgError: 2.0, MaxError: 5.0, NumCalls: 1}
	b := &sexpr.Record{InstrAddr: 1, AvgError: 4.0, MaxError: 3.0, NumCalls: 3}

	m := Merge(a, b)
	assert.Equal(t, uint64(4), m.NumCalls)
	assert.InDelta(t, 3.5, m.AvgError, 1e-9)
	assert.Equal(t, 5.0, m.MaxError)
}

func TestMergeAllFoldsByInstrAddr(t *testing.T) {
	recs := []*sexpr.Record{
		{InstrAddr: 1, NumCalls: 1, AvgError: 1.0},
		{InstrAddr: 2, NumCalls: 1, AvgError: 5.0},
		{InstrAddr: 1, NumCalls: 1, AvgError: 3.0},
	}
	merged := MergeAll(recs)
	require.Len(t, merged, 2)
	assert.Equal(t, uint64(1), merged[0].InstrAddr)
	assert.Equal(t, uint64(2), merged[0].NumCalls)
	assert.Equal(t, uint64(2), merged[1].InstrAddr)
}
