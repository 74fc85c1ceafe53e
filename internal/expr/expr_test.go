package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowprobe/internal/hostir"
	"shadowprobe/internal/shadowval"
)

func leafNode(v float64) *ValueNode {
	return &ValueNode{Val: &shadowval.Value{Real: shadowval.NewReal(v)}}
}

func branchNode(op *OpInfo, args ...*ValueNode) *ValueNode {
	return &ValueNode{Val: &shadowval.Value{Real: shadowval.NewReal(0)}, Op: op, Args: args}
}

func opInfo(code hostir.OpCode, addr uint64) *OpInfo {
	return &OpInfo{Key: OpKey{OpCode: code, OpAddr: addr}}
}

func TestBuildVarMapGroupsByValueEquality(t *testing.T) {
	a1 := leafNode(3.0)
	a2 := leafNode(3.0)
	b := leafNode(5.0)
	op := opInfo(1, 0x1000)
	root := branchNode(op, a1, b, a2)

	vm := BuildVarMap(root)
	assert.Equal(t, vm[a1], vm[a2], "equal-valued leaves must share a variable index")
	assert.NotEqual(t, vm[a1], vm[b])
}

func TestGeneralizeFirstObservationSnapshotsVerbatim(t *testing.T) {
	op := opInfo(1, 0x1000)
	x := leafNode(2.0)
	y := leafNode(4.0)
	root := branchNode(op, x, y)

	Generalize(op, root)

	require.NotNil(t, op.Expr)
	branch, ok := op.Expr.Root.(*Branch)
	require.True(t, ok)
	require.Len(t, branch.Args, 2)

	l0, ok := branch.Args[0].(*Leaf)
	require.True(t, ok)
	require.NotNil(t, l0.Value)
	assert.Equal(t, 2.0, *l0.Value)
}

func TestGeneralizeNarrowsConstantToVariableOnMismatch(t *testing.T) {
	op := opInfo(1, 0x1000)
	Generalize(op, branchNode(op, leafNode(2.0), leafNode(4.0)))
	Generalize(op, branchNode(op, leafNode(9.0), leafNode(4.0)))

	branch := op.Expr.Root.(*Branch)
	l0 := branch.Args[0].(*Leaf)
	l1 := branch.Args[1].(*Leaf)

	assert.True(t, l0.IsVariable(), "differing value must abstract the leaf to a variable")
	require.False(t, l1.IsVariable())
	assert.Equal(t, 4.0, *l1.Value)
}

func TestGeneralizeTruncatesOnOpcodeMismatch(t *testing.T) {
	op := opInfo(1, 0x1000)
	inner := opInfo(2, 0x2000)

	Generalize(op, branchNode(op, branchNode(inner, leafNode(1.0), leafNode(1.0)), leafNode(4.0)))
	// Second trace reaches this position via a plain leaf instead of inner's op.
	Generalize(op, branchNode(op, leafNode(7.0), leafNode(4.0)))

	branch := op.Expr.Root.(*Branch)
	_, stillBranch := branch.Args[0].(*Branch)
	assert.False(t, stillBranch, "a position observed with a different shape must truncate to a leaf")
}

func TestGeneralizeSameVariableReuseKeepsGroupTogether(t *testing.T) {
	op := opInfo(1, 0x1000)
	a := leafNode(3.0)
	Generalize(op, branchNode(op, a, a))

	require.Len(t, op.Expr.VarGroups, 1)
	assert.Len(t, op.Expr.VarGroups[0], 2)
}

func TestRegroupNeverMergesAcrossASplit(t *testing.T) {
	op := opInfo(1, 0x1000)
	a1, a2 := leafNode(3.0), leafNode(3.0)
	Generalize(op, branchNode(op, a1, a2))
	require.Len(t, op.Expr.VarGroups, 1)
	require.Len(t, op.Expr.VarGroups[0], 2)

	b1, b2 := leafNode(3.0), leafNode(9.0)
	Generalize(op, branchNode(op, b1, b2))

	total := 0
	for _, g := range op.Expr.VarGroups {
		total += len(g)
	}
	assert.Equal(t, 2, total, "every leaf observed must remain present somewhere in the partition")

	for _, g := range op.Expr.VarGroups {
		assert.LessOrEqual(t, len(g), 2, "a split group must never regain members from a different split")
	}
}

func TestRenderProducesPrefixForm(t *testing.T) {
	DefineSymbol(42, "+")
	op := opInfo(42, 0x3000)
	Generalize(op, branchNode(op, leafNode(2.0), leafNode(4.0)))
	Generalize(op, branchNode(op, leafNode(9.0), leafNode(4.0)))

	got := Render(op.Expr)
	assert.Equal(t, "(+ x 4.000000)", got)
}

func TestEntriesSortsByDescendingGlobalError(t *testing.T) {
	table := NewOpInfoTable()
	a := table.GetOrCreate(OpKey{OpCode: 1, OpAddr: 0x1}, 0, hostir.KindDouble, 2)
	b := table.GetOrCreate(OpKey{OpCode: 1, OpAddr: 0x2}, 0, hostir.KindDouble, 2)
	a.Agg.GlobalErrorMax = 1.0
	b.Agg.GlobalErrorMax = 5.0

	out := Entries(table, false)
	require.Len(t, out, 2)
	assert.Equal(t, b.Key, out[0].Key)
	assert.Equal(t, a.Key, out[1].Key)
}

func TestEntriesSuppressesDescendantOps(t *testing.T) {
	table := NewOpInfoTable()
	parentKey := OpKey{OpCode: 1, OpAddr: 0x1}
	childKey := OpKey{OpCode: 2, OpAddr: 0x2}
	parent := table.GetOrCreate(parentKey, 0, hostir.KindDouble, 2)
	child := table.GetOrCreate(childKey, 0, hostir.KindDouble, 2)
	parent.Agg.GlobalErrorMax = 5.0
	child.Agg.GlobalErrorMax = 3.0

	parent.Expr = &OpAST{Root: &Branch{
		Op:  1,
		Key: parentKey,
		Args: []OpNode{
			&Branch{Op: 2, Key: childKey, Args: []OpNode{&Leaf{}, &Leaf{}}},
			&Leaf{},
		},
	}}

	out := Entries(table, true)
	require.Len(t, out, 1)
	assert.Equal(t, parentKey, out[0].Key)
}
