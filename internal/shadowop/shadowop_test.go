package shadowop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowprobe/internal/expr"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/realop"
	"shadowprobe/internal/shadow"
	"shadowprobe/internal/shadowval"
)

func scalarArity(nargs int) hostir.OpArity {
	return hostir.OpArity{
		NArgs:         nargs,
		OperandBlocks: 1,
		ResultBlocks:  1,
		ArgPrecision:  hostir.KindDouble,
		ResultKind:    hostir.KindDouble,
	}
}

func newFixture() (*shadowval.Pool, *shadow.Containers, *shadow.BlockTemps, *Executor) {
	pool := shadowval.NewPool()
	containers := shadow.NewContainers(pool)
	bt := containers.NewBlock()
	ex := NewExecutor(pool)
	return pool, containers, bt, ex
}

func scalarTemp(pool *shadowval.Pool, v float64) *shadow.Temp {
	return &shadow.Temp{Values: []*shadowval.Value{pool.MakeValue(hostir.KindDouble, v)}}
}

func TestExecuteAddAccruesGlobalError(t *testing.T) {
	pool, _, bt, ex := newFixture()

	op := &expr.OpInfo{Key: expr.OpKey{OpCode: realop.OpAdd, OpAddr: 0x100}}
	// a's shadow real already carries drift from an earlier (unmodeled)
	// op, the way a real chain of operations would; this is what makes
	// global error observable from a single op in isolation.
	a := pool.MakeValue(hostir.KindDouble, 1.0)
	a.Real = shadowval.NewReal(1.0000001)
	b := pool.MakeValue(hostir.KindDouble, 1.0)
	bt.StoreTemp(1, &shadow.Temp{Values: []*shadowval.Value{a}})
	bt.StoreTemp(2, &shadow.Temp{Values: []*shadowval.Value{b}})

	inst := OpInstance{
		Info:           op,
		Arity:          scalarArity(2),
		ArgTemps:       []hostir.TempID{1, 2},
		ConcreteArgs:   [][]float64{{1.0}, {1.0}},
		ConcreteResult: []float64{2.0},
	}

	result := ex.Execute(bt, inst)
	require.Len(t, result.Values, 1)
	assert.Greater(t, op.Agg.GlobalErrorMax, 0.0, "a drifted shadow argument must register nonzero global error")
	assert.Equal(t, uint64(1), op.Agg.NumCalls)

	require.NotNil(t, op.Expr, "the op-ast must be built once global error clears the threshold")
}

func TestExecutePureZeroMultiplicationShortCircuits(t *testing.T) {
	pool, _, bt, ex := newFixture()

	op := &expr.OpInfo{Key: expr.OpKey{OpCode: realop.OpMul, OpAddr: 0x200}}
	bt.StoreTemp(1, scalarTemp(pool, 0.0))
	bt.StoreTemp(2, scalarTemp(pool, 42.0))

	inst := OpInstance{
		Info:           op,
		Arity:          scalarArity(2),
		ArgTemps:       []hostir.TempID{1, 2},
		ConcreteArgs:   [][]float64{{0.0}, {42.0}},
		ConcreteResult: []float64{0.0},
	}

	result := ex.Execute(bt, inst)
	assert.Equal(t, 0.0, result.Values[0].Real.GetDouble())
	assert.Equal(t, uint64(0), op.Agg.NumCalls, "pure-zero short-circuit must not accrue error")
	assert.Empty(t, result.Values[0].Influences.Entries(), "pure-zero short-circuit must not propagate influences")
}

func TestExecuteCompensatingAddClonesInfluences(t *testing.T) {
	pool, _, bt, ex := newFixture()

	contributor := &expr.OpInfo{Key: expr.OpKey{OpCode: realop.OpMul, OpAddr: 0x42}}
	b := pool.MakeValue(hostir.KindDouble, 5.0)
	b.Influences = shadowval.NewInfluenceSet()
	b.Influences.Add(contributor)

	a := pool.MakeValue(hostir.KindDouble, 0.0)

	bt.StoreTemp(1, &shadow.Temp{Values: []*shadowval.Value{a}})
	bt.StoreTemp(2, &shadow.Temp{Values: []*shadowval.Value{b}})

	op := &expr.OpInfo{Key: expr.OpKey{OpCode: realop.OpAdd, OpAddr: 0x300}}
	inst := OpInstance{
		Info:           op,
		Arity:          scalarArity(2),
		ArgTemps:       []hostir.TempID{1, 2},
		ConcreteArgs:   [][]float64{{0.0}, {5.0}},
		ConcreteResult: []float64{5.0},
	}

	result := ex.Execute(bt, inst)
	require.NotNil(t, result.Values[0].Influences)
	entries := result.Values[0].Influences.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, contributor.InfluenceKey(), entries[0].InfluenceKey())
}

func TestExecuteConstantArgIsDisownedAfterUse(t *testing.T) {
	pool, _, bt, ex := newFixture()

	op := &expr.OpInfo{Key: expr.OpKey{OpCode: realop.OpAdd, OpAddr: 0x400}}
	bt.StoreTemp(1, scalarTemp(pool, 2.0))

	before := pool.Stats()

	inst := OpInstance{
		Info:           op,
		Arity:          scalarArity(2),
		ArgTemps:       []hostir.TempID{1, NoArgTemp},
		ConcreteArgs:   [][]float64{{2.0}, {3.0}},
		ConcreteResult: []float64{5.0},
	}
	ex.Execute(bt, inst)

	after := pool.Stats()
	// The constant-arg temp is fabricated and disowned within this one
	// call: only the pre-existing real arg and the new result value
	// should remain live, net of the transient constant's box.
	assert.Equal(t, before.Live+1, after.Live)
}

func TestExecuteNonOperandChannelPassesThroughAndOwns(t *testing.T) {
	pool, _, bt, ex := newFixture()

	op := &expr.OpInfo{Key: expr.OpKey{OpCode: realop.OpNeg, OpAddr: 0x500}}
	passThrough := pool.MakeValue(hostir.KindSingle, 9.0)
	arg := &shadow.Temp{Values: []*shadowval.Value{pool.MakeValue(hostir.KindDouble, 4.0), passThrough}}
	bt.StoreTemp(1, arg)

	arity := hostir.OpArity{NArgs: 1, OperandBlocks: 1, ResultBlocks: 2, ArgPrecision: hostir.KindDouble, ResultKind: hostir.KindDouble, IsSIMD: true}
	inst := OpInstance{
		Info:           op,
		Arity:          arity,
		ArgTemps:       []hostir.TempID{1},
		ConcreteArgs:   [][]float64{{4.0}},
		ConcreteResult: []float64{-4.0},
	}

	before := passThrough.RefCount()
	result := ex.Execute(bt, inst)
	require.Len(t, result.Values, 2)
	assert.Same(t, passThrough, result.Values[1])
	assert.Equal(t, before+1, passThrough.RefCount())
}
