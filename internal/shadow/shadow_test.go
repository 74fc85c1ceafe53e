package shadow

import (
	"testing"

	"shadowprobe/internal/hostir"
	"shadowprobe/internal/shadowval"
)

func TestRegisterMapSetOwnsAndDisownsPrevious(t *testing.T) {
	pool := shadowval.NewPool()
	ts := NewRegisterMap(pool)

	v1 := pool.MakeValue(hostir.KindDouble, 1.0)
	ts.Set(0, v1)
	if v1.RefCount() != 2 { // 1 from MakeValue + 1 from Set's Own
		t.Errorf("RefCount() = %d, want 2", v1.RefCount())
	}

	v2 := pool.MakeValue(hostir.KindDouble, 2.0)
	ts.Set(0, v2)
	if v1.RefCount() != 1 {
		t.Errorf("previous occupant not disowned: RefCount() = %d, want 1", v1.RefCount())
	}
	if ts.Get(0) != v2 {
		t.Error("Get(0) did not return the newly installed value")
	}
}

func TestRegisterMapClearDisownsAndNullsSlot(t *testing.T) {
	pool := shadowval.NewPool()
	ts := NewRegisterMap(pool)
	v := pool.MakeValue(hostir.KindSingle, 1.0)
	ts.Set(4, v)

	ts.Clear(4)
	if ts.Get(4) != nil {
		t.Error("Get(4) != nil after Clear")
	}
	if v.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1 after clear", v.RefCount())
	}
}

func TestMemoryMapFastProbeAndFallthrough(t *testing.T) {
	pool := shadowval.NewPool()
	ms := NewMemoryMap(pool)

	if _, ok := ms.FastProbe(1000); !ok {
		t.Error("FastProbe on empty bucket should report a confirmed miss")
	}

	v := pool.MakeValue(hostir.KindDouble, 42.0)
	ms.Set(1000, v)

	got, ok := ms.FastProbe(1000)
	if !ok || got != v {
		t.Errorf("FastProbe(1000) = (%v, %v), want (%v, true)", got, ok, v)
	}
}

func TestMemoryMapSetDisownsPreviousAtSameAddress(t *testing.T) {
	pool := shadowval.NewPool()
	ms := NewMemoryMap(pool)

	v1 := pool.MakeValue(hostir.KindDouble, 1.0)
	ms.Set(200, v1)
	v2 := pool.MakeValue(hostir.KindDouble, 2.0)
	ms.Set(200, v2)

	if v1.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1 (overwritten)", v1.RefCount())
	}
	if ms.Get(200) != v2 {
		t.Error("Get(200) did not return the latest value")
	}
}

func TestMemoryMapClearRemovesEntry(t *testing.T) {
	pool := shadowval.NewPool()
	ms := NewMemoryMap(pool)
	v := pool.MakeValue(hostir.KindDouble, 3.0)
	ms.Set(300, v)

	ms.Clear(300)
	if ms.Get(300) != nil {
		t.Error("Get(300) != nil after Clear")
	}
	if v.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1 after clear", v.RefCount())
	}
}

func TestMemoryMapSetNilUnlinksEntry(t *testing.T) {
	pool := shadowval.NewPool()
	ms := NewMemoryMap(pool)
	v := pool.MakeValue(hostir.KindSingle, 1.0)
	ms.Set(400, v)

	ms.Set(400, nil)
	if ms.Get(400) != nil {
		t.Error("Get(400) != nil after Set(400, nil)")
	}
	if v.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1 after Set(addr, nil)", v.RefCount())
	}
	if *ms.BucketAddr(400) != nil {
		t.Error("Set(addr, nil) left a dangling bucket entry instead of unlinking it")
	}
}

func TestMemoryMapSetRangeAndGetRangeRoundTripDouble(t *testing.T) {
	pool := shadowval.NewPool()
	ms := NewMemoryMap(pool)
	v := pool.MakeValue(hostir.KindDouble, 1.5)

	ms.SetRange(500, []*shadowval.Value{v, nil})
	got := ms.GetRange(500, 8)
	if len(got) != 2 {
		t.Fatalf("GetRange(500, 8) returned %d units, want 2", len(got))
	}
	if got[0] != v {
		t.Errorf("GetRange(500, 8)[0] = %v, want %v", got[0], v)
	}
	if got[1] != nil {
		t.Errorf("GetRange(500, 8)[1] = %v, want nil", got[1])
	}

	ms.ClearRange(500, 8)
	if ms.Get(500) != nil || ms.Get(504) != nil {
		t.Error("ClearRange did not clear every unit in the range")
	}
	if v.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1 after ClearRange", v.RefCount())
	}
}

func TestBlockTempsClearTempRemovesMapping(t *testing.T) {
	pool := shadowval.NewPool()
	c := NewContainers(pool)
	block := c.NewBlock()

	temp := block.AllocTemp(1)
	block.StoreTemp(3, temp)
	if block.LoadTemp(3) == nil {
		t.Fatal("StoreTemp(3, ...) did not install the mapping")
	}

	block.ClearTemp(3)
	if block.LoadTemp(3) != nil {
		t.Error("LoadTemp(3) != nil after ClearTemp(3)")
	}

	block.Finish()
}

func TestBlockTempsDebtListClearedOnFinish(t *testing.T) {
	pool := shadowval.NewPool()
	c := NewContainers(pool)
	block := c.NewBlock()

	temp := block.AllocTemp(1)
	v := pool.MakeValue(hostir.KindDouble, 5.0)
	pool.Own(v)
	temp.Values[0] = v
	block.StoreTemp(0, temp)

	block.Finish()

	if v.RefCount() != 1 {
		t.Errorf("RefCount() = %d, want 1 after block Finish", v.RefCount())
	}
}
