package hostir

// ThreadID identifies a guest thread. The engine's concurrency model
// assumes exactly one is ever running at a time (spec §5); this type
// exists so running_tid can be threaded through call sites explicitly
// instead of living in a global.
type ThreadID int

// RegisterFile is the host's thread-local register file model, addressed
// by byte offset. The real host owns the concrete bytes. The engine does
// not read a RegisterFile: concrete operand/result values reach the
// instrumenter through instrument.Trace.
type RegisterFile struct {
	bytes map[ByteOffset]float64
	kind  map[ByteOffset]ValueKind
}

// NewRegisterFile returns an empty register file.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{
		bytes: make(map[ByteOffset]float64),
		kind:  make(map[ByteOffset]ValueKind),
	}
}

// SetFloat installs a concrete value at offset, recording its kind so
// later reads know how many bytes it occupies.
func (r *RegisterFile) SetFloat(off ByteOffset, kind ValueKind, v float64) {
	r.bytes[off] = v
	r.kind[off] = kind
}

// Float reads back a concrete value, returning ok=false if nothing was
// ever written at off.
func (r *RegisterFile) Float(off ByteOffset) (float64, ValueKind, bool) {
	v, ok := r.bytes[off]
	if !ok {
		return 0, KindUnknown, false
	}
	return v, r.kind[off], true
}
