package hostir

// RequestCode names a client request macro expanded in the guest program
// (spec §6). The host is expected to recognize these by a two-character
// tag prefix on arg[0]; the tag itself lives with the host and is not
// modeled here beyond the parsed code.
type RequestCode int

const (
	ReqUnknown RequestCode = iota
	ReqBegin
	ReqEnd
	ReqPerformOp
	ReqPerformOpF
	ReqPerformSpecialOp
	ReqMarkImportant
	ReqMaybeMarkImportant
	ReqMaybeMarkImportantWithIndex
	ReqForceTrack
)

// ClientRequest is the UWord[] argument vector of a client request, already
// decoded into its typed fields by the host.
type ClientRequest struct {
	Code RequestCode

	// PERFORM_OP / PERFORM_OPF / PERFORM_SPECIAL_OP. Op names the libm (or
	// user-defined, for PERFORM_SPECIAL_OP) function being shadowed;
	// ResultAddr/ArgAddr/ArgBAddr are the guest memory addresses of the
	// result and up to two arguments the macro passes by reference.
	// ConcreteArgs/ConcreteResult carry the double values the host already
	// read from those addresses, since this package has no memory of its
	// own to read them from (spec §1's "out of scope... client-request
	// hooks").
	OpName         string
	ResultAddr     uint64
	ArgAddr        uint64
	ArgBAddr       uint64
	NumArgs        int
	ConcreteArgs   []float64
	ConcreteResult float64

	// MARK_IMPORTANT / MAYBE_MARK_IMPORTANT[_WITH_INDEX] / FORCE_TRACK.
	// TargetAddr is the guest memory address named by "&v"; Concrete is
	// the current concrete double at that address, needed to fabricate a
	// shadow when FORCE_TRACK finds none there yet.
	TargetAddr uint64
	Index      int
	Concrete   float64
}

// RequestResult is returned from handling a client request; Handled is
// false for unrecognized codes, which must not abort (spec §7) so the host
// can route the request further.
type RequestResult struct {
	Handled bool
	Value   uint64
}
