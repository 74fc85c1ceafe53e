// Package session decodes the YAML session-trace file
// cmd/shadowprobe-cli drives a run from.
//
// spec.md treats the dynamic-recompilation host -- the thing that would
// actually hand guest IR blocks and client requests to the engine -- as
// an external collaborator out of scope for the core design (spec §1).
// Without it, cmd/shadowprobe-cli has nothing to read PERFORM_OP/
// PERFORM_SPECIAL_OP client requests from, so this package plays that
// role for a standalone run: a session file is a recorded sequence of
// libm-style calls a guest program made, each already carrying the
// concrete arguments and result a host would have read out of guest
// memory (spec §6's ClientRequest.ConcreteArgs/ConcreteResult).
package session

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Call is one recorded PERFORM_OP/PERFORM_OPF/PERFORM_SPECIAL_OP
// occurrence.
type Call struct {
	// Op names the shadowed function: one of internal/engine's builtin
	// names (add, sub, mul, div, neg, abs, sqrt, sin, cos, exp, log, fma)
	// or a name registered by a Special entry elsewhere in the session.
	Op string `yaml:"op"`
	// Site distinguishes distinct static call sites that happen to share
	// an Op name, standing in for the instruction address spec §3's
	// OpKey requires; calls at the same Site accumulate into one
	// OpInfo's aggregate across the whole session.
	Site uint64 `yaml:"site"`
	// Single selects PERFORM_OPF's single-precision variant over
	// PERFORM_OP's double.
	Single bool      `yaml:"single"`
	Args   []float64 `yaml:"args"`
	Result float64   `yaml:"result"`
}

// SpecialOp declares a PERFORM_SPECIAL_OP name the session's Calls can
// reference, mirroring Engine.DefineSpecialOp's registration step. The
// session format can only name arity, not an implementation: a session
// reusing a name the engine already knows (one of the builtins) need not
// appear here.
type SpecialOp struct {
	Name  string `yaml:"name"`
	NArgs int    `yaml:"nargs"`
}

// Session is the full recorded trace cmd/shadowprobe-cli replays.
type Session struct {
	SpecialOps []SpecialOp `yaml:"special_ops"`
	Calls      []Call      `yaml:"calls"`
}

// Load reads and parses a session file at path.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
