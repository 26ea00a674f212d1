// Package tasks holds the demo programs of the default system image and
// the manifest that wires them together.
package tasks

import (
	"bytes"
	_ "embed"

	"ferry/kernel"
	"ferry/manifest"
)

//go:embed default.json
var defaultManifest []byte

// DefaultManifest returns the manifest of the demo system.
func DefaultManifest() (*manifest.Manifest, error) {
	return manifest.Load(bytes.NewReader(defaultManifest))
}

// Stats collects what the demo programs observe. The kernel runs one task
// at a time, so plain fields are enough.
type Stats struct {
	// echo server
	Served   uint32
	Rejected uint32

	// client
	Calls      uint32
	Replies    uint32
	Mismatches uint32
	CallErrors uint32

	// lock demo: Counter is updated across several steps under the lock,
	// Increments in a single step, so they only match when the lock holds.
	Counter    uint32
	Increments uint32

	Ticks     uint32
	Keys      uint32
	FlakyRuns uint32
}

// Programs returns the constructors for every task of the default manifest.
func Programs(st *Stats) kernel.ProgramSet {
	return kernel.ProgramSet{
		"echo":   func() kernel.Program { return &echoServer{st: st} },
		"client": func() kernel.Program { return &client{st: st} },
		"add-a":  func() kernel.Program { return &adder{st: st} },
		"add-b":  func() kernel.Program { return &adder{st: st} },
		"ticker": func() kernel.Program { return &ticker{st: st} },
		"keys":   func() kernel.Program { return &keys{st: st} },
		"flaky": func() kernel.Program {
			st.FlakyRuns++
			return &flaky{}
		},
	}
}
