package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/hal"
	"ferry/internal/builder"
	"ferry/manifest"
)

type result struct {
	st Status
	h  Handle
	n  uint32
}

// script runs one system call per step and records each result. When the
// steps run out it sleeps on any shuttle.
type script struct {
	steps   []func(*Context)
	results []result
	pc      int
}

func newScript(steps ...func(*Context)) *script {
	return &script{steps: steps}
}

func (s *script) Step(c *Context) {
	if s.pc > 0 && s.pc <= len(s.steps) {
		st, h, n := c.Result()
		s.results = append(s.results, result{st: st, h: h, n: n})
	}
	if s.pc < len(s.steps) {
		s.steps[s.pc](c)
	} else {
		c.Wait(AnyShuttle, 0)
	}
	s.pc++
}

func (s *script) done() bool { return len(s.results) == len(s.steps) }

func (s *script) status(i int) Status { return s.results[i].st }

func programs(scripts map[string]*script) ProgramSet {
	ps := ProgramSet{}
	for name, s := range scripts {
		s := s
		ps[name] = func() Program { return s }
	}
	return ps
}

func build(t *testing.T, m *manifest.Manifest) *builder.Result {
	t.Helper()
	res, err := builder.Build(m, builder.Options{Seed: []byte(t.Name())})
	require.NoError(t, err)
	return res
}

func boot(t *testing.T, m *manifest.Manifest, ps ProgramSet, cfg Config) (*Kernel, *hal.Machine) {
	t.Helper()
	res := build(t, m)
	hw := hal.NewMachine()
	k, err := New(res.Image, Hardware{Timer: hw, CPU: hw, IRQ: hw, MPU: hw}, ps, cfg)
	require.NoError(t, err)
	return k, hw
}

func grant(task string, access ...string) manifest.Grant {
	return manifest.Grant{Task: task, Access: access}
}

func task(name string) manifest.Task {
	return manifest.Task{Name: name, Shuttles: 4, Memory: 256}
}

// pipe is two tasks and one port: "tx" may send, "rx" may receive.
func pipe() *manifest.Manifest {
	return &manifest.Manifest{
		Tasks: []manifest.Task{task("rx"), task("tx")},
		Ports: []manifest.Port{{Name: "p", Grants: []manifest.Grant{grant("tx", "send"), grant("rx", "recv")}}},
	}
}

func runAll(t *testing.T, k *Kernel, ticks uint64) {
	t.Helper()
	require.NoError(t, k.RunFor(ticks))
}

// checkPorts asserts that no IPC port has both queues populated.
func checkPorts(t *testing.T, k *Kernel) {
	t.Helper()
	for i := 0; i < k.Ports(); i++ {
		p := k.Port(i)
		if p.lock >= 0 {
			continue
		}
		if p.Senders() > 0 && p.Receivers() > 0 {
			t.Fatalf("port %s: %d senders and %d receivers queued", p.Name, p.Senders(), p.Receivers())
		}
	}
}
