package app

import (
	"fmt"
	"image/color"

	"ferry/hal"
	"ferry/internal/buildinfo"
	"ferry/kernel"
	"ferry/tasks"
)

// console paints the task table and demo counters.
type console struct {
	d  fbDisplay
	fg color.RGBA
}

func newConsole(fb hal.Framebuffer) *console {
	return &console{d: fbDisplay{fb: fb}, fg: color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}}
}

func (c *console) draw(k *kernel.Kernel, st *tasks.Stats) {
	c.d.fb.ClearRGB(0x10, 0x18, 0x20)
	t := newTextScreen(c.d, c.fg)
	for _, line := range consoleLines(k, st) {
		if !t.println(line) {
			break
		}
	}
	_ = c.d.Display()
}

func consoleLines(k *kernel.Kernel, st *tasks.Stats) []string {
	lines := []string{
		fmt.Sprintf("ferry %s  t=%d  sw=%d", buildinfo.Short(), k.Now(), k.Switches()),
		"",
		fmt.Sprintf("%-3s %-8s %-8s %3s %4s %5s", "id", "task", "state", "pri", "pend", "flt/rp"),
	}
	for _, ti := range k.Snapshot() {
		mark := ' '
		if ti.Current {
			mark = '*'
		}
		lines = append(lines, fmt.Sprintf("%c%-2d %-8s %-8s %3d %4d %d/%d",
			mark, ti.ID, ti.Name, ti.State, ti.Priority, ti.Pending, ti.Faults, ti.Replays))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("echo   served %d  rejected %d", st.Served, st.Rejected),
		fmt.Sprintf("client calls %d  ok %d  bad %d  err %d", st.Calls, st.Replies, st.Mismatches, st.CallErrors),
		fmt.Sprintf("lock   counter %d / %d", st.Counter, st.Increments),
		fmt.Sprintf("timer  ticks %d", st.Ticks),
		fmt.Sprintf("keys   %d", st.Keys),
	)
	if k.InCritical() {
		lines = append(lines, "critical section active")
	}
	return lines
}
