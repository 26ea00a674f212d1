package app

import (
	"fmt"
	"image/color"
	"strings"

	hclog "github.com/hashicorp/go-hclog"

	"ferry/hal"
	"ferry/kernel"
)

func installPanicHandler(h hal.HAL, log hclog.Logger) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		log.Error("kernel halted", "task", info.TaskName, "id", info.TaskID, "reason", info.Reason)
		for _, line := range stackLines(info.Stack) {
			log.Trace(line)
		}
		drawPanic(h, info)
	})
}

func drawPanic(h hal.HAL, info kernel.PanicInfo) {
	disp := h.Display()
	if disp == nil {
		return
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return
	}
	fb.ClearRGB(0x80, 0, 0)

	d := fbDisplay{fb: fb}
	t := newTextScreen(d, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})

	task := fmt.Sprintf("%d", info.TaskID)
	if info.TaskID == kernel.NoTask {
		task = "kernel"
	} else if info.TaskName != "" {
		task = fmt.Sprintf("%d (%s)", info.TaskID, info.TaskName)
	}

	lines := []string{
		"ferry halted",
		"task: " + task,
		"reason: " + info.Reason,
	}
	if st := stackLines(info.Stack); len(st) > 0 {
		lines = append(lines, "stack:")
		lines = append(lines, st...)
	} else {
		lines = append(lines, "stack: unavailable")
	}
	for _, line := range lines {
		if !t.println(line) {
			break
		}
	}
	_ = d.Display()
}

func stackLines(stack []byte) []string {
	var out []string
	for _, line := range strings.Split(string(stack), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
