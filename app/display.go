package app

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"ferry/hal"
)

var font = &proggy.TinySZ8pt7b

// fbDisplay draws into an RGB565 framebuffer.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = fbDisplay{}

func (d fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := d.fb.Buffer()
	ix, iy := int(x), int(y)
	if buf == nil || ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}
	pixel := hal.RGB565(c.R, c.G, c.B)
	off := iy*d.fb.StrideBytes() + ix*2
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// textScreen lays out fixed-pitch lines top to bottom.
type textScreen struct {
	d        fbDisplay
	fg       color.RGBA
	cols     int
	lineH    int16
	baseline int16
	y        int16
}

func newTextScreen(d fbDisplay, fg color.RGBA) *textScreen {
	_, w := tinyfont.LineWidth(font, "0")
	cols := 1
	if sx, _ := d.Size(); w > 0 && int(sx) >= int(w) {
		cols = int(sx) / int(w)
	}
	lineH := int16(font.YAdvance)
	if lineH <= 0 {
		lineH = 12
	}
	return &textScreen{d: d, fg: fg, cols: cols, lineH: lineH, baseline: lineH - 3}
}

// println writes s, wrapping at the screen width. It reports false once
// the screen is full.
func (t *textScreen) println(s string) bool {
	_, maxY := t.d.Size()
	for {
		if t.y+t.lineH > maxY {
			return false
		}
		chunk, rest := takeRunes(s, t.cols)
		tinyfont.WriteLine(t.d, font, 0, t.y+t.baseline, chunk, t.fg)
		t.y += t.lineH
		s = strings.TrimLeft(rest, " ")
		if s == "" {
			return true
		}
	}
}

func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if len(s) <= n {
		return s, ""
	}
	i, count := 0, 0
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		count++
	}
	return s[:i], s[i:]
}
