//go:build tinygo

package main

import (
	"ferry/app"
	"ferry/hal"
)

func main() {
	h := hal.New()
	if err := app.Run(h, app.Config{}); err != nil {
		if l := h.Logger(); l != nil {
			l.WriteLineString("boot: " + err.Error())
		}
	}
	select {}
}
