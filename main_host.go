//go:build !tinygo

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"ferry/app"
	"ferry/hal"
)

func main() {
	var cfg hal.HeadlessConfig
	var sys app.Config
	pflag.BoolVar(&cfg.Enabled, "headless", false, "run without a window")
	pflag.IntVar(&cfg.Hz, "hz", 60, "frame rate in headless mode")
	pflag.Uint64Var(&cfg.Ticks, "ticks", 0, "stop after N frames in headless mode (0 = run forever)")
	pflag.StringVarP(&sys.ManifestPath, "manifest", "m", "", "build the capability image from this manifest at boot")
	pflag.StringVarP(&sys.ImagePath, "image", "i", "", "boot this encoded capability image")
	pflag.Uint32Var(&sys.FlashOffset, "flash-offset", 0, "flash offset probed for an image")
	pflag.BoolVar(&sys.NoFlash, "no-flash", false, "do not probe flash for an image")
	pflag.IntVar(&sys.StepsPerFrame, "steps", 64, "kernel steps per frame")
	pflag.Parse()

	newApp := func(h hal.HAL) (func() error, error) {
		return app.New(h, sys)
	}

	if cfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, newApp, cfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(newApp); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
