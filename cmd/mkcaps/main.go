//go:build !tinygo

// Command mkcaps builds a capability image from a manifest and writes it to
// a file or into a flash image.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"ferry/internal/builder"
	"ferry/internal/flashfile"
	"ferry/manifest"
	"ferry/tasks"
)

const (
	defaultFlashSize = 2 * 1024 * 1024
	defaultEraseSize = 4096
)

type options struct {
	manifest  string
	out       string
	flash     string
	offset    uint32
	flashSize uint32
	seed      string
	attempts  int
	buildID   string
	dump      bool
}

func main() {
	var o options
	pflag.StringVarP(&o.manifest, "manifest", "m", "", "manifest to build (default: the built-in demo)")
	pflag.StringVarP(&o.out, "out", "o", "", "write the encoded image to this file")
	pflag.StringVarP(&o.flash, "flash", "f", "", "program the image into this flash file")
	pflag.Uint32Var(&o.offset, "offset", 0, "flash offset of the image")
	pflag.Uint32Var(&o.flashSize, "size", defaultFlashSize, "size of a newly created flash file")
	pflag.StringVar(&o.seed, "seed", "ferry", "key search seed")
	pflag.IntVar(&o.attempts, "attempts", builder.DefaultAttempts, "key search budget")
	pflag.StringVar(&o.buildID, "build-id", "", "image build id (default: random)")
	pflag.BoolVarP(&o.dump, "dump", "d", false, "dump the decoded image to stdout")
	pflag.Parse()

	log := hclog.New(&hclog.LoggerOptions{Name: "mkcaps"})
	if str := os.Getenv("TRACE"); str != "" {
		log.SetLevel(hclog.Trace)
	}

	if o.out == "" && o.flash == "" && !o.dump {
		fmt.Fprintln(os.Stderr, "error: one of --out, --flash or --dump is required")
		pflag.Usage()
		os.Exit(2)
	}
	if err := run(o, os.Stdout, log); err != nil {
		log.Error("build failed", "error", err)
		os.Exit(1)
	}
}

func run(o options, stdout io.Writer, log hclog.Logger) error {
	var (
		m   *manifest.Manifest
		err error
	)
	if o.manifest != "" {
		m, err = manifest.LoadFile(o.manifest)
	} else {
		m, err = tasks.DefaultManifest()
	}
	if err != nil {
		return err
	}

	id := uuid.New()
	if o.buildID != "" {
		if id, err = uuid.Parse(o.buildID); err != nil {
			return errors.Wrap(err, "build id")
		}
	}

	res, err := builder.Build(m, builder.Options{
		Seed:     []byte(o.seed),
		Attempts: o.attempts,
		BuildID:  id,
		Logger:   log.Named("builder"),
	})
	if err != nil {
		return err
	}
	enc, err := res.Image.Encode()
	if err != nil {
		return err
	}
	log.Info("image built", "build", id.String(), "bytes", len(enc), "attempts", res.Attempts, "max-probe", res.MaxProbe)

	if o.dump {
		spew.Fdump(stdout, res.Image)
	}

	if o.out != "" {
		if err := os.WriteFile(o.out, enc, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", o.out)
		}
		log.Info("image written", "path", o.out)
	}

	if o.flash != "" {
		f, err := flashfile.Open(o.flash, o.flashSize, defaultEraseSize)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if err := f.Program(enc, o.offset); err != nil {
			return err
		}
		log.Info("image programmed", "flash", o.flash, "offset", fmt.Sprintf("%#x", o.offset))
	}
	return nil
}
