// Package app boots a ferry system on a HAL: it loads the capability image,
// starts the kernel with the demo programs and paints the console.
package app

import (
	"os"

	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"ferry/hal"
	"ferry/internal/builder"
	"ferry/internal/buildinfo"
	"ferry/kernel"
	"ferry/kernel/captab"
	"ferry/manifest"
	"ferry/tasks"
)

const defaultStepsPerFrame = 64

// Config selects where the capability image comes from and how fast the
// kernel runs. Image sources are tried in order: ImagePath, ManifestPath,
// flash at FlashOffset, then the built-in demo manifest.
type Config struct {
	ImagePath    string
	ManifestPath string
	FlashOffset  uint32
	// NoFlash skips probing flash for an image.
	NoFlash bool
	// StepsPerFrame is the number of kernel steps run per Frame.
	StepsPerFrame int
	Logger        hclog.Logger
}

// System is one booted machine.
type System struct {
	h       hal.HAL
	k       *kernel.Kernel
	stats   *tasks.Stats
	log     hclog.Logger
	console *console
	steps   int
	stopped bool
}

// NewSystem loads the image and boots the kernel.
func NewSystem(h hal.HAL, cfg Config) (*System, error) {
	log := cfg.Logger
	if log == nil {
		log = NewLogger(h.Logger())
	}
	if cfg.StepsPerFrame <= 0 {
		cfg.StepsPerFrame = defaultStepsPerFrame
	}

	img, src, err := loadImage(h, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("image loaded", "source", src, "tasks", len(img.Tasks),
		"image-id", uuid.UUID(img.BuildID).String(), "build", buildinfo.Short())

	installPanicHandler(h, log)

	st := &tasks.Stats{}
	k, err := kernel.New(img, kernel.HardwareOf(h), tasks.Programs(st), kernel.Config{
		Logger: log.Named("kernel"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "boot kernel")
	}

	s := &System{
		h:     h,
		k:     k,
		stats: st,
		log:   log,
		steps: cfg.StepsPerFrame,
	}
	if d := h.Display(); d != nil {
		if fb := d.Framebuffer(); fb != nil {
			s.console = newConsole(fb)
		}
	}
	return s, nil
}

// New boots a system and returns its per-frame step, the shape the host
// runners expect.
func New(h hal.HAL, cfg Config) (func() error, error) {
	s, err := NewSystem(h, cfg)
	if err != nil {
		return nil, err
	}
	return s.Frame, nil
}

// Run boots a system and steps it forever. It only returns on a boot error.
func Run(h hal.HAL, cfg Config) error {
	s, err := NewSystem(h, cfg)
	if err != nil {
		return err
	}
	for {
		_ = s.Frame()
	}
}

func (s *System) Kernel() *kernel.Kernel { return s.k }
func (s *System) Stats() *tasks.Stats    { return s.stats }

// Frame runs a batch of kernel steps and refreshes the console. After a
// halt the panic screen stays up and Frame does nothing.
func (s *System) Frame() error {
	if s.stopped {
		return nil
	}
	for i := 0; i < s.steps; i++ {
		err := s.k.Step()
		if err == nil {
			continue
		}
		if errors.Is(err, kernel.ErrIdle) {
			break
		}
		if errors.Is(err, kernel.ErrHalted) {
			s.stopped = true
			return nil
		}
		return err
	}
	if s.console != nil {
		s.console.draw(s.k, s.stats)
	}
	return nil
}

func loadImage(h hal.HAL, cfg Config, log hclog.Logger) (*captab.Image, string, error) {
	switch {
	case cfg.ImagePath != "":
		b, err := os.ReadFile(cfg.ImagePath)
		if err != nil {
			return nil, "", errors.Wrapf(err, "read image %s", cfg.ImagePath)
		}
		img, err := captab.Decode(b)
		if err != nil {
			return nil, "", errors.Wrapf(err, "decode image %s", cfg.ImagePath)
		}
		return img, cfg.ImagePath, nil

	case cfg.ManifestPath != "":
		m, err := manifest.LoadFile(cfg.ManifestPath)
		if err != nil {
			return nil, "", err
		}
		img, err := buildImage(m, log)
		return img, cfg.ManifestPath, err
	}

	if !cfg.NoFlash {
		img, err := readFlashImage(h.Flash(), cfg.FlashOffset)
		switch {
		case err == nil:
			return img, "flash", nil
		case errors.Is(err, captab.ErrBadMagic), errors.Is(err, hal.ErrNotImplemented):
			log.Debug("no image in flash", "offset", cfg.FlashOffset)
		default:
			return nil, "", errors.Wrap(err, "flash image")
		}
	}

	m, err := tasks.DefaultManifest()
	if err != nil {
		return nil, "", err
	}
	img, err := buildImage(m, log)
	return img, "builtin", err
}

func buildImage(m *manifest.Manifest, log hclog.Logger) (*captab.Image, error) {
	res, err := builder.Build(m, builder.Options{
		Seed:   []byte("ferry"),
		Logger: log.Named("builder"),
	})
	if err != nil {
		return nil, err
	}
	log.Debug("image built", "attempts", res.Attempts, "max-probe", res.MaxProbe)
	return res.Image, nil
}

func readFlashImage(f hal.Flash, off uint32) (*captab.Image, error) {
	if f == nil {
		return nil, hal.ErrNotImplemented
	}
	hdr := make([]byte, captab.HeaderSize)
	if _, err := f.ReadAt(hdr, off); err != nil {
		return nil, err
	}
	n, err := captab.EncodedSize(hdr)
	if err != nil {
		return nil, err
	}
	if uint64(off)+uint64(n) > uint64(f.SizeBytes()) {
		return nil, errors.Wrapf(captab.ErrTruncated, "image of %d bytes at %#x", n, off)
	}
	b := make([]byte, n)
	if _, err := f.ReadAt(b, off); err != nil {
		return nil, err
	}
	return captab.Decode(b)
}
