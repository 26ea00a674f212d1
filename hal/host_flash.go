//go:build !tinygo

package hal

import (
	"os"

	"ferry/internal/flashfile"
)

const (
	hostFlashDefaultPath      = "ferry.flash"
	hostFlashDefaultSizeBytes = 2 * 1024 * 1024
	hostFlashEraseBlockBytes  = 4096
)

// newHostFlash opens the flash image named by FERRY_FLASH_PATH (default
// ferry.flash), creating an erased one when missing.
func newHostFlash() Flash {
	path := os.Getenv("FERRY_FLASH_PATH")
	if path == "" {
		path = hostFlashDefaultPath
	}
	f, err := flashfile.Open(path, hostFlashDefaultSizeBytes, hostFlashEraseBlockBytes)
	if err != nil {
		return stubFlash{}
	}
	return f
}
