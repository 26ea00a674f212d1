package app

import (
	"bytes"
	"os"

	hclog "github.com/hashicorp/go-hclog"

	"ferry/hal"
)

// NewLogger returns the system logger writing through the HAL's line sink.
// Setting TRACE in the environment enables trace output.
func NewLogger(out hal.Logger) hclog.Logger {
	l := hclog.New(&hclog.LoggerOptions{
		Name:   "ferry",
		Output: lineWriter{out: out},
	})
	l.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		l.SetLevel(hclog.Trace)
	}
	return l
}

// lineWriter adapts a hal.Logger to io.Writer. hclog emits one line per
// Write, newline included.
type lineWriter struct {
	out hal.Logger
}

func (w lineWriter) Write(p []byte) (int, error) {
	if w.out == nil {
		return len(p), nil
	}
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte{'\n'}) {
		w.out.WriteLineBytes(line)
	}
	return len(p), nil
}
