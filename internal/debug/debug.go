// Package debug is the opt-in diagnostic log. It stays silent unless enabled
// at build time or through the environment, so hot paths can log freely.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Enable can be overridden at build time:
//
//	go build -ldflags "-X github.com/standardbeagle/medlink/internal/debug.Enable=true"
var Enable = "false"

var (
	mu     sync.Mutex
	output io.Writer
)

// SetOutput directs debug output to w. Pass nil to fall back to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Enabled reports whether debug logging is on, either via the build flag or
// the MEDLINK_DEBUG environment variable.
func Enabled() bool {
	if Enable == "true" {
		return true
	}
	v := os.Getenv("MEDLINK_DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if output != nil {
		return output
	}
	return os.Stderr
}

// Printf writes a formatted debug message when debug logging is enabled.
func Printf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(writer(), "[DEBUG] "+format, args...)
}

// Log writes a component-tagged debug message when debug logging is enabled.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(writer(), "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}
