// Package diag is the engine's diagnostic logger: a thin wrapper over the
// standard log.Logger, in the same terse, occasional register as the
// teacher's errPrintf pool-audit helper — not a structured logging
// framework, just attributable, prefixed lines for pool-audit and worker
// diagnostics.
package diag

import (
	"log"
	"os"
)

// Logger prefixes every line with a component tag so pool-audit and worker
// diagnostics from many RamDisk volumes or BlockCache instances can be told
// apart in a shared process log.
type Logger struct {
	l *log.Logger
}

// New returns a Logger tagging its output with component.
func New(component string) *Logger {
	return &Logger{l: log.New(os.Stderr, "["+component+"] ", log.LstdFlags)}
}

// Printf logs a formatted diagnostic line.
func (d *Logger) Printf(format string, args ...any) {
	d.l.Printf(format, args...)
}
