// Package logging is a thin leveled wrapper over the standard log package,
// matching the plain log.Printf/log.Fatalf style every cmd/ entry point in
// this tree uses — no structured-logging library is introduced here (see
// DESIGN.md).
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger prefixes every line with a process tag, so a multi-process demo run
// inside one terminal stays readable.
type Logger struct {
	std *log.Logger
}

// New returns a Logger tagging every line with "[pid <pid>] ".
func New(pid int) *Logger {
	return &Logger{std: log.New(os.Stderr, fmt.Sprintf("[pid %d] ", pid), log.LstdFlags)}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.std.Printf("INFO  "+format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.std.Printf("ERROR "+format, args...)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.std.Fatalf("FATAL "+format, args...)
}
