// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package klog is a thin wrapper around the standard log package giving
// every driver subsystem a consistent "<name>: " message prefix, in place
// of a structured logging framework the teacher never pulls in.
package klog

import "log"

// Logger prefixes every message with a subsystem name.
type Logger struct {
	prefix string
}

// New returns a Logger prefixing messages with "name: ".
func New(name string) *Logger {
	return &Logger{prefix: name + ": "}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	log.Printf(l.prefix+format, args...)
}

// Error logs an error condition.
func (l *Logger) Error(format string, args ...any) {
	log.Printf(l.prefix+"error: "+format, args...)
}
