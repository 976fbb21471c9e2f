// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package logging is the application-wide logging facade. It wraps
// charmbracelet/log so packages never import the logger directly.
package logging

import (
	"os"

	log "github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

// SetDebug enables or disables debug logging for the application.
// Debugf is a no-op when debug is disabled.
func SetDebug(enabled bool) {
	if enabled {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// Debugf logs a formatted debug message when debug is enabled.
func Debugf(format string, v ...any) {
	logger.Debugf(format, v...)
}

// Infof logs an informational formatted message.
func Infof(format string, v ...any) {
	logger.Infof(format, v...)
}

// Warnf logs a warning formatted message.
func Warnf(format string, v ...any) {
	logger.Warnf(format, v...)
}

// Errorf logs an error formatted message.
func Errorf(format string, v ...any) {
	logger.Errorf(format, v...)
}
