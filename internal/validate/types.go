// SPDX-License-Identifier: MIT
package validate

import "github.com/rs/zerolog"

// logLevels are the level names internal/log accepts from configuration.
var logLevels = map[string]zerolog.Level{
	"trace": zerolog.TraceLevel,
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
}

// ErrInvalidLogLevel is returned by ParseLogLevel for an unknown name.
var ErrInvalidLogLevel = &Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: trace, debug, info, warn, error)",
}

// ParseLogLevel maps a configured level name onto its zerolog level. Names
// are matched exactly, as zerolog.ParseLevel does when the logger is built.
func ParseLogLevel(s string) (zerolog.Level, error) {
	lvl, ok := logLevels[s]
	if !ok {
		return zerolog.NoLevel, ErrInvalidLogLevel
	}
	return lvl, nil
}
