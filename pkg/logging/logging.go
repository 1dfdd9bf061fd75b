package logging

import (
	"log"
	"strings"
	"sync/atomic"
)

// Level filters which messages reach stderr. Standard output carries
// protocol framing, so everything here must stay on the standard logger's
// default stderr destination.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var level atomic.Int32

func init() {
	level.Store(int32(LevelInfo))
}

// SetLevel replaces the active log level.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// ParseLevel maps a directive string (as found in the FS_SEARCH_LOG
// environment variable) to a level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) {
	if Level(level.Load()) <= LevelDebug {
		log.Printf("DEBUG "+format, args...)
	}
}

// Infof logs at info level.
func Infof(format string, args ...any) {
	if Level(level.Load()) <= LevelInfo {
		log.Printf("INFO "+format, args...)
	}
}

// Errorf logs at error level.
func Errorf(format string, args ...any) {
	if Level(level.Load()) <= LevelError {
		log.Printf("ERROR "+format, args...)
	}
}
