// Package wirelog is a small multi-sink leveled logger: call AddLogger to
// attach an io.Writer at a given level, then log through the package-level
// Debug/Info/Warn/Error/Fatal functions and every attached sink receives
// messages at or above its own level.
package wirelog

import (
	"io"
	golog "log"
	"os"
	"sync"
)

var (
	loggers = make(map[string]*wireLogger)
	logLock sync.RWMutex
)

// AddLogger attaches a named sink. output is typically os.Stderr or an
// open file; level is the minimum severity the sink accepts; color adds
// ANSI highlighting to the level tag (disable for a log file).
func AddLogger(name string, output io.Writer, level Level, color bool) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &wireLogger{logger: golog.New(output, "", golog.LstdFlags), Level: level, Color: color}
}

// DelLogger detaches a previously added sink.
func DelLogger(name string) {
	logLock.Lock()
	defer logLock.Unlock()

	delete(loggers, name)
}

func log(level Level, name, format string, arg ...interface{}) {
	logLock.RLock()
	for _, l := range loggers {
		if level >= l.Level {
			l.log(level, name, format, arg...)
		}
	}
	logLock.RUnlock()

	if level == FATAL {
		os.Exit(1)
	}
}

func Debug(format string, arg ...interface{}) { log(DEBUG, "", format, arg...) }
func Info(format string, arg ...interface{})  { log(INFO, "", format, arg...) }
func Warn(format string, arg ...interface{})  { log(WARN, "", format, arg...) }
func Error(format string, arg ...interface{}) { log(ERROR, "", format, arg...) }
func Fatal(format string, arg ...interface{}) { log(FATAL, "", format, arg...) }

