package wirelog

import (
	"fmt"
	"runtime"
	"strconv"
)

type logger interface {
	Println(...interface{})
}

// wireLogger pairs a destination with the level it accepts and whether to
// colorize output. The caller's location is attached automatically unless
// name is given, in which case name stands in for it (e.g. a connection's
// remote address).
type wireLogger struct {
	logger

	Level Level
	Color bool
}

func (l *wireLogger) prologue(level Level, name string) (msg string) {
	switch level {
	case DEBUG:
		msg += "DEBUG "
	case INFO:
		msg += "INFO "
	case WARN:
		msg += "WARN "
	case ERROR:
		msg += "ERROR "
	default:
		msg += "FATAL "
	}

	if name == "" {
		_, file, line, _ := runtime.Caller(4)
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		msg += short + ":" + strconv.Itoa(line) + ": "
	} else {
		msg += name + ": "
	}

	if l.Color {
		msg = colorLine + msg
		switch level {
		case DEBUG:
			msg += colorDebug
		case INFO:
			msg += colorInfo
		case WARN:
			msg += colorWarn
		case ERROR:
			msg += colorError
		default:
			msg += colorFatal
		}
	}
	return
}

func (l *wireLogger) epilogue() string {
	if l.Color {
		return Reset
	}
	return ""
}

func (l *wireLogger) log(level Level, name, format string, arg ...interface{}) {
	l.Println(l.prologue(level, name) + fmt.Sprintf(format, arg...) + l.epilogue())
}
