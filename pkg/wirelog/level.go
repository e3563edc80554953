package wirelog

import (
	"errors"
	"fmt"
)

// Level is a log severity. It implements flag.Value so a command can wire
// it straight to a flag: flag.Var(&level, "level", "...").
type Level int

// Log levels supported:
// DEBUG -> INFO -> WARN -> ERROR -> FATAL
const (
	_ Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	FATAL
)

// ParseLevel returns the log level named by s.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return -1, errors.New("invalid log level")
}

// Set implements flag.Value.
func (l *Level) Set(s string) (err error) {
	*l, err = ParseLevel(s)
	return
}

// String implements flag.Value and fmt.Stringer.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	case FATAL:
		return "fatal"
	}
	return fmt.Sprintf("level(%d)", l)
}
