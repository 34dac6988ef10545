package log

import (
	"fmt"
)

const (
	// LogFormatPlain defines a logging format used for human-readable,
	// text-based output.
	LogFormatPlain string = "plain"

	// LogFormatText defines a logging format used for human-readable,
	// text-based output.
	LogFormatText string = "text"

	// LogFormatJSON defines a logging format for structured JSON output.
	LogFormatJSON string = "json"

	// Supported log levels.
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Logger defines a generic logging interface compatible with oprelay.
type Logger interface {
	Debug(msg string, keyVals ...interface{})
	Info(msg string, keyVals ...interface{})
	Error(msg string, keyVals ...interface{})

	With(keyVals ...interface{}) Logger
}

// Hexadecimal converts a []byte into a value rendered as uppercase
// hexadecimal by the fmt package.
type Hexadecimal struct {
	b []byte
}

func Hex(b []byte) Hexadecimal { return Hexadecimal{b: b} }

// String fulfills the Stringer interface within the fmt package.
func (s Hexadecimal) String() string {
	return fmt.Sprintf("%X", s.b)
}
