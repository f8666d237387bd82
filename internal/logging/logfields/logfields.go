// Package logfields defines common logging fields which are used across packages
package logfields

const (
	// LogSubsys is the field denoting the subsystem when logging
	LogSubsys = "subsys"

	// Grammar is the name of a registered grammar
	Grammar = "grammar"

	// Rule is the name of a rule within a grammar
	Rule = "rule"

	// Mode is the execution mode of a highlight request (sync or async)
	Mode = "mode"

	// RequestID identifies a single highlight request
	RequestID = "requestID"

	// BufferSize is the element count of a working buffer
	BufferSize = "bufferSize"

	// TextLength is the rune length of a tokenized input
	TextLength = "textLength"

	// Path is a filesystem path
	Path = "path"

	// Socket is a unix socket path
	Socket = "socket"

	// Port is a TCP port
	Port = "port"

	// Method is a daemon protocol method name
	Method = "method"

	// Duration is the duration of an operation
	Duration = "duration"

	// Count is a generic counter
	Count = "count"

	// Error is the field used for errors
	Error = "error"
)
