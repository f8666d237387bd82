package dispatch

import "fmt"

// Mode selects where tokenizing runs.
type Mode int

const (
	// Sync tokenizes in the caller's goroutine.
	Sync Mode = iota
	// Async hands tokenizing to a Worker.
	Async
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps "sync" / "async" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "sync":
		return Sync, nil
	case "async":
		return Async, nil
	default:
		return Sync, fmt.Errorf("unknown mode %q", s)
	}
}

// State is one step of a request's lifecycle.
type State int

const (
	Idle State = iota
	Dispatched
	AwaitingWorkerReply
	Tokenized
	Aborted
	Stringified
	Delivered
)

var stateNames = [...]string{
	Idle:                "idle",
	Dispatched:          "dispatched",
	AwaitingWorkerReply: "awaiting-worker-reply",
	Tokenized:           "tokenized",
	Aborted:             "aborted",
	Stringified:         "stringified",
	Delivered:           "delivered",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets traces serialize as names.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
