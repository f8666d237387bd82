package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/corey/hilite/internal/adapters/socket"
)

// isDBLockError returns true if the error chain contains a bbolt lock timeout.
// bbolt returns the string "timeout" when it cannot acquire the file lock
// within the configured deadline.
func isDBLockError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "timeout")
}

// diagnoseDBLock checks the daemon state and returns actionable guidance
// when the tree cache cannot be opened because another process holds it.
func diagnoseDBLock(sockPath string) string {
	client := socket.NewClient(sockPath)

	if client.Ping() {
		return "tree cache is locked by the running daemon\n" +
			"  → use it instead:  hilite highlight --remote …\n" +
			"  → or stop it:      hilite daemon stop"
	}

	if _, err := os.Stat(sockPath); err == nil {
		return fmt.Sprintf("tree cache is locked, and the daemon socket exists but is not responding\n"+
			"  → a previous daemon may have crashed\n"+
			"  → find the process:  ps aux | grep 'hilite daemon'\n"+
			"  → clean up socket:   rm %s", sockPath)
	}

	return "tree cache is locked by another process\n" +
		"  → find the process:  ps aux | grep hilite\n" +
		"  → or run with --cache=false"
}
