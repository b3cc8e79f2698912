package cmd

import (
	"errors"
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"

	"github.com/corey/temmekit/internal/adapters/socket"
)

// exitError is returned to signal a specific exit code without another
// message. check uses 1 for syntax errors.
type exitError struct{ code int }

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

// ExitCode extracts the exit code from an exitError.
// Returns -1 if the error is not an exitError.
func ExitCode(err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return -1
}

// isDBLockError returns true if the error chain contains a bbolt lock timeout.
func isDBLockError(err error) bool {
	return err != nil && errors.Is(err, bolt.ErrTimeout)
}

// lockError replaces a lock timeout with actionable guidance.
func lockError(root string, err error) error {
	if !isDBLockError(err) {
		return err
	}
	return errors.New(diagnoseDBLock(root))
}

// diagnoseDBLock checks the daemon state and returns actionable guidance
// when a bbolt open fails due to lock contention. It distinguishes three
// scenarios: daemon running, stale socket, and unknown lock holder.
func diagnoseDBLock(root string) string {
	sockPath := socket.SocketPath(root)
	client := socket.NewClient(sockPath)

	if client.Ping() {
		return "database is locked by the running daemon\n" +
			"  → stop it first:  temme daemon stop\n" +
			"  → then retry your command"
	}

	if _, err := os.Stat(sockPath); err == nil {
		return fmt.Sprintf("database is locked — daemon socket exists but is not responding\n"+
			"  → a previous daemon may have crashed\n"+
			"  → find the process:  ps aux | grep 'temme daemon'\n"+
			"  → kill it:           kill <PID>\n"+
			"  → clean up socket:   rm %s", sockPath)
	}

	return "database is locked by another process\n" +
		"  → a foreground watch or an editor's language server may hold it\n" +
		"  → find the process:  ps aux | grep 'temme'\n" +
		"  → then retry your command"
}
