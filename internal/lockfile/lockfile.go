// Package lockfile keeps two LaunchPipe instances from sharing one state
// directory (and with it one SQLite database and WhatsApp device store).
//
// The lock is an flock on a file in the state directory, so the kernel drops
// it when the process exits, even on a crash.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "launchpipe.lock"

// ErrLocked is wrapped by LockError when another process holds the lock.
var ErrLocked = errors.New("state directory is locked by another LaunchPipe instance")

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID     int
	Started time.Time
	Addr    string
}

func (o Owner) encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", o.PID)
	fmt.Fprintf(&b, "started=%s\n", o.Started.UTC().Format(time.RFC3339))
	if o.Addr != "" {
		fmt.Fprintf(&b, "addr=%s\n", o.Addr)
	}
	return b.String()
}

// parseOwner reads the key=value lines written by encode. Unknown keys and
// malformed lines are skipped.
func parseOwner(content string) Owner {
	var o Owner
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "started":
			o.Started, _ = time.Parse(time.RFC3339, value)
		case "addr":
			o.Addr = value
		}
	}
	return o
}

// Lock is a held state-directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the exclusive lock on stateDir, creating the directory
// when needed. addr is recorded in the lock file for the benefit of whoever
// hits the conflict next; it may be empty.
func AcquireLock(stateDir, addr string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	// O_TRUNC would wipe the holder's info before we know whether we win.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		lerr := &LockError{LockPath: lockPath, Cause: err}
		if data, readErr := os.ReadFile(lockPath); readErr == nil {
			owner := parseOwner(string(data))
			lerr.Owner = &owner
		}
		slog.Error("lockfile.AcquireLock: state directory already locked", "lock_path", lockPath, "owner", lerr.describeOwner())
		return nil, lerr
	}

	owner := Owner{PID: os.Getpid(), Started: time.Now(), Addr: addr}
	if err := writeOwner(file, owner); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: acquired state directory lock", "lock_path", lockPath, "pid", owner.PID)
	return &Lock{file: file, path: lockPath}, nil
}

func writeOwner(file *os.File, owner Owner) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(owner.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.writeOwner: sync failed", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting instance never sees our stale file.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	l.file = nil
	slog.Info("lockfile.Release: released state directory lock", "lock_path", l.path)
	return errors.Join(errs...)
}

// LockError reports a lock held by another process.
type LockError struct {
	LockPath string
	Owner    *Owner
	Cause    error
}

func (e *LockError) describeOwner() string {
	if e.Owner == nil || e.Owner.PID == 0 {
		return "unknown process"
	}
	state := "not running, stale lock"
	if isProcessRunning(e.Owner.PID) {
		state = "running"
	}
	desc := fmt.Sprintf("PID %d (%s)", e.Owner.PID, state)
	if !e.Owner.Started.IsZero() {
		desc += ", started " + e.Owner.Started.Format(time.RFC3339)
	}
	if e.Owner.Addr != "" {
		desc += ", serving " + e.Owner.Addr
	}
	return desc
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%v\n\nLock file: %s\nHeld by: %s\n\n"+
		"If no other instance is running the lock is stale and can be removed with:\n  rm %s",
		ErrLocked, e.LockPath, e.describeOwner(), e.LockPath)
}

// Is matches ErrLocked.
func (e *LockError) Is(target error) bool {
	return target == ErrLocked
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
