package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir, ":8080")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	if lock.Path() != lockPath {
		t.Errorf("Lock path = %q, want %q", lock.Path(), lockPath)
	}

	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	owner := parseOwner(string(content))
	if owner.PID != os.Getpid() {
		t.Errorf("Lock file pid = %d, want %d", owner.PID, os.Getpid())
	}
	if owner.Addr != ":8080" {
		t.Errorf("Lock file addr = %q, want :8080", owner.Addr)
	}
	if time.Since(owner.Started) > time.Minute {
		t.Errorf("Lock file start time %v is not recent", owner.Started)
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir, "127.0.0.1:9000")
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir, "")
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("Expected error to match ErrLocked")
	}
	if lockErr.Owner == nil || lockErr.Owner.PID != os.Getpid() {
		t.Errorf("Expected owner to be this process, got %+v", lockErr.Owner)
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, tempDir) {
		t.Errorf("Error message should contain the lock path: %s", errMsg)
	}
	if !strings.Contains(errMsg, "(running)") || !strings.Contains(errMsg, "127.0.0.1:9000") {
		t.Errorf("Error message should describe the holder: %s", errMsg)
	}

	// The failed attempt must not clobber the holder's information.
	content, _ := os.ReadFile(filepath.Join(tempDir, LockFileName))
	if parseOwner(string(content)).Addr != "127.0.0.1:9000" {
		t.Errorf("Holder information was overwritten: %q", content)
	}
}

func TestLockRelease(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir, "")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	lockPath := lock.Path()

	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}
}

func TestLockReacquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir, "")
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	lock1.Release()

	lock2, err := AcquireLock(tempDir, "")
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	defer lock2.Release()
}

func TestParseOwner(t *testing.T) {
	started := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	tests := []struct {
		name     string
		content  string
		expected Owner
	}{
		{"round trip", Owner{PID: 42, Started: started, Addr: ":8080"}.encode(), Owner{PID: 42, Started: started, Addr: ":8080"}},
		{"pid only", "pid=12345\n", Owner{PID: 12345}},
		{"unknown keys", "pid=7\nhost=x\n", Owner{PID: 7}},
		{"invalid pid", "pid=abc", Owner{}},
		{"no equals", "pid12345", Owner{}},
		{"empty content", "", Owner{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOwner(tt.content)
			if got.PID != tt.expected.PID || got.Addr != tt.expected.Addr || !got.Started.Equal(tt.expected.Started) {
				t.Errorf("parseOwner(%q) = %+v, want %+v", tt.content, got, tt.expected)
			}
		})
	}
}

func TestDescribeStaleOwner(t *testing.T) {
	e := &LockError{LockPath: "/x/launchpipe.lock", Owner: &Owner{PID: 999999}}
	if isProcessRunning(999999) {
		t.Skip("pid 999999 exists on this host")
	}
	if !strings.Contains(e.Error(), "stale lock") {
		t.Errorf("Expected stale lock description, got %s", e.Error())
	}

	e = &LockError{LockPath: "/x/launchpipe.lock"}
	if !strings.Contains(e.Error(), "unknown process") {
		t.Errorf("Expected unknown holder description, got %s", e.Error())
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}

func TestNonExistentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir, "")
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Directory should have been created: %s", dir)
	}
}
