package sentinel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"easypass/internal/security"
)

// DaemonState is written next to the lock file while the daemon runs.
type DaemonState struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	Backend   string    `json:"backend"`
	DryRun    bool      `json:"dry_run,omitempty"`
}

// DaemonManager handles daemon lifecycle operations from another process.
type DaemonManager struct {
	lockFile  string
	stateFile string
}

// NewDaemonManager creates a daemon manager for the lock file at lockPath.
func NewDaemonManager(lockPath string) *DaemonManager {
	return &DaemonManager{
		lockFile:  lockPath,
		stateFile: filepath.Join(filepath.Dir(lockPath), "easypass.state"),
	}
}

// LockPath returns the lock file path.
func (m *DaemonManager) LockPath() string { return m.lockFile }

// IsRunning checks if the daemon is running.
func (m *DaemonManager) IsRunning() bool {
	pid, err := m.ReadPID()
	if err != nil {
		return false
	}
	return isProcessRunning(pid)
}

// ReadPID reads the daemon's PID from the lock file.
func (m *DaemonManager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.lockFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file: %w", err)
	}
	return pid, nil
}

// WriteState writes the daemon state.
func (m *DaemonManager) WriteState(state *DaemonState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return security.WriteSecretFile(m.stateFile, data)
}

// ReadState reads the daemon state.
func (m *DaemonManager) ReadState() (*DaemonState, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}

	var state DaemonState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// SignalStop sends SIGTERM to the daemon.
func (m *DaemonManager) SignalStop() error {
	return m.signal(syscall.SIGTERM)
}

// SignalReload sends SIGHUP to the daemon, which reloads its
// configuration.
func (m *DaemonManager) SignalReload() error {
	return m.signal(syscall.SIGHUP)
}

func (m *DaemonManager) signal(sig os.Signal) error {
	pid, err := m.ReadPID()
	if err != nil {
		return fmt.Errorf("read PID: %w", err)
	}
	if !isProcessRunning(pid) {
		return ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	return process.Signal(sig)
}

// WaitForStop waits for the daemon to stop.
func (m *DaemonManager) WaitForStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %v", timeout)
}

// Cleanup removes the state file.
func (m *DaemonManager) Cleanup() {
	os.Remove(m.stateFile)
}

// DaemonStatus represents the daemon status for display.
type DaemonStatus struct {
	Running   bool
	PID       int
	StartedAt time.Time
	Uptime    time.Duration
	Version   string
	Backend   string
	DryRun    bool
}

// Status returns the current daemon status.
func (m *DaemonManager) Status() *DaemonStatus {
	status := &DaemonStatus{}

	pid, err := m.ReadPID()
	if err == nil && isProcessRunning(pid) {
		status.Running = true
		status.PID = pid
	}

	if state, err := m.ReadState(); err == nil && status.Running {
		status.StartedAt = state.StartedAt
		status.Uptime = time.Since(state.StartedAt)
		status.Version = state.Version
		status.Backend = state.Backend
		status.DryRun = state.DryRun
	}
	return status
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds. Send signal 0 to check if process exists.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
