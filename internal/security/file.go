package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// File permission constants
const (
	// PermSecretFile is the permission for files that may hold the master key.
	PermSecretFile os.FileMode = 0600

	// PermSecretDir is the permission for directories holding secret files.
	PermSecretDir os.FileMode = 0700
)

// File operation errors
var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrAlreadyRunning      = errors.New("security: another instance holds the lock")
)

// WriteSecretFile writes data atomically with owner-only permissions.
// The data is written to a temporary file in the same directory first and
// then renamed over path.
func WriteSecretFile(path string, data []byte) error {
	path = filepath.Clean(path)
	if err := EnsureSecureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return writeAtomic(path, data, PermSecretFile)
}

// WriteFileAtomic writes data atomically with the given permissions. The
// parent directory is created if missing but its mode is left alone, so it
// suits files other programs must read, such as login entries.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return writeAtomic(path, data, perm)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := path + ".tmp." + randomSuffix()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

func randomSuffix() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// CheckSecretPermissions returns ErrInsecurePermissions if the file is
// readable or writable by group or others. Windows is not checked.
func CheckSecretPermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("%w: file %s has mode %04o, expected %04o",
			ErrInsecurePermissions, path, mode, PermSecretFile)
	}
	return nil
}

// EnsureSecureDir ensures a directory exists with owner-only permissions,
// tightening the mode of an existing directory if needed.
func EnsureSecureDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, PermSecretDir)
		}
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("security: %s is not a directory", path)
	}

	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, PermSecretDir); err != nil {
			return fmt.Errorf("fix directory permissions: %w", err)
		}
	}
	return nil
}

// InstanceLock is an exclusive lock on a pid file. Only one daemon may
// inject keystrokes at a time.
type InstanceLock struct {
	f *os.File
}

// AcquireInstanceLock takes a non-blocking exclusive lock on path and
// writes the current pid into it. ErrAlreadyRunning is returned when another
// process holds the lock.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	if err := EnsureSecureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, PermSecretFile)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := tryLockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &InstanceLock{f: f}, nil
}

// Release unlocks and removes the pid file.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	path := l.f.Name()
	err := unlockFile(l.f)
	l.f.Close()
	l.f = nil
	os.Remove(path)
	return err
}
