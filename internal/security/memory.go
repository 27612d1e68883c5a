//go:build unix

// Package security provides secret-handling utilities for easypass.
//
// This package implements:
// - Secure memory wiping for the master key and generated passwords
// - Memory locking (prevents swapping of the master key)
// - Constant-time comparisons
// - Secret file and process hygiene (permissions, core dumps, instance lock)
package security

import (
	"crypto/subtle"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SecureBytes is a byte slice that gets zeroed when freed.
// The master key lives in one of these for the lifetime of the process.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes creates a new SecureBytes with the given capacity.
// The memory is locked to prevent swapping (if privileges allow).
func NewSecureBytes(size int) (*SecureBytes, error) {
	sb := &SecureBytes{
		data: make([]byte, size),
	}

	// mlock fails without CAP_IPC_LOCK or with a low RLIMIT_MEMLOCK;
	// the bytes are still wiped on Destroy.
	_ = sb.lock()

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb, nil
}

// FromBytes creates SecureBytes from existing data.
// The original data is zeroed after copying.
func FromBytes(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}

	copy(sb.data, data)
	Wipe(data)

	return sb, nil
}

// Bytes returns the underlying byte slice.
// The returned slice is a borrowed view: do not retain or modify it.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Len returns the length of the secure bytes.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Locked reports whether the memory is pinned with mlock.
func (s *SecureBytes) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy securely wipes and unlocks the memory.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	wipeBytes(s.data)

	if s.locked {
		s.unlock()
	}

	s.data = nil
}

// lock attempts to lock the memory to prevent swapping.
func (s *SecureBytes) lock() error {
	if len(s.data) == 0 {
		return nil
	}

	if err := unix.Mlock(s.data); err != nil {
		return err
	}

	s.locked = true
	return nil
}

// unlock releases the memory lock.
func (s *SecureBytes) unlock() {
	if len(s.data) == 0 {
		return
	}

	_ = unix.Munlock(s.data)
	s.locked = false
}

// Wipe overwrites a byte slice with zeros.
func Wipe(data []byte) {
	wipeBytes(data)
}

func wipeBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	for i := range data {
		data[i] = 0
	}

	runtime.KeepAlive(data)
}

// WipeString overwrites a string's underlying bytes with zeros and clears
// the string. It only works for strings backed by heap memory, such as
// values produced by a decoder; never call it on a literal.
func WipeString(s *string) {
	if s == nil || len(*s) == 0 {
		return
	}

	data := unsafe.Slice(unsafe.StringData(*s), len(*s))
	wipeBytes(data)
	*s = ""
}

// ConstantTimeCompare compares two byte slices in constant time.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GuardedExec executes a function with automatic key cleanup.
// The provided key is wiped after the function returns, regardless of errors.
func GuardedExec(key []byte, fn func([]byte) error) error {
	defer Wipe(key)
	return fn(key)
}
