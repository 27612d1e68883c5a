//go:build !unix

package security

// Fallback implementations for non-Unix systems

import (
	"crypto/subtle"
	"runtime"
	"sync"
	"unsafe"
)

// SecureBytes is a byte slice that gets zeroed when freed.
type SecureBytes struct {
	data []byte
	mu   sync.Mutex
}

// NewSecureBytes creates a new SecureBytes with the given capacity.
func NewSecureBytes(size int) (*SecureBytes, error) {
	sb := &SecureBytes{
		data: make([]byte, size),
	}

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

// Locked always reports false: memory locking is unix-only.
func (s *SecureBytes) Locked() bool {
	return false
}

// Destroy securely wipes the memory.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	wipeBytes(s.data)
	s.data = nil
}

// Wipe overwrites a byte slice with zeros.
func Wipe(data []byte) {
	wipeBytes(data)
}

func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// WipeString overwrites a heap-backed string's bytes and clears it.
func WipeString(s *string) {
	if s == nil || len(*s) == 0 {
		return
	}
	wipeBytes(unsafe.Slice(unsafe.StringData(*s), len(*s)))
	*s = ""
}

// ConstantTimeCompare compares two byte slices in constant time.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GuardedExec executes a function with automatic key cleanup.
func GuardedExec(key []byte, fn func([]byte) error) error {
	defer Wipe(key)
	return fn(key)
}
