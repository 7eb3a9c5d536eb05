// Package oplock provides the exclusive file lock that serializes concurrent
// apm invocations against the same operation root.
package oplock

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Lock is a held advisory lock on a single file, released by Release.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if needed) the lock file at path and takes an
// exclusive, non-blocking flock(2) on it. A second concurrent apm against
// the same root fails fast here rather than racing the first.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "another apm invocation holds the operation lock")
	}
	return &Lock{f: f}, nil
}

// Release drops the lock and closes the underlying file descriptor. Safe to
// call from a deferred recover path, so a panic mid-operation still frees
// the lock for the next invocation.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
