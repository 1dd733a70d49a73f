// Package flock provides an advisory exclusive file lock, used to
// serialize concurrent librepo processes against the same destination
// directory (spec.md §4.L: "a second process targeting the same
// destination_dir must not race the first's partial downloads").
//
// Grounded on the teacher's flock_test.go, the only pack evidence of
// this type: it expects a Flock wrapping exactly one *os.File,
// constructible as Flock{f}, with Lock/Unlock methods backed by a real
// OS-enforced lock (the test shells out to the flock(1) CLI utility to
// prove cross-process exclusion). No flock.go implementation shipped
// in the retrieved pack, so the body below is written directly against
// golang.org/x/sys/unix.Flock, which internal/digest/xattr_linux.go
// already pulls into the module for xattr access.
package flock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Flock is an advisory exclusive lock on an open file.
type Flock struct {
	f *os.File
}

// New returns a Flock over f. f is not closed by Lock/Unlock; the
// caller owns its lifetime.
func New(f *os.File) Flock {
	return Flock{f}
}

// Lock acquires an exclusive, non-blocking lock on the underlying
// file. It returns an error immediately if another process already
// holds the lock, rather than waiting for it to be released.
func (fl Flock) Lock() error {
	return unix.Flock(int(fl.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// Unlock releases the lock acquired by Lock.
func (fl Flock) Unlock() error {
	return unix.Flock(int(fl.f.Fd()), unix.LOCK_UN)
}
