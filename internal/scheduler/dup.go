package scheduler

import (
	"os"
	"syscall"
)

// dupFile duplicates f's underlying descriptor so the scheduler can close
// its own handle on every exit path without affecting the caller's
// (spec.md §4.I step 3, §5 "file-descriptor discipline").
func dupFile(f *os.File) (*os.File, error) {
	newFD, err := syscall.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(newFD), f.Name()), nil
}
