package scheduler

import (
	"os"

	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/target"
)

// status is a TransferState's lifecycle stage (spec.md §3).
type status int

const (
	waiting status = iota
	running
	finished
	failed
)

// transferState is the scheduler-internal record for one in-flight or
// waiting DownloadTarget (spec.md §3's TransferState).
type transferState struct {
	tgt          *target.Target
	status       status
	boundMirror  *mirror.State
	triedMirrors map[*mirror.State]bool

	// originalOffset is -1 until determined (spec.md: "not yet
	// determined"); it is the byte offset a resumed transfer started
	// from, and the size the file is truncated back to on failure.
	originalOffset int64

	file *os.File
	// dupedFD is true when file wraps a caller-supplied descriptor that
	// must not be closed by the scheduler, only the duplicate.
	callerOwnsFile bool

	cancel func()
}

func newTransferState(t *target.Target) *transferState {
	t.ReturnCode = target.Unfinished
	t.ErrorMessage = "not finished"
	return &transferState{
		tgt:            t,
		status:         waiting,
		triedMirrors:   make(map[*mirror.State]bool),
		originalOffset: -1,
	}
}
