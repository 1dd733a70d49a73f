package scheduler

import (
	"net/http"

	"github.com/go-librepo/librepo/internal/urlsubst"
)

// Options is the subset of Handle configuration (spec.md §3) the
// scheduler itself consumes. A higher-level config package owns the
// full Handle and narrows it to this shape before calling Run.
type Options struct {
	DestinationDir string

	MaxParallelConnections int
	// MaxConnectionsPerHost caps RunningTransfers per mirror; -1 disables
	// the cap (spec.md §3).
	MaxConnectionsPerHost int
	// MaxMirrorRetries <= 0 means "try every mirror" (spec.md §3).
	MaxMirrorRetries int
	// MaxSpeed is a bytes/sec ceiling; 0 means unlimited.
	MaxSpeed int64

	ResumeDownloads bool
	Interruptible   bool

	URLSubstitution urlsubst.Vars

	HTTPClient *http.Client
}

func (o Options) maxParallel() int {
	if o.MaxParallelConnections <= 0 {
		return 3
	}
	return o.MaxParallelConnections
}

func (o Options) hostCapReached(running int) bool {
	limit := o.MaxConnectionsPerHost
	if limit == 0 {
		limit = 2 // spec.md §3 default
	}
	if limit < 0 {
		return false // -1 disables the cap
	}
	return running >= limit
}
