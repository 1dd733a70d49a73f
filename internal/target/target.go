// Package target implements DownloadTarget (spec.md §3, §4.H): the
// request record the scheduler consumes, and the result slots it fills
// in. Grounded on the teacher's dlResult/download-request shapes in
// http_client.go, generalized from APT's single-checksum model to the
// ordered multi-checksum model metalinks require.
package target

import (
	"os"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// Checksum is one (algorithm, hex digest) pair. A metalink may advertise
// several algorithms for the same file; verification succeeds on the
// first matching pair.
type Checksum struct {
	Algorithm string
	HexDigest string
}

// ProgressFunc is called as bytes arrive. Returning a non-zero value
// aborts the current transfer (spec.md §4.I "Cancellation"); it is not
// treated as fatal to the whole scheduler call.
type ProgressFunc func(downloaded, total int64) (abort bool)

// EndFunc fires exactly once per target when the scheduler has finished
// with it, successfully or not.
type EndFunc func(t *Target)

// MirrorFailureFunc is called when an attempt on one mirror fails,
// before the scheduler moves on to the next mirror (or gives up).
// Returning true aborts the whole target instead of retrying.
type MirrorFailureFunc func(t *Target, mirrorURL string, err error) (abort bool)

// ReturnCode classifies how a target's transfer finished.
type ReturnCode int

const (
	// Unfinished is the placeholder value a target holds until the
	// scheduler's first completion pass touches it.
	Unfinished ReturnCode = iota
	OK
	Failed
)

// Target is one caller-supplied download request plus the result slots
// the scheduler fills in. Use New to construct one; its fields are
// otherwise plain so callers and the scheduler can share one struct
// without an accessor layer, matching a Go idiom the teacher already
// uses for its download-pipeline structs.
type Target struct {
	// Path is either a path relative to a mirror, or a full URL
	// (detected by containing "://"), in which case mirrors are
	// bypassed entirely.
	Path string
	// BaseURL, if set, overrides the mirror pool: Path is joined onto
	// it and no mirror is selected.
	BaseURL string

	// Destination is exactly one of a path or an already-open file;
	// DestFile and DestPath are mutually exclusive (enforced by New).
	DestPath string
	DestFile *os.File

	ExpectedChecksums []Checksum
	ExpectedSize      int64 // 0 means "not checked"

	Resume   bool
	IsZChunk bool

	OnProgress      ProgressFunc
	OnEnd           EndFunc
	OnMirrorFailure MirrorFailureFunc

	// Result slots, written only by the scheduler.
	UsedMirror   string
	EffectiveURL string
	ReturnCode   ReturnCode
	ErrorMessage string
}

// New builds a Target, copying path into target-owned storage (a plain
// Go string already owns its bytes, so this amounts to validating the
// destination invariant) so the caller may reuse or discard its inputs
// immediately afterward.
func New(path string, destPath string, destFile *os.File) (*Target, error) {
	if (destPath == "") == (destFile == nil) {
		return nil, lrerrors.New(lrerrors.BadArgument, "exactly one of destPath or destFile must be set")
	}
	return &Target{
		Path:         path,
		DestPath:     destPath,
		DestFile:     destFile,
		ReturnCode:   Unfinished,
		ErrorMessage: "not finished",
	}, nil
}

// IsFullURL reports whether Path is already an absolute URL (spec.md
// §4.I step 2).
func (t *Target) IsFullURL() bool {
	return containsScheme(t.Path)
}

func containsScheme(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' && s[i+1] == '/' && s[i+2] == '/' {
			return true
		}
	}
	return false
}

// WithChecksum appends one expected (algorithm, hex digest) pair,
// preserving the order the caller supplies them in; the scheduler tries
// them in this order and stops at the first match. As resolved for
// spec.md's legacy single-checksum open question: a caller that only has
// one checksum should call this once — the scheduler treats a
// one-element list exactly like the legacy single-checksum case.
func (t *Target) WithChecksum(algo, hex string) *Target {
	t.ExpectedChecksums = append(t.ExpectedChecksums, Checksum{Algorithm: algo, HexDigest: hex})
	return t
}
