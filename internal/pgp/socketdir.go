package pgp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SocketDirVariant selects which well-known runtime directory an
// agent-backed verifier's per-user socket directory lives under.
type SocketDirVariant int

const (
	// RunUser is "/run/user/<uid>".
	RunUser SocketDirVariant = iota
	// RunGnupgUser is "/run/gnupg/user/<uid>".
	RunGnupgUser
)

// EnsureSocketDir creates the per-user agent socket directory with mode
// 0700, per spec.md §4.F. Creation failure is logged and returned as a
// non-fatal condition: callers that can proceed without an agent socket
// (e.g. the raw-packet backend, or tests) are expected to ignore the
// error after logging.
//
// SELinux label handling is best-effort: the corpus carries no SELinux
// binding (no example repo imports one), so this applies only the
// directory mode and relies on the ambient default context inherited from
// the parent directory, which is what a plain os.MkdirAll does on a
// correctly labeled system. See DESIGN.md for why no third-party SELinux
// library is wired in.
func EnsureSocketDir(variant SocketDirVariant, uid int) (string, error) {
	var base string
	switch variant {
	case RunGnupgUser:
		base = "/run/gnupg/user"
	default:
		base = "/run/user"
	}

	dir := filepath.Join(base, fmt.Sprintf("%d", uid))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("failed to create agent socket directory", "dir", dir, "error", err)
		return dir, err
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		slog.Warn("failed to set agent socket directory mode", "dir", dir, "error", err)
		return dir, err
	}
	return dir, nil
}
