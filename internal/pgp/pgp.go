// Package pgp implements detached OpenPGP signature verification behind
// two interchangeable back-end strategies (spec.md §4.F): an agent-backed
// strategy using gopenpgp/v3's high-level API, and a raw-packet strategy
// that maintains its own keyring directory using go-crypto/openpgp
// directly. Grounded on the teacher's apt_parser.go, which drives
// gopenpgp/v3 the same way for APT Release/InRelease verification; the
// raw-packet backend is enrichment from go-crypto/openpgp, which the
// gopenpgp/v3 stack itself vendors for lower-level packet access.
package pgp

import (
	"context"
	"io"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// Key describes one OpenPGP public key known to a backend's keyring.
type Key struct {
	KeyID   string
	UserIDs []string
	Subkeys []string
	// Raw holds the key's exported bytes, populated only when ListKeys is
	// called with export=true.
	Raw []byte
}

// Verifier is the common surface both back-end strategies expose, as
// spec.md §4.F requires: detached-signature checking, key import from any
// of a byte buffer, an open file, or a path, and key listing with
// optional export.
type Verifier interface {
	// CheckDetachedSignature verifies sig against data using keys found
	// under homeDir. It returns a lrerrors.BadSignature-kind error when
	// the signature does not verify, and lrerrors.SignatureError for any
	// operational failure (unreadable keyring, malformed signature).
	CheckDetachedSignature(ctx context.Context, sig, data io.Reader, homeDir string) error

	// ImportKey adds a key to the homeDir keyring. source must be
	// []byte, *os.File, or a string path.
	ImportKey(source any, homeDir string) error

	// ListKeys enumerates the keys present under homeDir. When export is
	// true, each Key's Raw field is populated with its exported bytes.
	ListKeys(homeDir string, export bool) ([]Key, error)
}

func badSignature(err error) error {
	return lrerrors.Wrap(err, lrerrors.BadSignature, "signature verification failed")
}

func signatureError(err error, msg string) error {
	return lrerrors.Wrap(err, lrerrors.SignatureError, msg)
}
