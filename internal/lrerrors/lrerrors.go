// Package lrerrors defines the error-kind taxonomy shared across librepo's
// packages. It replaces librepo's C enum rcode (see original_source's
// rcodes.h) with a typed, errors.Is-comparable Kind, carried on top of
// github.com/cockroachdb/errors-wrapped errors the way the teacher wraps
// every error that crosses a package boundary.
package lrerrors

import "github.com/cockroachdb/errors"

// Kind identifies the category of a librepo error, per spec.md §7.
type Kind string

const (
	BadArgument           Kind = "bad_argument"
	NoURL                 Kind = "no_url"
	Transport             Kind = "transport"
	BadStatus             Kind = "bad_status"
	BadChecksum           Kind = "bad_checksum"
	UnknownChecksum       Kind = "unknown_checksum"
	IO                    Kind = "io"
	RepomdXML             Kind = "repomd_xml"
	MetalinkXML           Kind = "metalink_xml"
	MirrorlistBad         Kind = "mirrorlist_bad"
	MetalinkBad           Kind = "metalink_bad"
	SignatureNotSupported Kind = "signature_not_supported"
	SignatureError        Kind = "signature_error"
	BadSignature          Kind = "bad_signature"
	IncompleteRepo        Kind = "incomplete_repo"
	CannotCreateTmp       Kind = "cannot_create_tmp"
	CannotCreateDir       Kind = "cannot_create_dir"
	Interrupted           Kind = "interrupted"
	Select                Kind = "select"
	AlreadyDownloaded     Kind = "already_downloaded"
	NotLocal              Kind = "not_local"
)

// kindError wraps an underlying error with a Kind so callers can test
// errors.Is(err, lrerrors.Kind(lrerrors.BadChecksum)) without losing the
// original message or stack trace.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return string(e.kind) + ": " + e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Is reports whether target is a Kind equal to e's, or an identically-kinded
// kindError. This lets callers write errors.Is(err, lrerrors.Is(BadChecksum)).
func (e *kindError) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.kind == k
	}
	if ke, ok := target.(*kindError); ok {
		return e.kind == ke.kind
	}
	return false
}

// Is reports whether err (or any error in its chain) carries the given Kind.
func Is(err error, k Kind) bool {
	return errors.Is(err, k)
}

// KindOf returns the Kind recorded on err, or "" if none was attached with
// New/Wrap.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}

// New creates a new error with Kind k and message msg.
func New(k Kind, msg string) error {
	return &kindError{kind: k, err: errors.New(msg)}
}

// Newf creates a new error with Kind k and a formatted message.
func Newf(k Kind, format string, args ...any) error {
	return &kindError{kind: k, err: errors.Newf(format, args...)}
}

// Wrap annotates err with Kind k, preserving err in the Unwrap chain so
// errors.Is/errors.As still see through to it.
func Wrap(err error, k Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: k, err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, k Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: k, err: errors.Wrapf(err, format, args...)}
}

// Ensure Kind itself satisfies the comparable-against-errors.Is contract:
// errors.Is(err, SomeKind) works because kindError.Is special-cases Kind.
var _ error = (*kindError)(nil)

func (k Kind) Error() string { return string(k) }
