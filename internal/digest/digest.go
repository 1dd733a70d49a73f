// Package digest implements librepo's streaming checksum engine (spec.md
// §4.A): computing digests over open file descriptors and caching verified
// results as filesystem extended attributes keyed on modification time.
//
// Grounded on the teacher's internal/apt.FileInfo (multi-algorithm hashing
// via io.MultiWriter over a single pass) and on original_source/librepo's
// checksum.c (xattr caching keyed on st_mtime), adapted to spec.md's
// explicit attribute names.
package digest

import (
	"crypto/md5"  // #nosec G501 - required for repository metadata compatibility
	"crypto/sha1" // #nosec G505 - required for repository metadata compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// blockSize is the read chunk size used while streaming a descriptor.
// spec.md §4.A says 2 KiB is sufficient.
const blockSize = 2048

// Algorithm is a recognized checksum algorithm name, lower-cased.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA224 Algorithm = "sha224"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// normalize maps a case-insensitive, possibly-aliased algorithm name
// ("SHA", "Sha1", "MD5") onto a canonical Algorithm. It returns ok=false for
// anything unrecognized so the caller never silently proceeds without one.
func normalize(name string) (Algorithm, bool) {
	switch strings.ToLower(name) {
	case "md5":
		return MD5, true
	case "sha1", "sha":
		return SHA1, true
	case "sha224":
		return SHA224, true
	case "sha256":
		return SHA256, true
	case "sha384":
		return SHA384, true
	case "sha512":
		return SHA512, true
	default:
		return "", false
	}
}

func newHasher(a Algorithm) (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil // #nosec G401 - required for repository metadata compatibility
	case SHA1:
		return sha1.New(), nil // #nosec G401 - required for repository metadata compatibility
	case SHA224:
		return sha256.New224(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, lrerrors.Newf(lrerrors.UnknownChecksum, "unknown checksum algorithm %q", a)
	}
}

// Compute streams r (an already-positioned reader, typically a file
// descriptor the caller has seeked) and returns the hex digest of its
// contents for the named algorithm. It never reads beyond EOF and never
// closes r.
func Compute(algo string, r io.Reader) (string, error) {
	a, ok := normalize(algo)
	if !ok {
		return "", lrerrors.Newf(lrerrors.UnknownChecksum, "unknown checksum algorithm %q", algo)
	}
	h, err := newHasher(a)
	if err != nil {
		return "", err
	}
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", lrerrors.Wrap(err, lrerrors.IO, "reading stream for checksum")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CompareResult is the outcome of Compare.
type CompareResult struct {
	Matches bool
	Actual  string // the computed (or cache-hit) digest, always populated
}

// FileAt is the minimal surface Compare needs from an open file: seeking to
// the start for a fresh read, and an xattr-capable handle for caching.
// *os.File satisfies it.
type FileAt interface {
	io.ReaderAt
}

// xattrStore abstracts the extended-attribute operations Compare needs so
// it can be tested without real xattr support, and so the cache is
// best-effort on filesystems that lack it (spec.md §4.A).
type xattrStore interface {
	// ModTimeNanos returns the file's current mtime as nanoseconds since
	// the epoch.
	ModTimeNanos() (int64, error)
	Get(name string) (string, bool, error)
	Set(name, value string) error
	Remove(name string) error
	List() ([]string, error)
}

const (
	xattrPrefix  = "user.Librepo.checksum."
	xattrMtime   = xattrPrefix + "mtime"
)

func xattrForAlgo(a Algorithm) string {
	return xattrPrefix + string(a)
}

// Compare computes (or, if useCache is true and a valid cache entry exists,
// looks up) the digest of f under algo and compares it against expected.
//
// Caching semantics (spec.md §4.A, §9 Open Questions — source behavior is
// kept): a cache hit requires the stored mtime to equal the file's current
// mtime; on a hit the stored digest is compared directly against expected
// without re-reading the file. On a miss, the digest is computed by reading
// r, and the result is written back to the cache *only if it matches
// expected* — i.e. the cache records confirmed-good digests, it is never
// populated to merely memoize an unconfirmed read.
func Compare(algo string, r io.Reader, xs xattrStore, expected string, useCache bool) (CompareResult, error) {
	a, ok := normalize(algo)
	if !ok {
		return CompareResult{}, lrerrors.Newf(lrerrors.UnknownChecksum, "unknown checksum algorithm %q", algo)
	}

	if useCache && xs != nil {
		if actual, hit, err := lookupCache(xs, a); err == nil && hit {
			return CompareResult{Matches: actual == expected, Actual: actual}, nil
		}
		// Cache miss (including "xattrs not supported", demoted to
		// "no cache" per spec.md §4.A) falls through to a real read.
	}

	actual, err := Compute(string(a), r)
	if err != nil {
		return CompareResult{}, err
	}

	matches := actual == expected
	if useCache && xs != nil && matches {
		_ = storeCache(xs, a, actual) // best-effort; caching never fails the comparison
	}

	return CompareResult{Matches: matches, Actual: actual}, nil
}

func lookupCache(xs xattrStore, a Algorithm) (digest string, hit bool, err error) {
	currentMtime, err := xs.ModTimeNanos()
	if err != nil {
		return "", false, err
	}
	mtimeStr, ok, err := xs.Get(xattrMtime)
	if err != nil || !ok {
		return "", false, err
	}
	storedMtime, err := strconv.ParseInt(mtimeStr, 10, 64)
	if err != nil {
		return "", false, nil //nolint:nilerr // malformed cache entry is just a miss
	}
	if storedMtime != currentMtime {
		return "", false, nil
	}
	value, ok, err := xs.Get(xattrForAlgo(a))
	if err != nil || !ok {
		return "", false, err
	}
	return value, true, nil
}

func storeCache(xs xattrStore, a Algorithm, digest string) error {
	mtime, err := xs.ModTimeNanos()
	if err != nil {
		return err
	}
	if err := xs.Set(xattrMtime, strconv.FormatInt(mtime, 10)); err != nil {
		return err
	}
	return xs.Set(xattrForAlgo(a), digest)
}

// ClearCache removes every extended attribute under the
// "user.Librepo.checksum." prefix from xs.
func ClearCache(xs xattrStore) error {
	names, err := xs.List()
	if err != nil {
		return err
	}
	var firstErr error
	for _, name := range names {
		if !strings.HasPrefix(name, xattrPrefix) {
			continue
		}
		if err := xs.Remove(name); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "ClearCache: "+name)
		}
	}
	return firstErr
}
