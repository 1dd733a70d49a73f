package repomd

import (
	"compress/bzip2"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// OpenData opens a downloaded data file named by rec (relative to
// repoRoot) and transparently decompresses it based on its extension,
// per SPEC_FULL.md's "repomd/metalink data files are commonly shipped
// .xml.gz/.xml.xz/.xml.zst" note. The returned ReadCloser's Close also
// closes the underlying file.
func OpenData(repoRoot string, rec *Record) (io.ReadCloser, error) {
	f, err := os.Open(joinRepoPath(repoRoot, rec.LocationHref))
	if err != nil {
		return nil, lrerrors.Wrap(err, lrerrors.IO, "opening data file "+rec.LocationHref)
	}

	switch {
	case strings.HasSuffix(rec.LocationHref, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, lrerrors.Wrap(err, lrerrors.IO, "opening gzip data file "+rec.LocationHref)
		}
		return &decompressedFile{Reader: gz, f: f}, nil
	case strings.HasSuffix(rec.LocationHref, ".xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, lrerrors.Wrap(err, lrerrors.IO, "opening xz data file "+rec.LocationHref)
		}
		return &decompressedFile{Reader: xr, f: f}, nil
	case strings.HasSuffix(rec.LocationHref, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, lrerrors.Wrap(err, lrerrors.IO, "opening zstd data file "+rec.LocationHref)
		}
		return &decompressedFile{Reader: zr, f: f, closer: zr.Close}, nil
	case strings.HasSuffix(rec.LocationHref, ".bz2"):
		return &decompressedFile{Reader: bzip2.NewReader(f), f: f}, nil
	default:
		return f, nil
	}
}

// decompressedFile adapts a decompressing io.Reader (some of which, like
// zstd.Decoder, expose Close with no error return; others, like
// gzip.Reader and xz.Reader, implement plain io.Reader with no Close of
// their own) to io.ReadCloser, always closing the backing file.
type decompressedFile struct {
	io.Reader
	f      *os.File
	closer func()
}

func (d *decompressedFile) Close() error {
	if d.closer != nil {
		d.closer()
	}
	return d.f.Close()
}

func joinRepoPath(repoRoot, href string) string {
	if repoRoot == "" {
		return href
	}
	return repoRoot + string(os.PathSeparator) + href
}
