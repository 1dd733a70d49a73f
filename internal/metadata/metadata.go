// Package metadata implements the repomd.xml orchestration flow (spec.md
// §4.J): fetch -> parse -> optional signature check -> enqueue data-file
// targets. Grounded on the teacher's Mirror.Update/updateSuite
// orchestration in mirror.go - same "fetch an index, parse it, then fetch
// everything it references" shape and the same slog.Info/Debug narration
// at each stage - generalized from Release/Packages files to
// repomd.xml/RepomdRecords.
package metadata

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-librepo/librepo/internal/config"
	"github.com/go-librepo/librepo/internal/digest"
	"github.com/go-librepo/librepo/internal/discovery"
	"github.com/go-librepo/librepo/internal/flock"
	"github.com/go-librepo/librepo/internal/lrerrors"
	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/pgp"
	"github.com/go-librepo/librepo/internal/repomd"
	"github.com/go-librepo/librepo/internal/scheduler"
	"github.com/go-librepo/librepo/internal/target"
)

// Result is what a metadata Flow run produces.
type Result struct {
	Repomd      *repomd.Repomd
	DataTargets []*target.Target

	destinationDir string
}

// OpenData opens the fetched data file of the given type (e.g.
// "primary", "filelists"), transparently decompressed per its
// extension. Callers that want to read parsed package metadata rather
// than just fetch the raw bytes use this instead of opening
// DestinationDir/<location_href> directly.
func (r *Result) OpenData(typ string) (io.ReadCloser, error) {
	rec := r.Repomd.Record(typ)
	if rec == nil {
		return nil, lrerrors.Newf(lrerrors.IncompleteRepo, "no %s record in repomd.xml", typ)
	}
	return repomd.OpenData(r.destinationDir, rec)
}

// Flow drives the metadata orchestration for one Handle.
type Flow struct {
	Handle   *config.Handle
	Verifier pgp.Verifier // nil disables signature verification entirely
	KeyHome  string       // keyring home dir passed to Verifier

	HTTPClient *http.Client

	// OnProgress, when set, is called as bytes arrive for each fetched
	// file (repomd.xml and every data file); dest is its destination
	// path. Used by cmd/librepo-fetch to drive a per-file progress bar.
	OnProgress func(dest string, downloaded, total int64)
}

func (f *Flow) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

// Run executes spec.md §4.J's eight steps.
func (f *Flow) Run(ctx context.Context) (*Result, error) {
	h := f.Handle

	if h.LocalOnly {
		return f.runLocalOnly()
	}

	disc, err := discovery.Discover(ctx, f.client(), h.MirrorlistURL, h.MetalinkURL, "repomd.xml")
	if err != nil {
		return nil, err
	}

	pool := mirror.NewPool(h.URLs, disc.Mirrors)
	if pool.Len() == 0 {
		return nil, lrerrors.New(lrerrors.NoURL, "no mirrors available")
	}

	repodataDir := filepath.Join(h.DestinationDir, "repodata")
	repomdPath := filepath.Join(repodataDir, "repomd.xml")

	if h.UpdateMode {
		if _, err := os.Stat(repomdPath); err == nil {
			slog.Info("reusing existing repomd.xml", "path", repomdPath)
			return f.parseAndEnqueue(repomdPath, h, pool, false)
		}
	}

	if err := os.MkdirAll(repodataDir, 0o755); err != nil {
		return nil, lrerrors.Wrap(err, lrerrors.CannotCreateDir, "creating repodata directory")
	}

	unlock, err := lockDestination(h.DestinationDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sched := newScheduler(h, f.client())

	repomdTarget, err := target.New("repodata/repomd.xml", repomdPath, nil)
	if err != nil {
		return nil, err
	}
	for _, hash := range disc.RepomdChecksums {
		repomdTarget.WithChecksum(hash.Type, hash.Value)
	}
	f.attachProgress(repomdTarget, repomdPath)
	if disc.RepomdSizeFromMeta > 0 {
		repomdTarget.ExpectedSize = disc.RepomdSizeFromMeta
	}

	slog.Info("downloading repomd.xml", "repo", h.DestinationDir)
	if err := sched.Run(ctx, pool, []*target.Target{repomdTarget}, true); err != nil {
		return nil, err
	}
	if repomdTarget.ReturnCode != target.OK {
		return nil, lrerrors.Newf(lrerrors.Transport, "repomd.xml download failed: %s", repomdTarget.ErrorMessage)
	}

	if h.Checks.Has(config.VerifySignature) {
		if err := f.verifySignature(ctx, sched, pool, repodataDir, len(disc.RepomdChecksums) > 0); err != nil {
			return nil, err
		}
	}

	return f.parseAndEnqueueWithScheduler(repomdPath, h, pool, sched, true)
}

// lockDestination guards destination_dir against a second librepo
// process racing this one's partial downloads (spec.md §4.L). The
// returned func releases the lock and closes the underlying file; it
// is always non-nil, even on error, so callers can safely defer it
// unconditionally once err is nil.
func lockDestination(destinationDir string) (unlock func(), err error) {
	lockPath := filepath.Join(destinationDir, ".librepo.lock")
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, lrerrors.Wrap(err, lrerrors.IO, "opening destination lock file")
	}
	fl := flock.New(lf)
	if err := fl.Lock(); err != nil {
		lf.Close()
		return nil, lrerrors.Wrap(err, lrerrors.IO, "acquiring destination lock")
	}
	return func() {
		fl.Unlock()
		lf.Close()
	}, nil
}

func newScheduler(h *config.Handle, client *http.Client) *scheduler.Scheduler {
	return scheduler.New(scheduler.Options{
		DestinationDir:         h.DestinationDir,
		MaxParallelConnections: h.MaxParallelConnections,
		MaxConnectionsPerHost:  h.MaxConnectionsPerHost,
		MaxMirrorRetries:       h.MaxMirrorRetries,
		MaxSpeed:               h.MaxSpeed,
		ResumeDownloads:        h.ResumeDownloads,
		Interruptible:          h.Interruptible,
		URLSubstitution:        h.URLSubstitutionVars,
		HTTPClient:             client,
	})
}

// runLocalOnly implements step 1: open the already-localized repomd.xml
// directly, with no download and no signature verification.
func (f *Flow) runLocalOnly() (*Result, error) {
	h := f.Handle
	if len(h.URLs) == 0 {
		return nil, lrerrors.New(lrerrors.NotLocal, "local_only requires Handle.URLs to name a local path")
	}
	base := h.URLs[0]
	if !strings.HasPrefix(base, "file://") && !filepath.IsAbs(base) {
		return nil, lrerrors.New(lrerrors.NotLocal, "local_only URL must be file:// or an absolute path")
	}
	base = strings.TrimPrefix(base, "file://")

	repomdPath := filepath.Join(base, "repodata", "repomd.xml")
	f2, err := os.Open(repomdPath)
	if err != nil {
		return nil, lrerrors.Wrap(err, lrerrors.IO, "opening local repomd.xml")
	}
	defer f2.Close()

	parsed, err := repomd.Parse(f2)
	if err != nil {
		return nil, err
	}

	res := &Result{Repomd: parsed, destinationDir: base}
	if h.Checks.Has(config.VerifyChecksums) {
		if err := f.verifyLocalRecords(base, parsed); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (f *Flow) verifyLocalRecords(base string, r *repomd.Repomd) error {
	for _, typ := range r.Types() {
		rec := r.Record(typ)
		p := filepath.Join(base, rec.LocationHref)
		fh, err := os.Open(p)
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.IncompleteRepo, "opening record file "+rec.LocationHref)
		}
		result, err := digest.Compare(rec.ChecksumType, fh, digest.NewFileCache(fh), rec.Checksum, true)
		fh.Close()
		if err != nil {
			return err
		}
		if !result.Matches {
			return lrerrors.Newf(lrerrors.BadChecksum, "checksum mismatch for %s", rec.LocationHref)
		}
	}
	return nil
}

// attachProgress wires f.OnProgress onto tg, if set, tagging each call
// with dest so a caller driving multiple concurrent bars can tell them
// apart.
func (f *Flow) attachProgress(tg *target.Target, dest string) {
	if f.OnProgress == nil {
		return
	}
	tg.OnProgress = func(downloaded, total int64) bool {
		f.OnProgress(dest, downloaded, total)
		return false
	}
}

func (f *Flow) parseAndEnqueue(repomdPath string, h *config.Handle, pool *mirror.Pool, drive bool) (*Result, error) {
	return f.parseAndEnqueueWithScheduler(repomdPath, h, pool, newScheduler(h, f.client()), drive)
}

// parseAndEnqueueWithScheduler implements steps 5 and 7: parse the
// downloaded repomd.xml, then build and drive one DownloadTarget per
// allowlist/blocklist-passing RepomdRecord.
func (f *Flow) parseAndEnqueueWithScheduler(repomdPath string, h *config.Handle, pool *mirror.Pool, sched *scheduler.Scheduler, drive bool) (*Result, error) {
	fh, err := os.Open(repomdPath)
	if err != nil {
		return nil, lrerrors.Wrap(err, lrerrors.IO, "opening downloaded repomd.xml")
	}
	parsed, err := repomd.Parse(fh)
	fh.Close()
	if err != nil {
		return nil, err
	}

	var targets []*target.Target
	for _, typ := range parsed.Types() {
		if !passesFilter(typ, h.DataFileAllowlist, h.DataFileBlocklist) {
			continue
		}
		rec := parsed.Record(typ)
		dest := filepath.Join(h.DestinationDir, rec.LocationHref)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, lrerrors.Wrap(err, lrerrors.CannotCreateDir, "creating data file directory")
		}
		tg, err := target.New(rec.LocationHref, dest, nil)
		if err != nil {
			return nil, err
		}
		tg.WithChecksum(rec.ChecksumType, rec.Checksum)
		tg.ExpectedSize = rec.Size
		f.attachProgress(tg, dest)
		targets = append(targets, tg)
	}

	if drive && len(targets) > 0 {
		slog.Info("downloading repository data files", "count", len(targets))
		if err := sched.Run(context.Background(), pool, targets, false); err != nil {
			return nil, err
		}
	}

	return &Result{Repomd: parsed, DataTargets: targets, destinationDir: h.DestinationDir}, nil
}

// verifySignature implements step 6: fetch repomd.xml.asc (best effort
// unless a metalink advertised a checksum for it, in which case it is
// mandatory) and run the signature verifier.
func (f *Flow) verifySignature(ctx context.Context, sched *scheduler.Scheduler, pool *mirror.Pool, repodataDir string, mandatory bool) error {
	if f.Verifier == nil {
		return lrerrors.New(lrerrors.SignatureNotSupported, "no signature backend configured")
	}

	ascPath := filepath.Join(repodataDir, "repomd.xml.asc")
	ascTarget, err := target.New("repodata/repomd.xml.asc", ascPath, nil)
	if err != nil {
		return err
	}
	if err := sched.Run(ctx, pool, []*target.Target{ascTarget}, mandatory); err != nil {
		if !mandatory {
			slog.Warn("repomd.xml.asc not available, skipping signature verification", "error", err)
			return nil
		}
		return err
	}
	if ascTarget.ReturnCode != target.OK {
		if !mandatory {
			return nil
		}
		return lrerrors.New(lrerrors.SignatureError, "repomd.xml.asc download failed")
	}

	sigFile, err := os.Open(ascPath)
	if err != nil {
		return lrerrors.Wrap(err, lrerrors.IO, "opening repomd.xml.asc")
	}
	defer sigFile.Close()
	dataFile, err := os.Open(filepath.Join(repodataDir, "repomd.xml"))
	if err != nil {
		return lrerrors.Wrap(err, lrerrors.IO, "opening repomd.xml for verification")
	}
	defer dataFile.Close()

	if err := f.Verifier.CheckDetachedSignature(ctx, sigFile, dataFile, f.KeyHome); err != nil {
		return err
	}
	return nil
}

// passesFilter implements the allowlist/blocklist rule spec.md §4.J step
// 7 and §3 describe: an empty allowlist admits everything not blocked;
// a non-empty allowlist admits only named types.
func passesFilter(typ string, allow, block []string) bool {
	for _, b := range block {
		if b == typ {
			return false
		}
	}
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if a == typ {
			return true
		}
	}
	return false
}
