// Package pkgfetch implements the package-download façade (spec.md
// §4.K): it adapts a flat list of package requests onto the scheduler,
// the same way the teacher's mirror.go adapts parsed Packages-file
// entries onto its download pipeline, but without the suite/section
// bookkeeping an RPM package list doesn't need.
package pkgfetch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-librepo/librepo/internal/config"
	"github.com/go-librepo/librepo/internal/digest"
	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/scheduler"
	"github.com/go-librepo/librepo/internal/target"
)

// PackageTarget is one requested package file (spec.md §4.K).
type PackageTarget struct {
	// Path is the package's location, relative to the mirror pool or a
	// full URL (spec.md §3's DownloadTarget.path rules apply).
	Path string

	// DestDir, if set, is joined with basename(Path) for the
	// destination. DestFile, if set, is used as-is. If neither is set,
	// Handle.DestinationDir + basename(Path) is used.
	DestDir  string
	DestFile string

	ExpectedChecksum     string
	ExpectedChecksumAlgo string

	AlreadyDownloaded bool // written by Fetch
}

func (p *PackageTarget) resolveDest(destinationDir string) string {
	switch {
	case p.DestFile != "":
		return p.DestFile
	case p.DestDir != "":
		return filepath.Join(p.DestDir, filepath.Base(p.Path))
	default:
		return filepath.Join(destinationDir, filepath.Base(p.Path))
	}
}

// OnProgress, when set, is called as bytes arrive for a package whose
// destination path is dest; downloaded/total follow target.ProgressFunc's
// semantics. Used by cmd/librepo-fetch to drive a per-file progress bar.
type OnProgress func(dest string, downloaded, total int64)

// Fetch maps each PackageTarget to a DownloadTarget and drives the
// scheduler, per spec.md §4.K. Targets that are already present on disk
// with a matching checksum are skipped and marked AlreadyDownloaded
// rather than re-fetched.
func Fetch(ctx context.Context, h *config.Handle, pool *mirror.Pool, pkgs []*PackageTarget, failFast bool, onProgress OnProgress) error {
	var targets []*target.Target

	for _, p := range pkgs {
		dest := p.resolveDest(h.DestinationDir)

		if p.ExpectedChecksum != "" && alreadyDownloaded(dest, p.ExpectedChecksumAlgo, p.ExpectedChecksum) {
			p.AlreadyDownloaded = true
			continue
		}

		tg, err := target.New(p.Path, dest, nil)
		if err != nil {
			if failFast {
				return err
			}
			continue
		}
		if p.ExpectedChecksum != "" {
			tg.WithChecksum(p.ExpectedChecksumAlgo, p.ExpectedChecksum)
		}
		if onProgress != nil {
			tg.OnProgress = func(downloaded, total int64) bool {
				onProgress(dest, downloaded, total)
				return false
			}
		}
		targets = append(targets, tg)
	}

	if len(targets) == 0 {
		return nil
	}

	sched := scheduler.New(scheduler.Options{
		DestinationDir:         h.DestinationDir,
		MaxParallelConnections: h.MaxParallelConnections,
		MaxConnectionsPerHost:  h.MaxConnectionsPerHost,
		MaxMirrorRetries:       h.MaxMirrorRetries,
		MaxSpeed:               h.MaxSpeed,
		ResumeDownloads:        h.ResumeDownloads,
		Interruptible:          h.Interruptible,
		URLSubstitution:        h.URLSubstitutionVars,
	})
	return sched.Run(ctx, pool, targets, failFast)
}

// alreadyDownloaded reports whether dest exists and its digest matches
// expected under algo (spec.md §4.K "already_downloaded" signal).
func alreadyDownloaded(dest, algo, expected string) bool {
	f, err := os.Open(dest)
	if err != nil {
		return false
	}
	defer f.Close()
	result, err := digest.Compare(algo, f, digest.NewFileCache(f), expected, true)
	if err != nil {
		return false
	}
	return result.Matches
}
