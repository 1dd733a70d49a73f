package scheduler

import (
	"os"
	"path"
	"strings"

	"github.com/go-librepo/librepo/internal/lrerrors"
	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/target"
	"github.com/go-librepo/librepo/internal/urlsubst"
)

// preparedTransfer is everything run.go's launch step needs once
// prepareNext has bound a waiting target to a URL and an open file
// (spec.md §4.I "prepare_next_transfer" steps 3-6).
type preparedTransfer struct {
	ts     *transferState
	url    string
	mirror *mirror.State // nil when the target bypassed the pool
	file   *os.File
	offset int64
}

// prepareNext implements prepare_next_transfer (spec.md §4.I): it walks
// the waiting targets in order and binds the first one it can to a
// mirror (or bypass URL), opening its destination file and computing its
// resume offset. Targets that cannot be bound right now (mirror pool
// saturated) are left Waiting and skipped in favor of the next one;
// targets with no mirrors left are marked Failed and skipped too -
// unless failFast is set, in which case the call aborts immediately.
func (s *Scheduler) prepareNext(states []*transferState, pool *mirror.Pool, failFast bool) (*preparedTransfer, bool, error) {
	for _, ts := range states {
		if ts.status != waiting {
			continue
		}

		prepared, bound, exhausted, err := s.tryBind(ts, pool)
		if err != nil {
			return nil, false, err
		}
		if bound {
			return prepared, false, nil
		}
		if exhausted {
			ts.status = failed
			ts.tgt.ReturnCode = target.Failed
			ts.tgt.ErrorMessage = "all mirrors tried"
			if failFast {
				return nil, true, lrerrors.New(lrerrors.BadStatus, "all mirrors tried for "+ts.tgt.Path)
			}
			continue
		}
		// Pool saturated for this target right now; try the next
		// waiting target instead of blocking the whole batch on it.
		continue
	}
	return nil, false, nil
}

// tryBind resolves ts's URL source and, if one is available right now,
// opens its destination and returns a preparedTransfer. bound is false
// with exhausted=true when every mirror has been tried; bound is false
// with exhausted=false when remaining mirrors exist but are all at the
// per-host cap.
func (s *Scheduler) tryBind(ts *transferState, pool *mirror.Pool) (prepared *preparedTransfer, bound bool, exhausted bool, err error) {
	t := ts.tgt

	var rawURL string
	var chosen *mirror.State

	switch {
	case t.IsFullURL():
		rawURL = t.Path
	case t.BaseURL != "":
		rawURL = joinMirrorURL(t.BaseURL, t.Path)
	default:
		chosen, exhausted = s.pickMirror(ts, pool)
		if chosen == nil {
			return nil, false, exhausted, nil
		}
		rawURL = joinMirrorURL(chosen.Mirror.URL, t.Path)
	}

	rawURL = urlsubst.Substitute(rawURL, s.opts.URLSubstitution)

	file, offset, err := s.openDestination(ts)
	if err != nil {
		return nil, false, false, err
	}

	if chosen != nil {
		chosen.BeginTransfer()
	}
	ts.status = running
	ts.boundMirror = chosen
	ts.file = file
	ts.originalOffset = offset

	return &preparedTransfer{ts: ts, url: rawURL, mirror: chosen, file: file, offset: offset}, true, false, nil
}

// pickMirror implements the mirror-pool iteration of prepare_next_transfer
// step 2: skip tried mirrors, skip mirrors at or above the per-host cap,
// pick the first remaining. exhausted is true only when every mirror in
// the pool has already been tried.
func (s *Scheduler) pickMirror(ts *transferState, pool *mirror.Pool) (*mirror.State, bool) {
	untriedExists := false
	for _, st := range pool.States() {
		if ts.triedMirrors[st] {
			continue
		}
		untriedExists = true
		if s.opts.hostCapReached(st.RunningTransfers()) {
			continue
		}
		return st, false
	}
	return nil, !untriedExists
}

// joinMirrorURL concatenates a mirror (or base) URL with a target path,
// avoiding a doubled slash at the seam.
func joinMirrorURL(base, p string) string {
	if strings.HasSuffix(base, "/") {
		return base + strings.TrimPrefix(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		return base + p
	}
	return base + "/" + p
}

// openDestination implements prepare_next_transfer step 3-4: duplicate a
// caller-supplied fd, or open/create the destination path (O_TRUNC unless
// resuming); then, if resuming and the offset is not yet known, seek to
// the end to determine it.
func (s *Scheduler) openDestination(ts *transferState) (*os.File, int64, error) {
	t := ts.tgt

	var f *os.File
	if t.DestFile != nil {
		dup, err := dupFile(t.DestFile)
		if err != nil {
			return nil, 0, lrerrors.Wrap(err, lrerrors.IO, "duplicating destination descriptor")
		}
		f = dup
		ts.callerOwnsFile = true
	} else {
		flags := os.O_CREATE | os.O_RDWR
		if !t.Resume {
			flags |= os.O_TRUNC
		}
		opened, err := os.OpenFile(t.DestPath, flags, 0o666)
		if err != nil {
			return nil, 0, lrerrors.Wrap(err, lrerrors.IO, "opening destination file")
		}
		f = opened
	}

	offset := ts.originalOffset
	switch {
	case t.Resume && offset == -1:
		end, err := f.Seek(0, os.SEEK_END)
		if err != nil {
			return nil, 0, lrerrors.Wrap(err, lrerrors.IO, "seeking to end for resume")
		}
		offset = end
	case t.Resume:
		// Retried attempt on a new mirror: offset is already known from
		// the first attempt, but this is a freshly reopened file handle
		// positioned at 0. Seek it to offset so the transport's ranged
		// write continues the resumed file instead of overwriting it.
		if _, err := f.Seek(offset, os.SEEK_SET); err != nil {
			return nil, 0, lrerrors.Wrap(err, lrerrors.IO, "seeking to resume offset")
		}
	case offset == -1:
		offset = 0
	}

	return f, offset, nil
}

// destRepodataPath joins dir and rel the way the metadata flow lays out
// destination_dir/repodata/<file> paths (spec.md §4.J).
func destRepodataPath(dir, rel string) string {
	return path.Join(dir, rel)
}
