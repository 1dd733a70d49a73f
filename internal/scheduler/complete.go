package scheduler

import (
	"os"

	"github.com/go-librepo/librepo/internal/digest"
	"github.com/go-librepo/librepo/internal/lrerrors"
	"github.com/go-librepo/librepo/internal/target"
)

// completionOutcome is the result of running completion handling
// (spec.md §4.I "Completion handling") on one finished transfer.
type completionOutcome struct {
	// requeued is true when the target was put back to Waiting for
	// another mirror attempt.
	requeued bool
	// fatal is set when fail_fast demands the whole call abort because
	// this target exhausted its mirrors without success.
	fatal error
}

// complete implements the scheduler's completion handling for one
// finished transfer. It always unbinds the mirror and closes the file
// before returning, regardless of outcome (spec.md §5 file-descriptor
// discipline).
func (s *Scheduler) complete(pt *preparedTransfer, res fetchResult, failFast bool) completionOutcome {
	ts := pt.ts
	t := ts.tgt

	if res.effectiveURL != "" {
		t.EffectiveURL = res.effectiveURL
	}

	var failureMsg string
	success := false

	switch {
	case res.err != nil:
		failureMsg = res.err.Error()
	case res.statusClass != 2:
		failureMsg = "bad status"
	default:
		if ok, msg := s.verifyChecksums(ts); !ok {
			failureMsg = msg
		} else {
			success = true
		}
	}

	if !success {
		truncateTo(ts.file, ts.originalOffset)
	}

	s.unbind(ts, success)

	if success {
		t.UsedMirror = pt.url
		t.ReturnCode = target.OK
		t.ErrorMessage = ""
		ts.status = finished
		if t.OnEnd != nil {
			t.OnEnd(t)
		}
		return completionOutcome{}
	}

	bypassed := t.IsFullURL() || t.BaseURL != ""
	exhausted := bypassed ||
		(s.opts.MaxMirrorRetries > 0 && len(ts.triedMirrors) >= s.opts.MaxMirrorRetries)

	if t.OnMirrorFailure != nil {
		mirrorErr := lrerrors.New(lrerrors.Transport, failureMsg)
		if abort := t.OnMirrorFailure(t, pt.url, mirrorErr); abort {
			exhausted = true
		}
	}

	if !exhausted {
		ts.status = waiting
		ts.file = nil
		return completionOutcome{requeued: true}
	}

	t.ReturnCode = target.Failed
	t.ErrorMessage = failureMsg
	ts.status = failed
	if t.OnEnd != nil {
		t.OnEnd(t)
	}

	if failFast {
		return completionOutcome{fatal: lrerrors.New(lrerrors.BadStatus, "mirrors exhausted: "+failureMsg)}
	}
	return completionOutcome{}
}

// verifyChecksums runs the digest engine against ts's expected checksums
// in order, succeeding on the first match (spec.md §4.I step 4).
func (s *Scheduler) verifyChecksums(ts *transferState) (ok bool, failureMsg string) {
	t := ts.tgt
	if len(t.ExpectedChecksums) == 0 {
		return true, ""
	}

	if err := ts.file.Sync(); err != nil {
		return false, "flushing file before checksum: " + err.Error()
	}
	if _, err := ts.file.Seek(0, os.SEEK_SET); err != nil {
		return false, "seeking file before checksum: " + err.Error()
	}

	for _, c := range t.ExpectedChecksums {
		if _, err := ts.file.Seek(0, os.SEEK_SET); err != nil {
			return false, "seeking file before checksum: " + err.Error()
		}
		result, err := digest.Compare(c.Algorithm, ts.file, digest.NewFileCache(ts.file), c.HexDigest, true)
		if err != nil {
			continue
		}
		if result.Matches {
			return true, ""
		}
	}
	return false, "bad checksum"
}

// unbind closes the transfer's file and updates the mirror's counters,
// regardless of outcome (spec.md §4.I step 5).
func (s *Scheduler) unbind(ts *transferState, success bool) {
	if ts.file != nil {
		_ = ts.file.Close()
	}
	if ts.boundMirror != nil {
		ts.boundMirror.EndTransfer(success)
		ts.triedMirrors[ts.boundMirror] = true
	}
}

// truncateTo shrinks f back to size, the failure-branch cleanup spec.md
// §4.I step 6 and §5's "file equals original_offset" invariant require.
func truncateTo(f *os.File, size int64) {
	if f == nil {
		return
	}
	_ = f.Truncate(size)
}
