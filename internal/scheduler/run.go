package scheduler

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/go-librepo/librepo/internal/lrerrors"
	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/target"
)

// Scheduler drives a batch of targets against a mirror pool (spec.md
// §4.I). One Scheduler is used for one Run call; it holds no state
// across calls.
type Scheduler struct {
	opts      Options
	transport transport
}

// New builds a Scheduler from opts.
func New(opts Options) *Scheduler {
	return &Scheduler{
		opts:      opts,
		transport: newDispatchTransport(opts.HTTPClient),
	}
}

// jobResult pairs a launched transfer with its transport outcome, the
// message the control loop's results channel carries (spec.md §4.I's
// "multi-handle" completion messages, reimagined as Go channel sends -
// see transport.go's package doc).
type jobResult struct {
	pt  *preparedTransfer
	res fetchResult
}

// Run executes one scheduler call over targets against pool, per spec.md
// §4.I's per-call setup / main loop / completion-handling structure.
// Targets' result slots (UsedMirror, EffectiveURL, ReturnCode,
// ErrorMessage) are populated in place; Run itself returns a call-level
// error only for fail_fast aborts, interruption, or setup failures.
func (s *Scheduler) Run(ctx context.Context, pool *mirror.Pool, targets []*target.Target, failFast bool) error {
	if len(targets) == 0 {
		return nil
	}

	if s.opts.Interruptible {
		restore := installSignalGuard()
		defer restore()
	}

	if err := os.MkdirAll(s.opts.DestinationDir, 0o700); err != nil {
		return lrerrors.Wrap(err, lrerrors.CannotCreateDir, "creating destination directory")
	}

	states := make([]*transferState, len(targets))
	for i, t := range targets {
		states[i] = newTransferState(t)
	}

	results := make(chan jobResult)
	g, gctx := errgroup.WithContext(ctx)

	running := 0
	var firstFatal error

	launch := func(pt *preparedTransfer) {
		running++
		transferCtx, cancel := context.WithCancel(gctx)
		pt.ts.cancel = cancel
		g.Go(func() error {
			defer cancel()
			res := s.transport.fetch(transferCtx, pt.url, pt.offset, pt.file, progressAdapter(pt.ts), s.opts.MaxSpeed)
			select {
			case results <- jobResult{pt: pt, res: res}:
			case <-gctx.Done():
			}
			return nil
		})
	}

	// Prepare the first batch: up to max_parallel_connections calls to
	// prepare_next_transfer (spec.md §4.I per-call setup step 5).
	for running < s.opts.maxParallel() {
		pt, abort, err := s.prepareNext(states, pool, failFast)
		if err != nil {
			s.drainAndCleanup(states)
			return err
		}
		if abort {
			firstFatal = err
			break
		}
		if pt == nil {
			break
		}
		launch(pt)
	}

	for running > 0 && firstFatal == nil {
		if Interrupted() {
			firstFatal = lrerrors.New(lrerrors.Interrupted, "interrupted")
			break
		}

		select {
		case jr := <-results:
			running--
			outcome := s.complete(jr.pt, jr.res, failFast)
			if outcome.requeued {
				// Put back to Waiting; the next prepare pass may pick
				// it up again immediately below.
			}
			if outcome.fatal != nil && firstFatal == nil {
				firstFatal = outcome.fatal
			}

			for running < s.opts.maxParallel() {
				pt, abort, err := s.prepareNext(states, pool, failFast)
				if err != nil {
					firstFatal = err
					break
				}
				if abort {
					break
				}
				if pt == nil {
					break
				}
				launch(pt)
			}
		case <-gctx.Done():
			firstFatal = lrerrors.Wrap(gctx.Err(), lrerrors.Transport, "context canceled")
		}
	}

	if firstFatal != nil {
		s.abortAll(states)
	}

	// Drain any in-flight results so launched goroutines never block
	// sending (spec.md §5 "every opened destination file is closed on
	// every exit path").
	go func() {
		for range results {
		}
	}()
	_ = g.Wait()
	close(results)

	if firstFatal != nil {
		return firstFatal
	}
	return nil
}

// abortAll truncates and closes every still-open file and unbinds every
// still-bound mirror, for the interrupted/fail_fast abort path.
func (s *Scheduler) abortAll(states []*transferState) {
	for _, ts := range states {
		if ts.status == running {
			truncateTo(ts.file, ts.originalOffset)
			s.unbind(ts, false)
			ts.status = failed
			ts.tgt.ReturnCode = target.Failed
			ts.tgt.ErrorMessage = "interrupted"
		}
	}
}

// drainAndCleanup is used when prepareNext itself fails (a setup-level
// I/O error), so any already-opened files are not leaked.
func (s *Scheduler) drainAndCleanup(states []*transferState) {
	s.abortAll(states)
}

// progressAdapter turns a Target's ProgressFunc into the plain
// func(int64) the transport layer calls, applying the max_speed option
// and honoring the "abort this transfer" return value by canceling
// nothing here - the abort is observed by the caller via the bool return
// wired through a closure-captured flag, matching spec.md §4.I
// cancellation channel (a).
func progressAdapter(ts *transferState) func(int64) {
	t := ts.tgt
	return func(n int64) {
		if t.OnProgress == nil {
			return
		}
		if abort := t.OnProgress(n, t.ExpectedSize); abort {
			if ts.cancel != nil {
				ts.cancel()
			}
		}
	}
}
