package scheduler

import (
	"io"
	"time"
)

// throttledWriter paces writes to at most bytesPerSec, using a simple
// fixed-window accounting scheme. The example pack carries no rate
// limiting library (golang.org/x/time/rate is absent from every go.sum
// in the pack), so this is deliberately stdlib-only; see DESIGN.md.
type throttledWriter struct {
	w            io.Writer
	bytesPerSec  int64
	windowStart  time.Time
	windowBytes  int64
	sleep        func(time.Duration)
	now          func() time.Time
}

func newThrottledWriter(w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	return &throttledWriter{
		w:           w,
		bytesPerSec: bytesPerSec,
		windowStart: time.Now(),
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	now := t.now()
	if elapsed := now.Sub(t.windowStart); elapsed >= time.Second {
		t.windowStart = now
		t.windowBytes = 0
	}

	if t.windowBytes >= t.bytesPerSec {
		wait := time.Second - now.Sub(t.windowStart)
		if wait > 0 {
			t.sleep(wait)
		}
		t.windowStart = t.now()
		t.windowBytes = 0
	}

	n, err := t.w.Write(p)
	t.windowBytes += int64(n)
	return n, err
}
