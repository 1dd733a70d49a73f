package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-librepo/librepo/internal/mirror"
	"github.com/go-librepo/librepo/internal/target"
)

// fakeResp is one canned transport outcome for a URL.
type fakeResp struct {
	body        []byte
	statusClass int
	err         error
}

// fakeTransport serves canned responses keyed by exact URL, consumed in
// FIFO order per URL - enough to script mirror failover and retries
// without a real network stack.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string][]fakeResp
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: make(map[string][]fakeResp)}
}

func (f *fakeTransport) script(url string, r fakeResp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = append(f.responses[url], r)
}

func (f *fakeTransport) fetch(_ context.Context, rawURL string, _ int64, dst io.Writer, onProgress func(int64), _ int64) fetchResult {
	f.mu.Lock()
	queue := f.responses[rawURL]
	if len(queue) == 0 {
		f.mu.Unlock()
		return fetchResult{err: errStub("no canned response for " + rawURL)}
	}
	r := queue[0]
	f.responses[rawURL] = queue[1:]
	f.mu.Unlock()

	if r.err != nil {
		return fetchResult{err: r.err, statusClass: r.statusClass}
	}
	n, _ := dst.Write(r.body)
	if onProgress != nil {
		onProgress(int64(n))
	}
	return fetchResult{effectiveURL: rawURL, statusClass: r.statusClass, bytesWritten: int64(n)}
}

type errStub string

func (e errStub) Error() string { return string(e) }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newTestScheduler(t *testing.T, ft *fakeTransport, opts Options) *Scheduler {
	t.Helper()
	s := New(opts)
	s.transport = ft
	return s
}

func TestRunEmptyTargets(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, newFakeTransport(), Options{DestinationDir: t.TempDir()})
	if err := s.Run(context.Background(), mirror.NewPool(nil, nil), nil, false); err != nil {
		t.Fatalf("Run() with no targets = %v, want nil", err)
	}
}

func TestRunTwoFileParallelFetch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ft := newFakeTransport()

	aBody := []byte("0123456789")
	bBody := []byte("01234567890123456789")
	ft.script("http://host.example/repo/a.bin", fakeResp{body: aBody, statusClass: 2})
	ft.script("http://host.example/repo/b.bin", fakeResp{body: bBody, statusClass: 2})

	pool := mirror.NewPool([]string{"http://host.example/repo"}, nil)
	s := newTestScheduler(t, ft, Options{DestinationDir: dir, MaxParallelConnections: 2})

	ta, _ := target.New("a.bin", filepath.Join(dir, "a.bin"), nil)
	ta.WithChecksum("sha256", sha256Hex(aBody))
	tb, _ := target.New("b.bin", filepath.Join(dir, "b.bin"), nil)
	tb.WithChecksum("sha256", sha256Hex(bBody))

	if err := s.Run(context.Background(), pool, []*target.Target{ta, tb}, false); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	for _, tt := range []*target.Target{ta, tb} {
		if tt.ReturnCode != target.OK {
			t.Errorf("target %s ReturnCode = %v, want OK (err=%s)", tt.Path, tt.ReturnCode, tt.ErrorMessage)
		}
		if tt.UsedMirror == "" {
			t.Errorf("target %s UsedMirror not set", tt.Path)
		}
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	if err != nil || string(got) != string(aBody) {
		t.Errorf("a.bin contents = %q, %v; want %q", got, err, aBody)
	}
}

func TestRunMirrorFailover(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ft := newFakeTransport()

	body := []byte("hello mirror")
	ft.script("http://m1.example/x.bin", fakeResp{statusClass: 5})
	ft.script("http://m2.example/x.bin", fakeResp{body: body, statusClass: 2})

	pool := mirror.NewPool([]string{"http://m1.example", "http://m2.example"}, nil)
	s := newTestScheduler(t, ft, Options{DestinationDir: dir, MaxParallelConnections: 1})

	tg, _ := target.New("x.bin", filepath.Join(dir, "x.bin"), nil)
	tg.WithChecksum("sha256", sha256Hex(body))

	if err := s.Run(context.Background(), pool, []*target.Target{tg}, false); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if tg.ReturnCode != target.OK {
		t.Fatalf("ReturnCode = %v, want OK (msg=%s)", tg.ReturnCode, tg.ErrorMessage)
	}
	if tg.UsedMirror != "http://m2.example/x.bin" {
		t.Errorf("UsedMirror = %q, want m2", tg.UsedMirror)
	}

	states := pool.States()
	if states[0].Snapshot().Failed != 1 {
		t.Errorf("m1 failed count = %d, want 1", states[0].Snapshot().Failed)
	}
	if states[1].Snapshot().Successful != 1 {
		t.Errorf("m2 successful count = %d, want 1", states[1].Snapshot().Successful)
	}
	for _, st := range states {
		if st.RunningTransfers() != 0 {
			t.Errorf("RunningTransfers = %d, want 0 on return", st.RunningTransfers())
		}
	}
}

func TestRunChecksumMismatchExhaustsMirrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ft := newFakeTransport()

	ft.script("http://m1.example/x.bin", fakeResp{body: []byte("wrong"), statusClass: 2})
	ft.script("http://m2.example/x.bin", fakeResp{body: []byte("also wrong"), statusClass: 2})

	pool := mirror.NewPool([]string{"http://m1.example", "http://m2.example"}, nil)
	s := newTestScheduler(t, ft, Options{DestinationDir: dir, MaxParallelConnections: 1})

	dest := filepath.Join(dir, "x.bin")
	tg, _ := target.New("x.bin", dest, nil)
	tg.WithChecksum("sha256", sha256Hex([]byte("expected")))

	if err := s.Run(context.Background(), pool, []*target.Target{tg}, false); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if tg.ReturnCode != target.Failed {
		t.Fatalf("ReturnCode = %v, want Failed", tg.ReturnCode)
	}
	if tg.ErrorMessage != "bad checksum" {
		t.Errorf("ErrorMessage = %q, want bad checksum", tg.ErrorMessage)
	}
	fi, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != 0 {
		t.Errorf("file size = %d, want 0 after exhausted failure", fi.Size())
	}
}

func TestRunResumeSurvivesMirrorRetry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ft := newFakeTransport()

	dest := filepath.Join(dir, "x.bin")
	prefix := []byte("0123456789")
	if err := os.WriteFile(dest, prefix, 0o644); err != nil {
		t.Fatal(err)
	}
	rest := []byte("abcdefghij")

	// m1 fails after the resume offset was already computed from the
	// on-disk file; m2 must still pick up from byte 10, not byte 0.
	ft.script("http://m1.example/x.bin", fakeResp{statusClass: 5})
	ft.script("http://m2.example/x.bin", fakeResp{body: rest, statusClass: 2})

	pool := mirror.NewPool([]string{"http://m1.example", "http://m2.example"}, nil)
	s := newTestScheduler(t, ft, Options{DestinationDir: dir, MaxParallelConnections: 1})

	tg, _ := target.New("x.bin", dest, nil)
	tg.Resume = true
	tg.WithChecksum("sha256", sha256Hex(append(append([]byte{}, prefix...), rest...)))

	if err := s.Run(context.Background(), pool, []*target.Target{tg}, false); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if tg.ReturnCode != target.OK {
		t.Fatalf("ReturnCode = %v, want OK (msg=%s)", tg.ReturnCode, tg.ErrorMessage)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte{}, prefix...), rest...)
	if string(got) != string(want) {
		t.Errorf("file contents = %q, want %q (resume offset not preserved across mirror retry)", got, want)
	}
}

func TestPrepareNextFullURLBypassesPool(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ft := newFakeTransport()
	body := []byte("full url body")
	ft.script("http://direct.example/f.bin", fakeResp{body: body, statusClass: 2})

	// Non-empty pool that must NOT be consulted.
	pool := mirror.NewPool([]string{"http://unused.example"}, nil)
	s := newTestScheduler(t, ft, Options{DestinationDir: dir, MaxParallelConnections: 1})

	tg, _ := target.New("http://direct.example/f.bin", filepath.Join(dir, "f.bin"), nil)
	tg.WithChecksum("sha256", sha256Hex(body))

	if err := s.Run(context.Background(), pool, []*target.Target{tg}, false); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if tg.ReturnCode != target.OK {
		t.Fatalf("ReturnCode = %v, want OK", tg.ReturnCode)
	}
	if pool.States()[0].Snapshot().Running+pool.States()[0].Snapshot().Successful+pool.States()[0].Snapshot().Failed != 0 {
		t.Errorf("pool mirror was touched despite full-URL bypass")
	}
}

func TestRunMaxConnectionsPerHostSerializes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ft := newFakeTransport()
	bodyA := []byte("aaaa")
	bodyB := []byte("bbbb")
	ft.script("http://one.example/a.bin", fakeResp{body: bodyA, statusClass: 2})
	ft.script("http://one.example/b.bin", fakeResp{body: bodyB, statusClass: 2})

	pool := mirror.NewPool([]string{"http://one.example"}, nil)
	s := newTestScheduler(t, ft, Options{
		DestinationDir:         dir,
		MaxParallelConnections: 2,
		MaxConnectionsPerHost:  1,
	})

	ta, _ := target.New("a.bin", filepath.Join(dir, "a.bin"), nil)
	ta.WithChecksum("sha256", sha256Hex(bodyA))
	tb, _ := target.New("b.bin", filepath.Join(dir, "b.bin"), nil)
	tb.WithChecksum("sha256", sha256Hex(bodyB))

	if err := s.Run(context.Background(), pool, []*target.Target{ta, tb}, false); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if ta.ReturnCode != target.OK || tb.ReturnCode != target.OK {
		t.Fatalf("both targets should finish OK: a=%v(%s) b=%v(%s)", ta.ReturnCode, ta.ErrorMessage, tb.ReturnCode, tb.ErrorMessage)
	}
}
