package mirror

import (
	"testing"
	"time"
)

func TestCacheKeyOrderIndependent(t *testing.T) {
	t.Parallel()

	a := CacheKey([]string{"https://x.example.com", "https://y.example.com"})
	b := CacheKey([]string{"https://y.example.com", "https://x.example.com"})
	if a != b {
		t.Errorf("CacheKey not order-independent: %q != %q", a, b)
	}

	c := CacheKey([]string{"https://x.example.com"})
	if a == c {
		t.Error("CacheKey should differ for a different mirror set")
	}
}

func TestReorderByAscendingLatency(t *testing.T) {
	t.Parallel()

	urls := []string{"https://slow.example.com", "https://fast.example.com", "https://mid.example.com"}
	results := []ProbeResult{
		{URL: "https://slow.example.com", Latency: 300 * time.Millisecond},
		{URL: "https://fast.example.com", Latency: 10 * time.Millisecond},
		{URL: "https://mid.example.com", Latency: 100 * time.Millisecond},
	}

	got := Reorder(urls, results)
	want := []string{"https://fast.example.com", "https://mid.example.com", "https://slow.example.com"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reorder[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestReorderPutsErrorsLast(t *testing.T) {
	t.Parallel()

	urls := []string{"https://broken.example.com", "https://ok.example.com"}
	results := []ProbeResult{
		{URL: "https://broken.example.com", Err: errTest},
		{URL: "https://ok.example.com", Latency: 5 * time.Millisecond},
	}

	got := Reorder(urls, results)
	if got[0] != "https://ok.example.com" {
		t.Errorf("Reorder = %v, want working mirror first", got)
	}
}

var errTest = &probeErrStub{}

type probeErrStub struct{}

func (*probeErrStub) Error() string { return "probe failed" }
