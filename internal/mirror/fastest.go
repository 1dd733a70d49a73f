package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"time"
)

// ProbeResult is one mirror's measured round-trip time.
type ProbeResult struct {
	URL     string
	Latency time.Duration
	Err     error
}

// cacheEntry is one mirror-set's persisted probe result.
type cacheEntry struct {
	URLs      []string         `json:"urls"`
	Latencies map[string]int64 `json:"latencies_ns"`
	ProbedAt  int64            `json:"probed_at_unix"`
}

// CacheKey derives the on-disk cache key for a set of mirror URLs, per
// SPEC_FULL.md's resolution of the fastest-mirror-cache Open Question:
// SHA-256 of the sorted URL set, so cache entries are independent of
// discovery order.
func CacheKey(urls []string) string {
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, u := range sorted {
		h.Write([]byte(u))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Prober measures and caches per-mirror latency.
type Prober struct {
	Client    *http.Client
	CachePath string
	TTL       time.Duration
	// SentinelPath is appended to each mirror URL for the HEAD probe
	// (e.g. "repodata/repomd.xml"); empty means a bare HEAD of the
	// mirror URL itself.
	SentinelPath string
	now          func() time.Time
}

// NewProber returns a Prober with a 1-hour default cache TTL, matching
// SPEC_FULL.md's resolved default.
func NewProber(client *http.Client, cachePath string) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{Client: client, CachePath: cachePath, TTL: time.Hour, now: time.Now}
}

// Probe measures latency to each URL, consulting and updating the disk
// cache at CachePath when set. Results are returned in input order; the
// caller reorders its Pool from them.
func (p *Prober) Probe(ctx context.Context, urls []string) ([]ProbeResult, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	if cached, ok := p.loadCache(urls); ok {
		return cached, nil
	}

	results := make([]ProbeResult, len(urls))
	for i, u := range urls {
		results[i] = p.probeOne(ctx, u)
	}

	p.storeCache(urls, results)
	return results, nil
}

func (p *Prober) probeOne(ctx context.Context, mirrorURL string) ProbeResult {
	target := mirrorURL
	if p.SentinelPath != "" {
		target = joinURL(mirrorURL, p.SentinelPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return ProbeResult{URL: mirrorURL, Err: err}
	}

	start := p.nowFn()()
	resp, err := p.Client.Do(req)
	elapsed := p.nowFn()().Sub(start)
	if err != nil {
		return ProbeResult{URL: mirrorURL, Latency: elapsed, Err: err}
	}
	resp.Body.Close()

	return ProbeResult{URL: mirrorURL, Latency: elapsed}
}

func (p *Prober) nowFn() func() time.Time {
	if p.now != nil {
		return p.now
	}
	return time.Now
}

func joinURL(base, suffix string) string {
	if len(base) == 0 {
		return suffix
	}
	if base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}

func (p *Prober) loadCache(urls []string) ([]ProbeResult, bool) {
	if p.CachePath == "" {
		return nil, false
	}
	data, err := os.ReadFile(p.CachePath)
	if err != nil {
		return nil, false
	}

	var entries map[string]cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}

	entry, ok := entries[CacheKey(urls)]
	if !ok {
		return nil, false
	}
	if p.nowFn()().Sub(time.Unix(0, entry.ProbedAt)) > p.TTL {
		return nil, false
	}

	results := make([]ProbeResult, len(urls))
	for i, u := range urls {
		ns, ok := entry.Latencies[u]
		if !ok {
			return nil, false // cache doesn't cover this exact set
		}
		results[i] = ProbeResult{URL: u, Latency: time.Duration(ns)}
	}
	return results, true
}

func (p *Prober) storeCache(urls []string, results []ProbeResult) {
	if p.CachePath == "" {
		return
	}

	entries := map[string]cacheEntry{}
	if data, err := os.ReadFile(p.CachePath); err == nil {
		_ = json.Unmarshal(data, &entries) // best-effort merge; corrupt cache is simply replaced
	}

	latencies := make(map[string]int64, len(results))
	for _, r := range results {
		if r.Err == nil {
			latencies[r.URL] = int64(r.Latency)
		}
	}
	entries[CacheKey(urls)] = cacheEntry{
		URLs:      urls,
		Latencies: latencies,
		ProbedAt:  p.nowFn()().UnixNano(),
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_ = os.WriteFile(p.CachePath, data, 0o600) // best-effort: caching is an optimization, never fatal
}

// Reorder sorts urls by ascending latency using results (which must be
// in the same order urls was probed in), placing probe errors last in
// their original relative order.
func Reorder(urls []string, results []ProbeResult) []string {
	if len(urls) != len(results) {
		return urls
	}
	byURL := make(map[string]ProbeResult, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}

	out := append([]string(nil), urls...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, oki := byURL[out[i]]
		rj, okj := byURL[out[j]]
		if !oki || !okj {
			return false
		}
		if (ri.Err == nil) != (rj.Err == nil) {
			return ri.Err == nil // successful probes sort first
		}
		if ri.Err != nil {
			return false
		}
		return ri.Latency < rj.Latency
	})
	return out
}
