package digest

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestComputeKnownVectors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		algo string
		in   string
		want string
	}{
		{"md5", "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha", "abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"SHA256", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha512", "", "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.algo+"/"+c.in, func(t *testing.T) {
			t.Parallel()
			got, err := Compute(c.algo, strings.NewReader(c.in))
			if err != nil {
				t.Fatalf("Compute(%q) error: %v", c.algo, err)
			}
			if got != c.want {
				t.Errorf("Compute(%q, %q) = %q, want %q", c.algo, c.in, got, c.want)
			}
		})
	}
}

func TestComputeUnknownAlgorithm(t *testing.T) {
	t.Parallel()
	_, err := Compute("crc32", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for unknown checksum algorithm")
	}
}

func TestComputeIdempotent(t *testing.T) {
	t.Parallel()
	data := []byte("the quick brown fox jumps over the lazy dog")
	a, err := Compute("sha256", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute("sha256", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("Compute not idempotent: %q != %q", a, b)
	}
}

// memXattr is an in-memory xattrStore for testing cache behavior without a
// real filesystem.
type memXattr struct {
	mtime int64
	attrs map[string]string
	reads int
}

func newMemXattr(mtime int64) *memXattr {
	return &memXattr{mtime: mtime, attrs: make(map[string]string)}
}

func (m *memXattr) ModTimeNanos() (int64, error) { return m.mtime, nil }
func (m *memXattr) Get(name string) (string, bool, error) {
	v, ok := m.attrs[name]
	return v, ok, nil
}
func (m *memXattr) Set(name, value string) error { m.attrs[name] = value; return nil }
func (m *memXattr) Remove(name string) error      { delete(m.attrs, name); return nil }
func (m *memXattr) List() ([]string, error) {
	names := make([]string, 0, len(m.attrs))
	for k := range m.attrs {
		names = append(names, k)
	}
	return names, nil
}

// countingReader counts how many times Read is called, so a test can prove
// a cache hit never reads the file.
type countingReader struct {
	r     io.Reader
	reads *int
}

func (c countingReader) Read(p []byte) (int, error) {
	*c.reads++
	return c.r.Read(p)
}

func TestCompareCacheHitSkipsRead(t *testing.T) {
	t.Parallel()

	xs := newMemXattr(1234)
	// Pre-populate the cache as spec.md's scenario 5 describes.
	if err := xs.Set(xattrMtime, "1234"); err != nil {
		t.Fatal(err)
	}
	if err := xs.Set(xattrForAlgo(SHA256), "deadbeef"); err != nil {
		t.Fatal(err)
	}

	reads := 0
	r := countingReader{r: strings.NewReader("irrelevant"), reads: &reads}

	res, err := Compare("sha256", r, xs, "deadbeef", true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matches {
		t.Error("expected cache hit to match")
	}
	if reads != 0 {
		t.Errorf("expected 0 reads on cache hit, got %d", reads)
	}
}

func TestCompareCacheMissRecomputesAndWritesOnMatch(t *testing.T) {
	t.Parallel()

	xs := newMemXattr(1234)
	data := "abc"
	want, _ := Compute("sha256", strings.NewReader(data))

	res, err := Compare("sha256", strings.NewReader(data), xs, want, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matches {
		t.Fatal("expected match")
	}
	if v, ok, _ := xs.Get(xattrForAlgo(SHA256)); !ok || v != want {
		t.Errorf("expected cache to be populated with %q, got %q (ok=%v)", want, v, ok)
	}
	if v, ok, _ := xs.Get(xattrMtime); !ok || v != "1234" {
		t.Errorf("expected mtime xattr 1234, got %q (ok=%v)", v, ok)
	}
}

func TestCompareCacheMissDoesNotWriteOnMismatch(t *testing.T) {
	t.Parallel()

	xs := newMemXattr(1234)
	res, err := Compare("sha256", strings.NewReader("abc"), xs, "notthehash", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches {
		t.Fatal("expected mismatch")
	}
	if _, ok, _ := xs.Get(xattrForAlgo(SHA256)); ok {
		t.Error("cache should not be populated when computed digest does not match expected")
	}
}

func TestCompareStaleMtimeIsMiss(t *testing.T) {
	t.Parallel()

	xs := newMemXattr(999)
	if err := xs.Set(xattrMtime, "111"); err != nil { // stale
		t.Fatal(err)
	}
	if err := xs.Set(xattrForAlgo(SHA256), "stale-value"); err != nil {
		t.Fatal(err)
	}

	data := "abc"
	want, _ := Compute("sha256", strings.NewReader(data))
	res, err := Compare("sha256", strings.NewReader(data), xs, want, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matches {
		t.Fatal("expected recomputed digest to match")
	}
	if v, _, _ := xs.Get(xattrMtime); v != "999" {
		t.Errorf("expected mtime xattr refreshed to 999, got %q", v)
	}
}

func TestClearCacheRemovesOnlyPrefixedAttrs(t *testing.T) {
	t.Parallel()

	xs := newMemXattr(1)
	if err := xs.Set(xattrMtime, "1"); err != nil {
		t.Fatal(err)
	}
	if err := xs.Set(xattrForAlgo(SHA256), "abc"); err != nil {
		t.Fatal(err)
	}
	if err := xs.Set("user.other.thing", "keep-me"); err != nil {
		t.Fatal(err)
	}

	if err := ClearCache(xs); err != nil {
		t.Fatal(err)
	}

	names, _ := xs.List()
	if len(names) != 1 || names[0] != "user.other.thing" {
		t.Errorf("ClearCache left %v, want only user.other.thing", names)
	}
}

func TestCopyWithDigests(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sums, err := CopyWithDigests(&buf, strings.NewReader("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if sums.Size != 3 {
		t.Errorf("Size = %d, want 3", sums.Size)
	}
	if got, _ := sums.Get("sha256"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("sha256 = %q", got)
	}
	if buf.String() != "abc" {
		t.Errorf("copied data = %q", buf.String())
	}
}
