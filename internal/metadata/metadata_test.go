package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-librepo/librepo/internal/config"
)

func TestPassesFilter(t *testing.T) {
	t.Parallel()
	if !passesFilter("primary", nil, nil) {
		t.Error("empty allow/block should admit everything")
	}
	if passesFilter("primary", nil, []string{"primary"}) {
		t.Error("blocklist should reject named type")
	}
	if !passesFilter("primary", []string{"primary", "filelists"}, nil) {
		t.Error("allowlist should admit named type")
	}
	if passesFilter("other", []string{"primary"}, nil) {
		t.Error("non-empty allowlist should reject unnamed type")
	}
}

const sampleRepomd = `<?xml version="1.0"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <revision>1</revision>
  <data type="primary">
    <checksum type="sha256">abc</checksum>
    <location href="repodata/primary.xml.gz"/>
    <timestamp>1</timestamp>
    <size>1</size>
  </data>
</repomd>
`

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestRunLocalOnlyRequiresLocalURL(t *testing.T) {
	t.Parallel()
	f := &Flow{Handle: &config.Handle{LocalOnly: true, URLs: []string{"http://example.com/repo"}}}
	if _, err := f.runLocalOnly(); err == nil {
		t.Fatal("runLocalOnly() = nil, want not_local error for non-local URL")
	}
}

func TestRunLocalOnlyParsesExistingRepomd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	repodata := filepath.Join(dir, "repodata")
	if err := os.MkdirAll(repodata, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repodata, "repomd.xml"), []byte(sampleRepomd), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &Flow{Handle: &config.Handle{LocalOnly: true, URLs: []string{dir}}}
	res, err := f.runLocalOnly()
	if err != nil {
		t.Fatalf("runLocalOnly() = %v", err)
	}
	if res.Repomd.Record("primary") == nil {
		t.Fatal("expected primary record parsed")
	}
}

func TestResultOpenDataDecompresses(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "repodata"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "repodata", "repomd.xml"), []byte(sampleRepomd), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &Flow{Handle: &config.Handle{LocalOnly: true, URLs: []string{dir}}}
	res, err := f.runLocalOnly()
	if err != nil {
		t.Fatalf("runLocalOnly() = %v", err)
	}
	if _, err := res.OpenData("does-not-exist"); err == nil {
		t.Error("OpenData() for unknown type = nil, want error")
	}
}

func TestLockDestinationExcludesSecondCaller(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	unlock, err := lockDestination(dir)
	if err != nil {
		t.Fatalf("lockDestination() = %v", err)
	}
	if _, err := lockDestination(dir); err == nil {
		t.Error("second lockDestination() on same dir = nil, want error while first holds the lock")
	}
	unlock()

	unlock2, err := lockDestination(dir)
	if err != nil {
		t.Fatalf("lockDestination() after release = %v", err)
	}
	unlock2()
}

func TestVerifyLocalRecordsChecksumMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "repodata"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "repodata", "primary.xml.gz"), []byte("not matching"), 0o644); err != nil {
		t.Fatal(err)
	}
	repomdXML := `<?xml version="1.0"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <data type="primary">
    <checksum type="sha256">` + sha256Hex([]byte("expected content")) + `</checksum>
    <location href="repodata/primary.xml.gz"/>
  </data>
</repomd>
`
	if err := os.WriteFile(filepath.Join(dir, "repodata", "repomd.xml"), []byte(repomdXML), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &Flow{Handle: &config.Handle{LocalOnly: true, URLs: []string{dir}, Checks: config.VerifyChecksums}}
	if _, err := f.runLocalOnly(); err == nil {
		t.Fatal("runLocalOnly() = nil, want bad_checksum error")
	}
}
