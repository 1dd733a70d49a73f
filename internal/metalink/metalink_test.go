package metalink

import (
	"strings"
	"testing"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

const sampleMetalink = `<?xml version="1.0" encoding="utf-8"?>
<metalink version="3.0" xmlns="http://www.metalinker.org/">
  <files>
    <file name="other.xml">
      <size>11</size>
    </file>
    <file name="repomd.xml">
      <mm0:timestamp>1700000000</mm0:timestamp>
      <size>12345</size>
      <verification>
        <hash type="sha256">deadbeefcafe</hash>
        <hash type="sha1">abc123</hash>
      </verification>
      <resources maxconnections="1">
        <url protocol="https" type="https" location="US" preference="100">https://mirror1.example.com/repodata/repomd.xml</url>
        <url protocol="http" type="http" location="DE" preference="50">http://mirror2.example.com/repodata/repomd.xml</url>
      </resources>
    </file>
    <file name="yet-another.xml">
      <size>99</size>
    </file>
  </files>
</metalink>`

func TestParseFindsNamedFile(t *testing.T) {
	t.Parallel()

	f, err := Parse(strings.NewReader(sampleMetalink), "repomd.xml")
	if err != nil {
		t.Fatal(err)
	}
	if f.Filename != "repomd.xml" {
		t.Errorf("Filename = %q", f.Filename)
	}
	if f.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d", f.Timestamp)
	}
	if f.Size != 12345 {
		t.Errorf("Size = %d", f.Size)
	}
	if len(f.Hashes) != 2 {
		t.Fatalf("Hashes = %#v, want 2 entries", f.Hashes)
	}
	if f.Hashes[0].Type != "sha256" || f.Hashes[0].Value != "deadbeefcafe" {
		t.Errorf("Hashes[0] = %#v", f.Hashes[0])
	}
	if len(f.Resources) != 2 {
		t.Fatalf("Resources = %#v, want 2 entries", f.Resources)
	}
	if f.Resources[0].URL != "https://mirror1.example.com/repodata/repomd.xml" {
		t.Errorf("Resources[0].URL = %q", f.Resources[0].URL)
	}
	if f.Resources[0].Preference != 100 {
		t.Errorf("Resources[0].Preference = %d", f.Resources[0].Preference)
	}
	if f.Resources[1].Location != "DE" {
		t.Errorf("Resources[1].Location = %q", f.Resources[1].Location)
	}
}

func TestParseFileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader(sampleMetalink), "nonexistent.xml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !lrerrors.Is(err, lrerrors.MetalinkBad) {
		t.Errorf("expected MetalinkBad kind, got %v", err)
	}
}

func TestParseMissingFileNameAttr(t *testing.T) {
	t.Parallel()

	doc := `<metalink><files><file><size>1</size></file></files></metalink>`
	_, err := Parse(strings.NewReader(doc), "repomd.xml")
	if err == nil {
		t.Fatal("expected error for missing name attribute")
	}
	if !lrerrors.Is(err, lrerrors.MetalinkXML) {
		t.Errorf("expected MetalinkXML kind, got %v", err)
	}
}

func TestParseMissingHashTypeAttr(t *testing.T) {
	t.Parallel()

	doc := `<metalink><files><file name="repomd.xml">
		<verification><hash>novalue</hash></verification>
	</file></files></metalink>`
	_, err := Parse(strings.NewReader(doc), "repomd.xml")
	if err == nil {
		t.Fatal("expected error for missing hash type attribute")
	}
	if !lrerrors.Is(err, lrerrors.MetalinkXML) {
		t.Errorf("expected MetalinkXML kind, got %v", err)
	}
}

func TestParseFirstMatchWins(t *testing.T) {
	t.Parallel()

	doc := `<metalink><files>
		<file name="x.xml"><size>1</size></file>
		<file name="x.xml"><size>2</size></file>
	</files></metalink>`
	f, err := Parse(strings.NewReader(doc), "x.xml")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size != 1 {
		t.Errorf("Size = %d, want 1 (first match should win)", f.Size)
	}
}

func TestParseUnknownElementsSkipped(t *testing.T) {
	t.Parallel()

	doc := `<metalink xmlns:extra="urn:x">
		<generator>test</generator>
		<files>
			<extra:ignored><deep><deeper/></deep></extra:ignored>
			<file name="x.xml">
				<unknownchild><a><b/></a></unknownchild>
				<size>42</size>
			</file>
		</files>
	</metalink>`
	f, err := Parse(strings.NewReader(doc), "x.xml")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size != 42 {
		t.Errorf("Size = %d, want 42", f.Size)
	}
}
