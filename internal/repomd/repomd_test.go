package repomd

import (
	"strings"
	"testing"
)

const sampleRepomd = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <revision>1700000000</revision>
  <tags>
    <repo>fedora</repo>
    <content>binary-x86_64</content>
    <distro cpeid="cpe:/o:fedoraproject:fedora:40">Fedora 40</distro>
  </tags>
  <data type="primary">
    <checksum type="sha256">aaaa</checksum>
    <open-checksum type="sha256">bbbb</open-checksum>
    <location href="repodata/primary.xml.gz"/>
    <timestamp>1700000001</timestamp>
    <size>100</size>
    <open-size>400</open-size>
  </data>
  <data type="filelists">
    <checksum type="sha256">cccc</checksum>
    <location href="repodata/filelists.xml.gz"/>
    <timestamp>1700000002</timestamp>
    <size>200</size>
  </data>
  <data type="primary_db">
    <checksum type="sha256">dddd</checksum>
    <location href="repodata/primary.sqlite.bz2"/>
    <timestamp>1700000003</timestamp>
    <size>50</size>
    <database_version>10</database_version>
  </data>
</repomd>`

func TestParseBasic(t *testing.T) {
	t.Parallel()

	r, err := Parse(strings.NewReader(sampleRepomd))
	if err != nil {
		t.Fatal(err)
	}
	if r.Revision != "1700000000" {
		t.Errorf("Revision = %q", r.Revision)
	}
	if len(r.RepoTags) != 1 || r.RepoTags[0] != "fedora" {
		t.Errorf("RepoTags = %#v", r.RepoTags)
	}
	if len(r.ContentTags) != 1 || r.ContentTags[0] != "binary-x86_64" {
		t.Errorf("ContentTags = %#v", r.ContentTags)
	}
	if len(r.DistroTags) != 1 || r.DistroTags[0].CPEID != "cpe:/o:fedoraproject:fedora:40" {
		t.Errorf("DistroTags = %#v", r.DistroTags)
	}

	primary := r.Record("primary")
	if primary == nil {
		t.Fatal("expected primary record")
	}
	if primary.ChecksumType != "sha256" || primary.Checksum != "aaaa" {
		t.Errorf("primary checksum = %q/%q", primary.ChecksumType, primary.Checksum)
	}
	if primary.OpenChecksum != "bbbb" {
		t.Errorf("primary open-checksum = %q", primary.OpenChecksum)
	}
	if primary.LocationHref != "repodata/primary.xml.gz" {
		t.Errorf("primary location = %q", primary.LocationHref)
	}
	if primary.Size != 100 || primary.OpenSize != 400 {
		t.Errorf("primary size/open-size = %d/%d", primary.Size, primary.OpenSize)
	}

	primaryDB := r.Record("primary_db")
	if primaryDB == nil || primaryDB.DatabaseVersion != 10 {
		t.Errorf("primary_db = %#v", primaryDB)
	}

	if r.Record("other") != nil {
		t.Error("expected no record for absent type")
	}
}

func TestParseTypesOrder(t *testing.T) {
	t.Parallel()

	r, err := Parse(strings.NewReader(sampleRepomd))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"primary", "filelists", "primary_db"}
	got := r.Types()
	if len(got) != len(want) {
		t.Fatalf("Types = %#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDuplicateTypeOverwrites(t *testing.T) {
	t.Parallel()

	doc := `<repomd>
		<data type="primary"><checksum type="sha256">first</checksum></data>
		<data type="primary"><checksum type="sha256">second</checksum></data>
	</repomd>`
	r, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	rec := r.Record("primary")
	if rec == nil || rec.Checksum != "second" {
		t.Errorf("expected duplicate type to overwrite with latest record, got %#v", rec)
	}
	if len(r.Types()) != 1 {
		t.Errorf("Types = %#v, want single entry despite duplicate", r.Types())
	}
}

func TestParseNoRootElement(t *testing.T) {
	t.Parallel()
	_, err := Parse(strings.NewReader(`<notrepomd></notrepomd>`))
	if err == nil {
		t.Fatal("expected error when no repomd root is present")
	}
}

func TestParseUnknownElementsSkipped(t *testing.T) {
	t.Parallel()

	doc := `<repomd>
		<unknown><nested><deep/></nested></unknown>
		<revision>42</revision>
		<data type="primary">
			<unknownchild/>
			<checksum type="sha1">x</checksum>
		</data>
	</repomd>`
	r, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if r.Revision != "42" {
		t.Errorf("Revision = %q, want 42", r.Revision)
	}
	if r.Record("primary") == nil {
		t.Error("expected primary record despite unknown sibling elements")
	}
}
