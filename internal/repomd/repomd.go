// Package repomd stream-parses repomd.xml (spec.md §4.D), the top-level
// index of a package repository listing its data files (primary,
// filelists, other, ...) and their checksums. Grounded on original_source's
// repomd.c, re-expressed over encoding/xml the same way internal/metalink
// is.
package repomd

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// DistroTag is a distro-specific tag with an optional CPE identifier.
type DistroTag struct {
	CPEID string
	Value string
}

// Record describes one data file referenced from repomd.xml, such as
// "primary" or "filelists".
type Record struct {
	Type string

	LocationHref string
	LocationBase string

	ChecksumType string
	Checksum     string

	OpenChecksumType string
	OpenChecksum     string

	Timestamp int64
	Size      int64
	OpenSize  int64

	HeaderChecksumType string
	HeaderChecksum     string
	HeaderSize         int64

	DatabaseVersion int64
}

// Repomd holds parsed repomd.xml content, with data records indexed by
// type for constant-time lookup.
type Repomd struct {
	Revision    string
	RepoTags    []string
	ContentTags []string
	DistroTags  []DistroTag

	records map[string]*Record
	order   []string
}

// Record returns the record for the given data type ("primary",
// "filelists", ...), or nil if repomd.xml had no such entry.
func (r *Repomd) Record(typ string) *Record {
	if r.records == nil {
		return nil
	}
	return r.records[typ]
}

// Types returns the data types present, in the order their *first*
// occurrence was seen in the document.
func (r *Repomd) Types() []string {
	return append([]string(nil), r.order...)
}

// Parse stream-parses repomd.xml from r. Repeated <data type=T> elements
// produce distinct records keyed by type; a duplicate type overwrites the
// earlier record but keeps its position in Types()'s ordering, mirroring
// a plain map-assignment semantics.
func Parse(r io.Reader) (*Repomd, error) {
	dec := xml.NewDecoder(r)
	out := &Repomd{records: make(map[string]*Record)}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, lrerrors.Wrap(err, lrerrors.RepomdXML, "reading repomd")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "repomd" {
			if err := dec.Skip(); err != nil {
				return nil, lrerrors.Wrap(err, lrerrors.RepomdXML, "skipping unknown root element")
			}
			continue
		}
		if err := parseRepomdElem(dec, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	return nil, lrerrors.New(lrerrors.RepomdXML, "no repomd element found")
}

func parseRepomdElem(dec *xml.Decoder, out *Repomd) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.RepomdXML, "reading repomd element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "revision":
				text, err := leafText(dec, "revision")
				if err != nil {
					return err
				}
				out.Revision = strings.TrimSpace(text)
			case "tags":
				if err := parseTagsElem(dec, out); err != nil {
					return err
				}
			case "data":
				typ, ok := attr(t, "type")
				if !ok {
					if err := dec.Skip(); err != nil {
						return lrerrors.Wrap(err, lrerrors.RepomdXML, "skipping untyped data element")
					}
					continue
				}
				rec := &Record{Type: typ}
				if err := parseDataElem(dec, rec); err != nil {
					return err
				}
				if _, exists := out.records[typ]; !exists {
					out.order = append(out.order, typ)
				}
				out.records[typ] = rec
			default:
				if err := dec.Skip(); err != nil {
					return lrerrors.Wrap(err, lrerrors.RepomdXML, "skipping unknown element")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "repomd" {
				return nil
			}
		}
	}
}

func parseTagsElem(dec *xml.Decoder, out *Repomd) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.RepomdXML, "reading tags element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "repo":
				text, err := leafText(dec, "repo")
				if err != nil {
					return err
				}
				out.RepoTags = append(out.RepoTags, strings.TrimSpace(text))
			case "content":
				text, err := leafText(dec, "content")
				if err != nil {
					return err
				}
				out.ContentTags = append(out.ContentTags, strings.TrimSpace(text))
			case "distro":
				cpeid, _ := attr(t, "cpeid")
				text, err := leafText(dec, "distro")
				if err != nil {
					return err
				}
				out.DistroTags = append(out.DistroTags, DistroTag{CPEID: cpeid, Value: strings.TrimSpace(text)})
			default:
				if err := dec.Skip(); err != nil {
					return lrerrors.Wrap(err, lrerrors.RepomdXML, "skipping unknown tag element")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "tags" {
				return nil
			}
		}
	}
}

func parseDataElem(dec *xml.Decoder, rec *Record) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.RepomdXML, "reading data element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "location":
				if v, ok := attr(t, "href"); ok {
					rec.LocationHref = v
				}
				if v, ok := attr(t, "base"); ok {
					rec.LocationBase = v
				}
				if err := skipIfAny(dec, "location"); err != nil {
					return err
				}
			case "checksum":
				if v, ok := attr(t, "type"); ok {
					rec.ChecksumType = v
				}
				text, err := leafText(dec, "checksum")
				if err != nil {
					return err
				}
				rec.Checksum = strings.TrimSpace(text)
			case "open-checksum":
				if v, ok := attr(t, "type"); ok {
					rec.OpenChecksumType = v
				}
				text, err := leafText(dec, "open-checksum")
				if err != nil {
					return err
				}
				rec.OpenChecksum = strings.TrimSpace(text)
			case "header-checksum":
				if v, ok := attr(t, "type"); ok {
					rec.HeaderChecksumType = v
				}
				text, err := leafText(dec, "header-checksum")
				if err != nil {
					return err
				}
				rec.HeaderChecksum = strings.TrimSpace(text)
			case "timestamp":
				text, err := leafText(dec, "timestamp")
				if err != nil {
					return err
				}
				rec.Timestamp, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			case "size":
				text, err := leafText(dec, "size")
				if err != nil {
					return err
				}
				rec.Size, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			case "open-size":
				text, err := leafText(dec, "open-size")
				if err != nil {
					return err
				}
				rec.OpenSize, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			case "header-size":
				text, err := leafText(dec, "header-size")
				if err != nil {
					return err
				}
				rec.HeaderSize, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			case "database_version":
				text, err := leafText(dec, "database_version")
				if err != nil {
					return err
				}
				rec.DatabaseVersion, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			default:
				if err := dec.Skip(); err != nil {
					return lrerrors.Wrap(err, lrerrors.RepomdXML, "skipping unknown data child element")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "data" {
				return nil
			}
		}
	}
}

// skipIfAny consumes an already-open empty element's remaining content
// (attributes were already read by the caller) up to its matching end tag,
// discarding any nested elements.
func skipIfAny(dec *xml.Decoder, local string) error {
	_, err := leafText(dec, local)
	return err
}

func leafText(dec *xml.Decoder, local string) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", lrerrors.Wrap(err, lrerrors.RepomdXML, "reading element text")
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := dec.Skip(); err != nil {
				return "", lrerrors.Wrap(err, lrerrors.RepomdXML, "skipping nested element")
			}
		case xml.EndElement:
			if t.Name.Local == local {
				return sb.String(), nil
			}
		}
	}
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
