// Package metalink stream-parses metalink XML and filters on a caller
// supplied target filename (spec.md §4.C). Grounded on original_source's
// metalink.c, an expat-based recursive state machine; re-expressed here as
// recursive-descent over encoding/xml's streaming Decoder, since the
// corpus shows no third-party streaming XML library and stdlib's decoder
// already walks tokens one at a time without buffering the whole document.
package metalink

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// Hash is one verification hash recorded for a file.
type Hash struct {
	Type  string
	Value string
}

// Resource is one download URL offered for a file.
type Resource struct {
	Protocol   string
	Type       string
	Location   string
	Preference int
	URL        string
}

// File is the subset of metalink content relevant to fetching one named
// file: its size, timestamp, verification hashes, and candidate mirrors.
type File struct {
	Filename  string
	Timestamp int64
	Size      int64
	Hashes    []Hash
	Resources []Resource
}

// Parse stream-parses a metalink document from r, returning the first
// <file name="filename"> element's data. All other <file> elements are
// skipped without being buffered. If no matching file is found, Parse
// fails with a lrerrors.MetalinkBad error, exactly as original_source's
// lr_metalink_parse_file does for LRE_MLBAD.
func Parse(r io.Reader, filename string) (*File, error) {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading metalink")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "metalink" {
			if err := dec.Skip(); err != nil {
				return nil, lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping unknown root element")
			}
			continue
		}

		f, found, err := parseMetalinkElem(dec, filename)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, lrerrors.Newf(lrerrors.MetalinkBad, "bad metalink, file %q was not found", filename)
		}
		return f, nil
	}

	return nil, lrerrors.Newf(lrerrors.MetalinkBad, "bad metalink, file %q was not found", filename)
}

// parseMetalinkElem consumes tokens up to and including </metalink>,
// descending into the first <files> it finds.
func parseMetalinkElem(dec *xml.Decoder, filename string) (*File, bool, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false, lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading metalink element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "files" {
				return parseFilesElem(dec, filename)
			}
			if err := dec.Skip(); err != nil {
				return nil, false, lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping element")
			}
		case xml.EndElement:
			if t.Name.Local == "metalink" {
				return nil, false, nil
			}
		}
	}
}

// parseFilesElem consumes tokens up to and including </files>. The first
// <file> whose name attribute equals filename is parsed; every other
// <file> is skipped in full.
func parseFilesElem(dec *xml.Decoder, filename string) (*File, bool, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false, lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading files element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "file" {
				if err := dec.Skip(); err != nil {
					return nil, false, lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping element")
				}
				continue
			}

			name, ok := attr(t, "name")
			if !ok {
				return nil, false, lrerrors.New(lrerrors.MetalinkXML, "file element doesn't have a name attribute")
			}
			if name != filename {
				if err := dec.Skip(); err != nil {
					return nil, false, lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping non-matching file element")
				}
				continue
			}

			f, err := parseFileElem(dec, name)
			if err != nil {
				return nil, false, err
			}
			// The wanted file was already parsed; consume the rest of
			// <files> so Parse's caller sees a clean EOF, but ignore any
			// further <file> elements (first match wins).
			if err := drainSiblings(dec, "files"); err != nil {
				return nil, false, err
			}
			return f, true, nil
		case xml.EndElement:
			if t.Name.Local == "files" {
				return nil, false, nil
			}
		}
	}
}

// drainSiblings consumes and discards tokens until the end element named
// until is reached, skipping any nested start elements wholesale.
func drainSiblings(dec *xml.Decoder, until string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.MetalinkXML, "draining remaining elements")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := dec.Skip(); err != nil {
				return lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping element")
			}
		case xml.EndElement:
			if t.Name.Local == until {
				return nil
			}
		}
	}
}

// parseFileElem consumes tokens up to and including </file>, collecting
// timestamp, size, verification hashes, and resource URLs.
func parseFileElem(dec *xml.Decoder, name string) (*File, error) {
	f := &File{Filename: name}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading file element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "timestamp":
				text, err := leafText(dec, t.Name.Local)
				if err != nil {
					return nil, err
				}
				f.Timestamp, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			case "size":
				text, err := leafText(dec, t.Name.Local)
				if err != nil {
					return nil, err
				}
				f.Size, _ = strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			case "verification":
				if err := parseVerificationElem(dec, f); err != nil {
					return nil, err
				}
			case "resources":
				if err := parseResourcesElem(dec, f); err != nil {
					return nil, err
				}
			default:
				if err := dec.Skip(); err != nil {
					return nil, lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping unknown element in file")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "file" {
				return f, nil
			}
		}
	}
}

// parseVerificationElem consumes tokens up to and including
// </verification>, collecting each <hash type="...">value</hash>.
func parseVerificationElem(dec *xml.Decoder, f *File) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading verification element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "hash" {
				if err := dec.Skip(); err != nil {
					return lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping element")
				}
				continue
			}
			typ, ok := attr(t, "type")
			if !ok {
				return lrerrors.New(lrerrors.MetalinkXML, "hash element doesn't have a type attribute")
			}
			value, err := leafText(dec, t.Name.Local)
			if err != nil {
				return err
			}
			f.Hashes = append(f.Hashes, Hash{Type: typ, Value: strings.TrimSpace(value)})
		case xml.EndElement:
			if t.Name.Local == "verification" {
				return nil
			}
		}
	}
}

// parseResourcesElem consumes tokens up to and including </resources>,
// collecting each <url ...>location</url>.
func parseResourcesElem(dec *xml.Decoder, f *File) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading resources element")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "url" {
				if err := dec.Skip(); err != nil {
					return lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping element")
				}
				continue
			}
			res := Resource{}
			if v, ok := attr(t, "protocol"); ok {
				res.Protocol = v
			}
			if v, ok := attr(t, "type"); ok {
				res.Type = v
			}
			if v, ok := attr(t, "location"); ok {
				res.Location = v
			}
			if v, ok := attr(t, "preference"); ok {
				res.Preference, _ = strconv.Atoi(v)
			}
			text, err := leafText(dec, t.Name.Local)
			if err != nil {
				return err
			}
			res.URL = strings.TrimSpace(text)
			f.Resources = append(f.Resources, res)
		case xml.EndElement:
			if t.Name.Local == "resources" {
				return nil
			}
		}
	}
}

// leafText reads character data up to the matching end element named
// local, tolerating (by skipping) any nested elements it doesn't expect.
func leafText(dec *xml.Decoder, local string) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", lrerrors.Wrap(err, lrerrors.MetalinkXML, "reading element text")
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := dec.Skip(); err != nil {
				return "", lrerrors.Wrap(err, lrerrors.MetalinkXML, "skipping nested element")
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
