// Package mirrorlist parses the plain-text mirrorlist format (spec.md
// §4.B): one URL per line, as served by distro mirror-selection endpoints.
// Grounded on original_source's mirrorlist.c, which scans the file with
// fgets and the same accept rule implemented here.
package mirrorlist

import (
	"bufio"
	"io"
	"strings"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// Parse reads a mirrorlist from r and returns the accepted URLs in file
// order. A line is accepted only if, after trimming leading and trailing
// whitespace, it is non-empty, does not begin with '#', and either
// contains "://" or begins with '/'.
func Parse(r io.Reader) ([]string, error) {
	var urls []string

	sc := bufio.NewScanner(r)
	// Mirrorlists are short; the default 64KiB token limit is already
	// generous, but widen it in case a line is unusually long.
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "/") {
			urls = append(urls, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, lrerrors.Wrap(err, lrerrors.MirrorlistBad, "reading mirrorlist")
	}

	return urls, nil
}

// ParseString is a convenience wrapper around Parse for in-memory content.
func ParseString(s string) ([]string, error) {
	return Parse(strings.NewReader(s))
}
