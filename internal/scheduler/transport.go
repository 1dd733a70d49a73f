// Package scheduler implements the transfer scheduler (spec.md §4.I), the
// core of the library. Grounded on the teacher's http_client.go, whose
// downloadFiles/download functions already implement the same shape this
// spec calls a "single-threaded cooperative event loop": one goroutine
// (here, the scheduler's control loop) is the sole mutator of shared
// state, while a bounded set of worker goroutines perform the blocking
// transport I/O a libcurl multi-handle would otherwise drive from one
// thread via select/poll. golang.org/x/sync/errgroup is the teacher's
// fan-out/fan-in primitive for this pattern, so the scheduler uses it
// too (see run.go).
package scheduler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// fetchResult describes one transport attempt's outcome, enough for the
// control loop to classify it per spec.md §4.I step 3 without touching
// the transport again.
type fetchResult struct {
	effectiveURL string
	statusClass  int // HTTP-style hundreds digit; 2 is success
	bytesWritten int64
	err          error
}

// transport fetches one URL, optionally resuming from byteOffset, and
// writes the body to dst. Implementations must write nothing beyond what
// the server actually sent (no partial-write padding).
type transport interface {
	fetch(ctx context.Context, rawURL string, byteOffset int64, dst io.Writer, onProgress func(n int64), maxBytesPerSec int64) fetchResult
}

// withSpeedLimit wraps dst in a throttledWriter when maxBytesPerSec is
// positive, implementing the max_speed Handle/Target option (spec.md §3).
func withSpeedLimit(dst io.Writer, maxBytesPerSec int64) io.Writer {
	return newThrottledWriter(dst, maxBytesPerSec)
}

// dispatchTransport routes to the http(s), file, or ftp transport by URL
// scheme. The three schemes spec.md's overview names are exactly the
// ones the overview §2 lists for repository access.
type dispatchTransport struct {
	http *httpTransport
	file *fileTransport
	ftp  *ftpTransport
}

func newDispatchTransport(client *http.Client) *dispatchTransport {
	return &dispatchTransport{
		http: &httpTransport{client: client},
		file: &fileTransport{},
		ftp:  &ftpTransport{},
	}
}

func (d *dispatchTransport) fetch(ctx context.Context, rawURL string, byteOffset int64, dst io.Writer, onProgress func(int64), maxBytesPerSec int64) fetchResult {
	dst = withSpeedLimit(dst, maxBytesPerSec)
	u, err := url.Parse(rawURL)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "parsing URL")}
	}
	switch u.Scheme {
	case "http", "https":
		return d.http.fetch(ctx, rawURL, byteOffset, dst, onProgress)
	case "file":
		return d.file.fetch(ctx, u.Path, byteOffset, dst, onProgress)
	case "ftp":
		return d.ftp.fetch(ctx, u, byteOffset, dst, onProgress)
	case "":
		return d.file.fetch(ctx, rawURL, byteOffset, dst, onProgress)
	default:
		return fetchResult{err: lrerrors.Newf(lrerrors.Transport, "unsupported URL scheme %q", u.Scheme)}
	}
}

// httpTransport fetches over HTTP(S) using net/http directly, the same
// way the teacher's HTTPClient does (it wraps http.Client rather than a
// third-party HTTP stack).
type httpTransport struct {
	client *http.Client
}

func (t *httpTransport) fetch(ctx context.Context, rawURL string, byteOffset int64, dst io.Writer, onProgress func(int64)) fetchResult {
	client := t.client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "building request")}
	}
	if byteOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", byteOffset))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "performing request")}
	}
	defer resp.Body.Close()

	effective := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}

	n, err := copyWithProgress(dst, resp.Body, onProgress)
	if err != nil {
		return fetchResult{
			effectiveURL: effective,
			statusClass:  resp.StatusCode / 100,
			bytesWritten: n,
			err:          lrerrors.Wrap(err, lrerrors.Transport, "reading response body"),
		}
	}

	return fetchResult{
		effectiveURL: effective,
		statusClass:  resp.StatusCode / 100,
		bytesWritten: n,
	}
}

// fileTransport serves file:// and bare local-path targets directly off
// the filesystem, for local_only repositories and file:// mirrors.
type fileTransport struct{}

func (t *fileTransport) fetch(_ context.Context, path string, byteOffset int64, dst io.Writer, onProgress func(int64)) fetchResult {
	f, err := os.Open(path)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.IO, "opening local file")}
	}
	defer f.Close()

	if byteOffset > 0 {
		if _, err := f.Seek(byteOffset, io.SeekStart); err != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.IO, "seeking local file")}
		}
	}

	n, err := copyWithProgress(dst, f, onProgress)
	if err != nil {
		return fetchResult{bytesWritten: n, err: lrerrors.Wrap(err, lrerrors.IO, "reading local file")}
	}
	return fetchResult{effectiveURL: "file://" + path, statusClass: 2, bytesWritten: n}
}

// ftpTransport implements a minimal RETR-only FTP client over
// net/textproto. The example pack carries no FTP client library for any
// language ecosystem, so this is necessarily stdlib; see DESIGN.md.
type ftpTransport struct{}

func (t *ftpTransport) fetch(ctx context.Context, u *url.URL, byteOffset int64, dst io.Writer, onProgress func(int64)) fetchResult {
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", host)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "dialing FTP control connection")}
	}
	defer conn.Close()

	text := textproto.NewConn(conn)
	if _, _, err := text.ReadResponse(220); err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "reading FTP banner")}
	}

	user := "anonymous"
	pass := "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	if err := text.PrintfLine("USER %s", user); err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "sending FTP USER")}
	}
	if _, _, err := text.ReadResponse(331); err != nil {
		// Some servers accept USER with 230 directly (no password needed).
		if _, _, err2 := text.ReadResponse(230); err2 != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "FTP USER rejected")}
		}
	} else {
		if err := text.PrintfLine("PASS %s", pass); err != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "sending FTP PASS")}
		}
		if _, _, err := text.ReadResponse(230); err != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "FTP PASS rejected")}
		}
	}

	if err := text.PrintfLine("TYPE I"); err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "sending FTP TYPE I")}
	}
	if _, _, err := text.ReadResponse(200); err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "FTP TYPE I rejected")}
	}

	if byteOffset > 0 {
		if err := text.PrintfLine("REST %d", byteOffset); err != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "sending FTP REST")}
		}
		if _, _, err := text.ReadResponse(350); err != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "FTP REST rejected")}
		}
	}

	if err := text.PrintfLine("PASV"); err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "sending FTP PASV")}
	}
	_, pasvMsg, err := text.ReadResponse(227)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "FTP PASV rejected")}
	}
	dataAddr, err := parsePASV(pasvMsg)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "parsing FTP PASV response")}
	}

	dataConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", dataAddr)
	if err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "dialing FTP data connection")}
	}
	defer dataConn.Close()

	if err := text.PrintfLine("RETR %s", strings.TrimPrefix(u.Path, "/")); err != nil {
		return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "sending FTP RETR")}
	}
	if _, _, err := text.ReadResponse(150); err != nil {
		if _, _, err2 := text.ReadResponse(125); err2 != nil {
			return fetchResult{err: lrerrors.Wrap(err, lrerrors.Transport, "FTP RETR rejected")}
		}
	}

	n, err := copyWithProgress(dst, dataConn, onProgress)
	if err != nil {
		return fetchResult{bytesWritten: n, err: lrerrors.Wrap(err, lrerrors.Transport, "reading FTP data connection")}
	}

	if _, _, err := text.ReadResponse(226); err != nil {
		return fetchResult{bytesWritten: n, err: lrerrors.Wrap(err, lrerrors.Transport, "FTP transfer not confirmed complete")}
	}

	return fetchResult{effectiveURL: u.String(), statusClass: 2, bytesWritten: n}
}

// parsePASV parses the "227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)"
// response into a dialable "host:port" string.
func parsePASV(msg string) (string, error) {
	start := strings.IndexByte(msg, '(')
	end := strings.IndexByte(msg, ')')
	if start < 0 || end < 0 || end < start {
		return "", lrerrors.Newf(lrerrors.Transport, "malformed PASV response: %q", msg)
	}
	parts := strings.Split(msg[start+1:end], ",")
	if len(parts) != 6 {
		return "", lrerrors.Newf(lrerrors.Transport, "malformed PASV response: %q", msg)
	}
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return "", lrerrors.Newf(lrerrors.Transport, "malformed PASV port in: %q", msg)
	}
	host := strings.Join(parts[:4], ".")
	port := p1*256 + p2
	return fmt.Sprintf("%s:%d", host, port), nil
}

type progressWriter struct {
	w       io.Writer
	n       int64
	onWrite func(int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += int64(n)
	if p.onWrite != nil {
		p.onWrite(p.n)
	}
	return n, err
}

func copyWithProgress(dst io.Writer, src io.Reader, onProgress func(int64)) (int64, error) {
	pw := &progressWriter{w: dst, onWrite: onProgress}
	return io.Copy(pw, src)
}
