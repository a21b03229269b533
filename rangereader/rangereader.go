// Package rangereader implements a sequential HTTPS object-storage reader
// that resumes a truncated stream with a Range request instead of failing
// the read, following GCS-style object URLs.
//
// Grounded on original_source/util/gce/gcs_read_file.cc: the
// /storage/v1/b/{bucket}/o/{object}?alt=media URL shape, the
// "bytes=from-" Range header used to resume after a truncated stream, the
// bounded-retry-of-3 request sender, the Content-Length-derived Size(),
// and the sequential-only access invariant (Read at any offset other than
// the current position is rejected).
package rangereader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/momentics/corefiber/bufpool"
	"github.com/momentics/corefiber/corefiber"
	"github.com/momentics/corefiber/corelog"
)

const maxOpenAttempts = 3

// defaultCopyBufferSize sizes the scratch buffer CopyTo draws from
// copyBufPool when the caller doesn't supply its own pool.
const defaultCopyBufferSize = 32 * 1024

var copyBufPool = bufpool.New(defaultCopyBufferSize)

// Reader sequentially reads one object's contents over HTTPS, with
// automatic resumption on a truncated stream.
type Reader struct {
	client  *http.Client
	ts      oauth2.TokenSource
	url     string
	log     corelog.Logger
	bufPool *bufpool.Pool

	offset int64
	size   int64
	hasLen bool
	body   io.ReadCloser
	done   bool
}

// Option configures a Reader at construction.
type Option func(*Reader)

// WithHTTPClient overrides the default http.Client (e.g. for custom
// timeouts or transport tuning).
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reader) { r.client = c }
}

// WithLogger attaches a Logger for reopen diagnostics.
func WithLogger(l corelog.Logger) Option {
	return func(r *Reader) { r.log = l }
}

// WithBufferPool overrides the pool CopyTo draws its scratch buffer from,
// e.g. to share one pool across several Readers of the same chunk size.
func WithBufferPool(p *bufpool.Pool) Option {
	return func(r *Reader) { r.bufPool = p }
}

// ObjectURL builds the GCS-style object URL, mirroring BuildGetObjUrl.
func ObjectURL(bucket, object string) string {
	return fmt.Sprintf("/storage/v1/b/%s/o/%s?alt=media",
		url.PathEscape(bucket), url.PathEscape(object))
}

// Open opens objURL (an absolute URL, typically built with ObjectURL and a
// storage host) for sequential reading, authenticating every request with
// a bearer token drawn from ts.
func Open(ctx context.Context, objURL string, ts oauth2.TokenSource, opts ...Option) (*Reader, error) {
	r := &Reader{
		client:  http.DefaultClient,
		ts:      ts,
		url:     objURL,
		log:     corelog.NoOp{},
		bufPool: copyBufPool,
	}
	for _, o := range opts {
		o(r)
	}
	if err := r.open(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// open issues the (possibly ranged) GET request for the current offset,
// following GcsReadFile::Open.
func (r *Reader) open(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
		if err != nil {
			return corefiber.Wrap(corefiber.CodeInvalidArgument, err, "rangereader: build request")
		}
		if r.offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", r.offset))
		}
		tok, err := r.ts.Token()
		if err != nil {
			return corefiber.Wrap(corefiber.CodeTransport, err, "rangereader: token")
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			corelog.Warnf(r.log, "rangereader", err, "open attempt %d failed", attempt+1)
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			resp.Body.Close()
			lastErr = fmt.Errorf("rangereader: unexpected status %s", resp.Status)
			corelog.Warnf(r.log, "rangereader", lastErr, "open attempt %d failed", attempt+1)
			continue
		}

		if !r.hasLen {
			if cl := resp.Header.Get("Content-Length"); cl != "" {
				if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
					r.size = r.offset + n
					r.hasLen = true
				}
			}
		}
		r.body = resp.Body
		return nil
	}
	return corefiber.Wrap(corefiber.CodeTransport, lastErr, "rangereader: open failed after retries")
}

// Size returns the object's total length and whether it is known. Length
// is unknown when the server never returned a Content-Length header.
func (r *Reader) Size() (int64, bool) {
	return r.size, r.hasLen
}

// Read reads into p starting at the Reader's current offset. Read at any
// other offset is a programmer error here because this Reader exposes a
// plain io.Reader-shaped Read rather than GcsReadFile's offset-taking
// Read; callers wanting random access should not use this type — see
// ReadAt's explicit offset check instead.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadAt(r.offset, p)
}

// ReadAt reads up to len(p) bytes starting at offset, which must equal the
// Reader's current position — this Reader supports sequential access
// only, per GcsReadFile::Read's "Only sequential access supported" check.
// On a truncated stream it transparently reopens with a Range request
// continuing from the new offset and keeps reading.
func (r *Reader) ReadAt(offset int64, p []byte) (int, error) {
	if offset != r.offset {
		return 0, corefiber.New(corefiber.CodeInvalidArgument, "rangereader: only sequential access supported")
	}
	if r.done {
		return 0, io.EOF
	}

	readSoFar := 0
	for readSoFar < len(p) {
		n, err := r.body.Read(p[readSoFar:])
		readSoFar += n
		r.offset += int64(n)

		if err == nil {
			continue
		}
		if err == io.EOF {
			r.done = true
			return readSoFar, nil
		}

		corelog.Warnf(r.log, "rangereader", err, "stream truncated at offset %d, reopening", r.offset)
		r.body.Close()
		if reopenErr := r.open(context.Background()); reopenErr != nil {
			return readSoFar, reopenErr
		}
	}
	return readSoFar, nil
}

// CopyTo drains the Reader to completion, writing every byte read to w. It
// is a convenience for callers that want the whole object rather than
// incremental reads, using a pooled scratch buffer instead of allocating a
// fresh one per call.
func (r *Reader) CopyTo(w io.Writer) (int64, error) {
	buf := r.bufPool.Get()
	defer r.bufPool.Put(buf)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Close releases the underlying HTTP response body, preferring to close
// the connection outright over draining it, mirroring GcsReadFile::Close.
func (r *Reader) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}
