package rangereader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokenSource struct{ token string }

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: s.token, Expiry: time.Now().Add(time.Hour)}, nil
}

func TestOpenAndReadFullObject(t *testing.T) {
	payload := []byte("hello, range reader world")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer srv.Close()

	rd, err := Open(context.Background(), srv.URL, staticTokenSource{token: "test-token"})
	require.NoError(t, err)
	defer rd.Close()

	size, ok := rd.Size()
	require.True(t, ok)
	assert.Equal(t, int64(len(payload)), size)

	got, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadAtRejectsNonSequentialOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abc"))
	}))
	defer srv.Close()

	rd, err := Open(context.Background(), srv.URL, staticTokenSource{token: "t"})
	require.NoError(t, err)
	defer rd.Close()

	buf := make([]byte, 1)
	_, err = rd.ReadAt(5, buf)
	assert.Error(t, err)
}

func TestReopenAtNonZeroOffsetSendsRangeHeader(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("defghij"))
	}))
	defer srv.Close()

	rd, err := Open(context.Background(), srv.URL, staticTokenSource{token: "t"})
	require.NoError(t, err)
	defer rd.Close()

	rd.offset = 3 // simulate having already consumed the first 3 bytes
	require.NoError(t, rd.open(context.Background()))
	assert.Equal(t, "bytes=3-", gotRange)
}

func TestReadAtRecoversFromMidStreamTruncation(t *testing.T) {
	full := []byte("abcdefghijklmnopqrstuvwxyz")
	truncateAt := 10
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			hj := w.(http.Hijacker)
			conn, rw, err := hj.Hijack()
			require.NoError(t, err)
			defer conn.Close()

			fmt.Fprintf(rw, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(full))
			rw.Write(full[:truncateAt])
			rw.Flush()
			// close the connection without writing the remaining bytes,
			// simulating a mid-stream truncation.
			return
		}

		assert.Equal(t, fmt.Sprintf("bytes=%d-", truncateAt), r.Header.Get("Range"))
		w.Header().Set("Content-Length", strconv.Itoa(len(full)-truncateAt))
		w.WriteHeader(http.StatusOK)
		w.Write(full[truncateAt:])
	}))
	defer srv.Close()

	rd, err := Open(context.Background(), srv.URL, staticTokenSource{token: "t"})
	require.NoError(t, err)
	defer rd.Close()

	var got bytes.Buffer
	n, err := rd.CopyTo(&got)
	require.NoError(t, err)
	assert.Equal(t, int64(len(full)), n)
	assert.Equal(t, full, got.Bytes())
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestCopyToUsesPooledBuffer(t *testing.T) {
	payload := []byte("copy this whole object through a pooled buffer")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	rd, err := Open(context.Background(), srv.URL, staticTokenSource{token: "t"})
	require.NoError(t, err)
	defer rd.Close()

	var out bytes.Buffer
	n, err := rd.CopyTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, out.Bytes())
}

func TestOpenFailsAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL, staticTokenSource{token: "t"})
	assert.Error(t, err)
}
