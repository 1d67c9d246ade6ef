// internal/search/transport.go
package search

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var brotliReaderPool = sync.Pool{
	New: func() interface{} { return brotli.NewReader(nil) },
}

// compressionTransport advertises br and gzip and decodes the response body.
// Setting Accept-Encoding by hand turns off net/http's own gzip handling, so
// both encodings are decoded here.
type compressionTransport struct {
	base http.RoundTripper
}

func newCompressionTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &compressionTransport{base: base}
}

func (t *compressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decompress(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode %s response: %w", resp.Header.Get("Content-Encoding"), err)
	}
	return resp, nil
}

type decodedBody struct {
	io.Reader
	closeDecoder func() error
	original     io.ReadCloser
}

func (b *decodedBody) Close() error {
	var err1 error
	if b.closeDecoder != nil {
		err1 = b.closeDecoder()
		b.closeDecoder = nil
	}
	return errors.Join(err1, b.original.Close())
}

func decompress(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		resp.Body = &decodedBody{Reader: zr, closeDecoder: zr.Close, original: resp.Body}
	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(resp.Body); err != nil {
			brotliReaderPool.Put(br)
			return err
		}
		resp.Body = &decodedBody{
			Reader: br,
			closeDecoder: func() error {
				_ = br.Reset(strings.NewReader(""))
				brotliReaderPool.Put(br)
				return nil
			},
			original: resp.Body,
		}
	default:
		return fmt.Errorf("unsupported content encoding %q", encoding)
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
