package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// maxDecompressedSize caps the decompressed request body. Anything larger
// is rejected as a potential decompression bomb.
const maxDecompressedSize = 50 * 1024 * 1024

// Decompress transparently inflates gzip and zstd request bodies.
func Decompress() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			encoding := strings.ToLower(r.Header.Get("Content-Encoding"))
			if encoding == "" || encoding == "identity" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := decompressBody(r.Body, encoding)
			if err != nil {
				http.Error(w, "invalid compressed request body", http.StatusBadRequest)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Del("Content-Encoding")
			next.ServeHTTP(w, r)
		})
	}
}

func decompressBody(body io.ReadCloser, encoding string) ([]byte, error) {
	defer body.Close()

	var reader io.Reader
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr.IOReadCloser()
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	out, err := io.ReadAll(io.LimitReader(reader, maxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", maxDecompressedSize)
	}
	return out, nil
}
