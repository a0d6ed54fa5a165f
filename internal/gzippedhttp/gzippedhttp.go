// Package gzippedhttp holds the gzip middlewares of the HTTP API: request
// bodies sent with Content-Encoding: gzip are inflated, responses to clients
// that accept gzip are compressed. Streaming responses keep working because
// the compressing writer forwards Flush.
package gzippedhttp

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

var writerPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

type requestBody struct {
	body io.ReadCloser
	zr   *gzip.Reader
}

func (b *requestBody) Read(p []byte) (int, error) {
	return b.zr.Read(p)
}

func (b *requestBody) Close() error {
	if err := b.zr.Close(); err != nil {
		return err
	}
	return b.body.Close()
}

func newRequestBody(body io.ReadCloser) (*requestBody, error) {
	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("in internal/gzippedhttp/gzippedhttp.go/newRequestBody(): error while `gzip.NewReader()` calling: %w", err)
	}
	return &requestBody{body: body, zr: zr}, nil
}

// ResponseWriter compresses everything written through it. Close must be
// called once the handler returns.
type ResponseWriter struct {
	http.ResponseWriter
	zw          *gzip.Writer
	wroteHeader bool
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	zw := writerPool.Get().(*gzip.Writer)
	zw.Reset(w)
	return &ResponseWriter{ResponseWriter: w, zw: zw}
}

func (w *ResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	w.Header().Del("Content-Length")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Add("Vary", "Accept-Encoding")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.zw.Write(p)
}

// Flush pushes the compressed bytes written so far to the client.
func (w *ResponseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if err := w.zw.Flush(); err != nil {
		return
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Close finishes the gzip stream and returns the writer to the pool. When
// nothing was written, no gzip trailer is sent either.
func (w *ResponseWriter) Close() error {
	defer writerPool.Put(w.zw)

	if !w.wroteHeader {
		w.zw.Reset(io.Discard)
		return nil
	}
	return w.zw.Close()
}

// GzipResponse compresses responses for clients that send Accept-Encoding: gzip.
func GzipResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if !strings.Contains(request.Header.Get("Accept-Encoding"), "gzip") {
			h.ServeHTTP(response, request)
			return
		}

		compressed := NewResponseWriter(response)
		defer compressed.Close()

		h.ServeHTTP(compressed, request)
	})
}

// UngzipJSONAndTextHTMLRequest inflates request bodies sent with
// Content-Encoding: gzip.
func UngzipJSONAndTextHTMLRequest(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if !strings.Contains(request.Header.Get("Content-Encoding"), "gzip") {
			h.ServeHTTP(response, request)
			return
		}

		body, err := newRequestBody(request.Body)
		if err != nil {
			http.Error(response, "malformed gzip body", http.StatusBadRequest)
			return
		}
		defer body.Close()

		request.Body = body
		request.Header.Del("Content-Encoding")

		h.ServeHTTP(response, request)
	})
}
