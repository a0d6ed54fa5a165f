package gzippedhttp

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, input string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(input))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func echo(res http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		res.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = res.Write(body)
}

func TestUngzipRequest(t *testing.T) {
	handler := UngzipJSONAndTextHTMLRequest(http.HandlerFunc(echo))

	testCases := []struct {
		name       string
		body       []byte
		encoding   string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "gzipped",
			body:       gzipBytes(t, `{"email":"a@x.com"}`),
			encoding:   "gzip",
			wantStatus: http.StatusOK,
			wantBody:   `{"email":"a@x.com"}`,
		},
		{
			name:       "plain",
			body:       []byte(`plain`),
			wantStatus: http.StatusOK,
			wantBody:   `plain`,
		},
		{
			name:       "broken gzip",
			body:       []byte(`not gzip`),
			encoding:   "gzip",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(testCase.body))
			if testCase.encoding != "" {
				request.Header.Set("Content-Encoding", testCase.encoding)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, testCase.wantStatus, recorder.Code)
			if testCase.wantBody != "" {
				assert.Equal(t, testCase.wantBody, recorder.Body.String())
			}
		})
	}
}

func TestGzipResponse(t *testing.T) {
	handler := GzipResponse(http.HandlerFunc(func(res http.ResponseWriter, _ *http.Request) {
		res.WriteHeader(http.StatusCreated)
		_, _ = res.Write([]byte(strings.Repeat("sanasto ", 100)))
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Accept-Encoding", "gzip")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "gzip", recorder.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(recorder.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("sanasto ", 100), string(body))
}

func TestGzipResponseSkipsClientsWithoutGzip(t *testing.T) {
	handler := GzipResponse(http.HandlerFunc(func(res http.ResponseWriter, _ *http.Request) {
		_, _ = res.Write([]byte("plain"))
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, recorder.Header().Get("Content-Encoding"))
	assert.Equal(t, "plain", recorder.Body.String())
}

func TestResponseWriterFlushes(t *testing.T) {
	recorder := httptest.NewRecorder()
	writer := NewResponseWriter(recorder)

	_, err := writer.Write([]byte("data: first\n\n"))
	require.NoError(t, err)
	writer.Flush()

	assert.True(t, recorder.Flushed)

	zr, err := gzip.NewReader(bytes.NewReader(recorder.Body.Bytes()))
	require.NoError(t, err)
	chunk := make([]byte, len("data: first\n\n"))
	_, err = io.ReadFull(zr, chunk)
	require.NoError(t, err)
	assert.Equal(t, "data: first\n\n", string(chunk))

	require.NoError(t, writer.Close())
}
