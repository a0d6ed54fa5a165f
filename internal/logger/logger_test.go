package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAcceptsWarningAlias(t *testing.T) {
	require.NoError(t, Init("warning"))
	require.NoError(t, Init("debug"))
	assert.Error(t, Init("loud"))
}

func TestMiddlewareKeepsFlusher(t *testing.T) {
	require.NoError(t, Init("error"))

	var flushed bool
	handler := WithLoggingHTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "the logging writer should expose http.Flusher")
		w.WriteHeader(http.StatusAccepted)
		flusher.Flush()
		flushed = true
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.True(t, flushed)
	assert.True(t, recorder.Flushed)
	assert.Equal(t, http.StatusAccepted, recorder.Code)
}

func TestMiddlewareRecordsImplicitStatus(t *testing.T) {
	require.NoError(t, Init("error"))

	var recorded *recordingWriter
	handler := WithLoggingHTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded = w.(*recordingWriter)
		_, err := w.Write([]byte("pong"))
		require.NoError(t, err)
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotNil(t, recorded)
	assert.Equal(t, http.StatusOK, recorded.status)
	assert.Equal(t, 4, recorded.size)
}
