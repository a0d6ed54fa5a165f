// Package logger holds the process-wide zap logger and the HTTP request
// logging middleware.
package logger

import (
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// Log is a no-op until Init replaces it, so packages may log before (or
// without) the application configuring the level.
var Log = zap.NewNop().Sugar()

// Init accepts zap level names plus "warning" as an alias of "warn".
func Init(level string) error {
	if level == "warning" {
		level = "warn"
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = zl.Sugar()

	return nil
}

// Sync ignores the EINVAL that syncing a terminal's stderr reports.
func Sync() error {
	if err := Log.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}

	return nil
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (w *recordingWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.status = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	size, err := w.ResponseWriter.Write(b)
	w.size += size
	return size, err
}

// Flush keeps the session event stream working behind the middleware.
func (w *recordingWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// WithLoggingHTTPMiddleware logs every request once it has been served.
// Event streams are also logged when they open, since they may last for hours.
func WithLoggingHTTPMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if r.Header.Get("Accept") == "text/event-stream" {
			Log.Debugw("stream opened", "uri", r.RequestURI, "remote", r.RemoteAddr)
		}

		rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rw, r)

		Log.Infow(
			"request served",
			"uri", r.RequestURI,
			"method", r.Method,
			"status", rw.status,
			"duration", time.Since(start),
			"size", rw.size,
		)
	})
}
