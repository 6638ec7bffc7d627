package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prev)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantBytes  int
	}{
		{"no write defaults to 200", func(w http.ResponseWriter) {}, http.StatusOK, 0},
		{"explicit status", func(w http.ResponseWriter) { w.WriteHeader(http.StatusAccepted) }, http.StatusAccepted, 0},
		{"first status wins", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusNotFound)
			w.WriteHeader(http.StatusOK)
		}, http.StatusNotFound, 0},
		{"body counted", func(w http.ResponseWriter) {
			w.Write([]byte(`{"status":"queued"}`))
		}, http.StatusOK, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapResponseWriter(httptest.NewRecorder())
			tt.write(wrapped)

			if wrapped.Status() != tt.wantStatus {
				t.Errorf("Status() = %d, want %d", wrapped.Status(), tt.wantStatus)
			}
			if wrapped.bytes != tt.wantBytes {
				t.Errorf("bytes = %d, want %d", wrapped.bytes, tt.wantBytes)
			}
		})
	}
}

func TestResponseWriter_Unwrap(t *testing.T) {
	rr := httptest.NewRecorder()
	if wrapResponseWriter(rr).Unwrap() != rr {
		t.Error("Unwrap() should return the underlying writer")
	}
}

func TestLogging_WritesRequestLine(t *testing.T) {
	buf := captureLog(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	Logging(next).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/connections/abc/sync", nil))

	line := buf.String()
	for _, want := range []string{"POST /api/connections/abc/sync 202 2B", "[" + rr.Header().Get(RequestIDHeader) + "]"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestLogging_RequestID(t *testing.T) {
	const valid = "0f8fad5b-d9cb-469f-a165-70867728950e"

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"valid id reused", valid, true},
		{"forged id replaced", "x\nforged log line", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLog(t)

			var seen string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = RequestID(r.Context())
			})
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			Logging(next).ServeHTTP(rr, req)

			got := rr.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("header %q does not match context %q", got, seen)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("expected UUID request ID, got %q", got)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("expected %q to be reused, got %q", tt.incoming, got)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("expected %q to be replaced", tt.incoming)
			}
		})
	}
}
