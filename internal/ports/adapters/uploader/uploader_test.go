package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// uploadSink records uploads keyed by file name, mimicking a store with
// overwrite semantics.
type uploadSink struct {
	mu       sync.Mutex
	failures int
	attempts int
	objects  map[string]int
}

func (s *uploadSink) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.attempts++
		if s.attempts <= s.failures {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f.Close()
		if s.objects == nil {
			s.objects = map[string]int{}
		}
		s.objects[hdr.Filename]++
		w.Write([]byte(`{"data":{"url":"https://store/` + hdr.Filename + `"}}`))
	}
}

func artifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(path, []byte("mp4data"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestUpload_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	sink := &uploadSink{failures: 1}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	c := New(Options{
		Endpoint:   srv.URL,
		Retries:    3,
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	url, err := c.Upload(context.Background(), artifact(t))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://store/final.mp4" {
		t.Fatalf("remote url = %q", url)
	}
	if sink.attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", sink.attempts)
	}
	// one remote object regardless of the retry
	if len(sink.objects) != 1 || sink.objects["final.mp4"] != 1 {
		t.Fatalf("expected a single remote object, got %v", sink.objects)
	}
}

func TestUpload_Idempotent(t *testing.T) {
	t.Parallel()

	sink := &uploadSink{}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, Retries: 2, RetryDelay: time.Millisecond, Logger: zerolog.Nop()})
	path := artifact(t)
	for i := 0; i < 2; i++ {
		if _, err := c.Upload(context.Background(), path); err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
	}
	// same stable name both times: the store holds one object, overwritten
	if len(sink.objects) != 1 {
		t.Fatalf("expected one distinct remote object, got %d", len(sink.objects))
	}
}

func TestUpload_Exhausted(t *testing.T) {
	t.Parallel()

	sink := &uploadSink{failures: 10}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, Retries: 3, RetryDelay: time.Millisecond, Logger: zerolog.Nop()})
	if _, err := c.Upload(context.Background(), artifact(t)); err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if sink.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", sink.attempts)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	t.Parallel()

	c := New(Options{Endpoint: "http://unused", Logger: zerolog.Nop()})
	if _, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "absent.mp4")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestUpload_WallTimeBudget(t *testing.T) {
	t.Parallel()

	sink := &uploadSink{failures: 10}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	c := New(Options{
		Endpoint:   srv.URL,
		Retries:    5,
		RetryDelay: 50 * time.Millisecond,
		MaxElapsed: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	if _, err := c.Upload(context.Background(), artifact(t)); err == nil {
		t.Fatal("expected failure once the wall-time budget is spent")
	}
	if sink.attempts != 1 {
		t.Fatalf("expected a single attempt under an exhausted budget, got %d", sink.attempts)
	}
}
