package scriptapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func linesPayload() string {
	return `{"data":[
		{"id":"l1","scriptId":"s1","character":{"id":"c1","name":"Ann","gender":"FEMALE"},"content":"hello","audioPath":"generated/a1.wav"},
		{"id":"l2","scriptId":"s1","character":{"id":"c2","name":"Bob","gender":"MALE"},"content":"hi","audioPath":"generated/a2.wav"},
		{"id":"l3","scriptId":"s1","character":{"id":"c1","name":"Ann","gender":"FEMALE"},"content":"bye","audioPath":"generated/a3.wav"}
	]}`
}

func TestLines(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/manager/lesson-manager/scripts/s1/all-lines" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(linesPayload()))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	lines, err := c.Lines(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if gotAuth != "Apikey secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, ln := range lines {
		if ln.Index != i {
			t.Fatalf("line %d has index %d", i, ln.Index)
		}
	}
	if lines[0].Character.Name != "Ann" || lines[0].Text != "hello" || lines[0].AudioRef != "generated/a1.wav" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
}

func TestLines_Limit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(linesPayload()))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	lines, err := c.Lines(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected limit to cap at 2 lines, got %d", len(lines))
	}
}

func TestDownloadAudio(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filePath"); got != "generated/a1.wav" {
			t.Errorf("filePath = %q", got)
		}
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	b, err := c.DownloadAudio(context.Background(), "generated/a1.wav")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(b) != "RIFFdata" {
		t.Fatalf("unexpected body: %q", b)
	}
}

func TestDownloadAudio_NonOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if _, err := c.DownloadAudio(context.Background(), "x.wav"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["videoUrl"] != "http://example/v.mp4" || body["status"] != "WAIT_FOR_REVIEW" {
			t.Errorf("unexpected payload: %v", body)
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	if err := c.UpdateStatus(context.Background(), "s1", "http://example/v.mp4"); err != nil {
		t.Fatalf("update status: %v", err)
	}
}
