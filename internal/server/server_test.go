package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/podvid/podvid/internal/config"
	"github.com/podvid/podvid/internal/tasks"
)

type fixture struct {
	reg *tasks.Registry
	srv *httptest.Server
	cfg config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.WorkDir = t.TempDir()

	reg := tasks.NewRegistry(time.Hour, zerolog.Nop())
	run := tasks.NewRunner(reg, cfg, zerolog.Nop())
	s := New(reg, run, cfg, zerolog.Nop())

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{reg: reg, srv: srv, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Fatalf("body = %v", body)
	}
}

func TestCreate_Accepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/v1/videos", `{"script_id":"s1"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	id, _ := body["task_id"].(string)
	if id == "" {
		t.Fatalf("no task_id in %v", body)
	}
	if _, ok := f.reg.Get(id); !ok {
		t.Fatal("accepted task not registered")
	}
}

func TestCreate_Invalid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing script id", `{"script_id":"  "}`},
		{"negative max lines", `{"script_id":"s1","max_lines":-1}`},
		{"unknown video format", `{"script_id":"s1","video_format":"square"}`},
	}
	for _, tc := range cases {
		resp, _ := f.do(t, http.MethodPost, "/api/v1/videos", tc.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/videos/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task status = %d", resp.StatusCode)
	}

	id := f.reg.Create("s1", nil).ID
	f.reg.Advance(id, tasks.StatusRendering, 60, "rendering")

	resp, body := f.do(t, http.MethodGet, "/api/v1/videos/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "rendering" || body["progress"] != float64(60) {
		t.Fatalf("body = %v", body)
	}
	// artifact links only appear on completion
	if _, ok := body["video_url"]; ok {
		t.Fatal("video_url present before completion")
	}

	f.reg.Complete(id, filepath.Join(f.cfg.OutputDir, id+".mp4"), filepath.Join(f.cfg.OutputDir, id+".srt"), "", nil)
	_, body = f.do(t, http.MethodGet, "/api/v1/videos/"+id, "")
	if body["video_url"] != "/api/v1/videos/"+id+"/download" {
		t.Fatalf("video_url = %v", body["video_url"])
	}
	if body["subtitle_url"] != "/api/v1/videos/"+id+"/subtitle" {
		t.Fatalf("subtitle_url = %v", body["subtitle_url"])
	}
}

func TestDownload_NotReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.reg.Create("s1", nil).ID
	f.reg.Advance(id, tasks.StatusConcatenating, 85, "concatenating")

	resp, body := f.do(t, http.MethodGet, "/api/v1/videos/"+id+"/download", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 while running", resp.StatusCode)
	}
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "concatenating") {
		t.Fatalf("detail = %v", body["detail"])
	}
}

func TestDownload_Done(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	video := filepath.Join(f.cfg.OutputDir, "v.mp4")
	if err := os.WriteFile(video, []byte("mp4data"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	id := f.reg.Create("s1", nil).ID
	f.reg.Complete(id, video, "", "", nil)

	resp, err := http.Get(f.srv.URL + "/api/v1/videos/" + id + "/download")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "v.mp4") {
		t.Fatalf("content disposition = %q", got)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodDelete, "/api/v1/videos/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task cancel = %d", resp.StatusCode)
	}

	id := f.reg.Create("s1", func() {}).ID
	resp, _ = f.do(t, http.MethodDelete, "/api/v1/videos/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel = %d", resp.StatusCode)
	}

	f.reg.Fail(id, "fetching", os.ErrClosed)
	resp, _ = f.do(t, http.MethodDelete, "/api/v1/videos/"+id, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel of finished task = %d, want 409", resp.StatusCode)
	}
}

func TestDownloadByName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.cfg.OutputDir, "a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	resp, _ := f.do(t, http.MethodGet, "/api/v1/download?file=a.mp4", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v1/download?file=missing.mp4", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing file status = %d", resp.StatusCode)
	}

	for _, name := range []string{"..%2Fa.mp4", "..", "a%2Fb.mp4"} {
		resp, _ = f.do(t, http.MethodGet, "/api/v1/download?file="+name, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("traversal %q status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestDeleteFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	video := filepath.Join(f.cfg.OutputDir, "v.mp4")
	srt := filepath.Join(f.cfg.OutputDir, "v.srt")
	for _, p := range []string{video, srt} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	resp, body := f.do(t, http.MethodDelete, "/api/v1/files/v.mp4", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	deleted, _ := body["deleted"].([]any)
	if len(deleted) != 2 {
		t.Fatalf("deleted = %v", body["deleted"])
	}
	for _, p := range []string{video, srt} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s still present", p)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"v.mp4", "abc123.mp4"} {
		if !safeFilename(ok) {
			t.Errorf("safeFilename(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "../v.mp4", "a/b.mp4", `a\b.mp4`, "..", "v..mp4"} {
		if safeFilename(bad) {
			t.Errorf("safeFilename(%q) = true", bad)
		}
	}
}
