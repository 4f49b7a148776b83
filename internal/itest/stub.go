//go:build integration

package itest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// scriptStub serves a fixed script with real wav fixtures, standing in for
// the script backend.
type scriptStub struct {
	mu       sync.Mutex
	audio    map[string]string // audio ref -> wav path on disk
	statuses []string
}

func (s *scriptStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /manager/lesson-manager/scripts/{id}/all-lines", func(w http.ResponseWriter, r *http.Request) {
		type line struct {
			ID        string `json:"id"`
			Character any    `json:"character"`
			Content   string `json:"content"`
			AudioPath string `json:"audioPath"`
		}
		char := func(name string) any {
			return map[string]string{"id": name, "name": name, "gender": "FEMALE"}
		}
		resp := map[string]any{"data": []line{
			{ID: "l1", Character: char("Ann"), Content: "Welcome to the show.", AudioPath: "fixtures/a1.wav"},
			{ID: "l2", Character: char("Bob"), Content: "Glad to be here.", AudioPath: "fixtures/a2.wav"},
			{ID: "l3", Character: char("Ann"), Content: "Let's begin.", AudioPath: "fixtures/a3.wav"},
		}}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /manager/media/download-by-path", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		path, ok := s.audio[r.URL.Query().Get("filePath")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	})
	mux.HandleFunc("PUT /manager/lesson-manager/scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.statuses = append(s.statuses, r.PathValue("id"))
		s.mu.Unlock()
		w.Write([]byte("{}"))
	})
	return mux
}

func newScriptStub(t *testing.T, audio map[string]string) (*scriptStub, *httptest.Server) {
	t.Helper()
	stub := &scriptStub{audio: audio}
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	return stub, srv
}

// silenceWav synthesizes a wav fixture of the given length in seconds.
func silenceWav(t *testing.T, dir, name string, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono",
		"-t", fmt.Sprintf("%.2f", seconds),
		path,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("wav fixture failed: %v\n%s", err, string(b))
	}
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		t.Fatalf("wav fixture empty: %v", err)
	}
	return path
}
