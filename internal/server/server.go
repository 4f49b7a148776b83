package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/podvid/podvid/internal/config"
	"github.com/podvid/podvid/internal/tasks"
	"github.com/podvid/podvid/internal/types"
)

// Server exposes the task API. Every endpoint is non-blocking: rendering
// happens in the runner's goroutines, never on the request path.
type Server struct {
	reg *tasks.Registry
	run *tasks.Runner
	cfg config.Config
	log zerolog.Logger
}

func New(reg *tasks.Registry, run *tasks.Runner, cfg config.Config, log zerolog.Logger) *Server {
	return &Server{reg: reg, run: run, cfg: cfg, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/videos", s.handleCreate)
	mux.HandleFunc("GET /api/v1/videos/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/v1/videos/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/v1/videos/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /api/v1/videos/{id}/subtitle", s.handleSubtitle)
	mux.HandleFunc("GET /api/v1/download", s.handleDownloadByName)
	mux.HandleFunc("DELETE /api/v1/files/{filename}", s.handleDeleteFiles)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("request")
	})
}

type createRequest struct {
	ScriptID            string `json:"script_id"`
	VideoFormat         string `json:"video_format"`
	SkipImageGeneration bool   `json:"skip_image_generation"`
	MaxLines            int    `json:"max_lines"`
	BurnSubtitles       bool   `json:"burn_subtitles"`
}

type createResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

type statusResponse struct {
	TaskID      string   `json:"task_id"`
	Status      string   `json:"status"`
	Progress    int      `json:"progress"`
	Message     string   `json:"message,omitempty"`
	Error       string   `json:"error,omitempty"`
	FailedStage string   `json:"failed_stage,omitempty"`
	VideoURL    string   `json:"video_url,omitempty"`
	SubtitleURL string   `json:"subtitle_url,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ScriptID) == "" {
		writeError(w, http.StatusBadRequest, "script_id is required")
		return
	}
	if req.MaxLines < 0 {
		writeError(w, http.StatusBadRequest, "max_lines must be >= 0")
		return
	}
	if _, err := types.ParseGeometry(req.VideoFormat); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := s.run.Launch(tasks.Request{
		ScriptID:            req.ScriptID,
		VideoFormat:         req.VideoFormat,
		MaxLines:            req.MaxLines,
		BurnSubtitles:       req.BurnSubtitles,
		SkipImageGeneration: req.SkipImageGeneration,
	})
	writeJSON(w, http.StatusAccepted, createResponse{TaskID: t.ID, Message: "video creation started"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.reg.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	resp := statusResponse{
		TaskID:      t.ID,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Message:     t.Message,
		Error:       t.Error,
		FailedStage: t.FailedStage,
		Warnings:    t.Warnings,
	}
	if t.Status == tasks.StatusDone {
		if t.VideoPath != "" {
			resp.VideoURL = fmt.Sprintf("/api/v1/videos/%s/download", t.ID)
		}
		if t.SubtitlePath != "" {
			resp.SubtitleURL = fmt.Sprintf("/api/v1/videos/%s/subtitle", t.ID)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.reg.Get(id); !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !s.reg.Cancel(id) {
		writeError(w, http.StatusConflict, "task already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cancellation requested"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(t tasks.Task) string { return t.VideoPath }, "video/mp4")
}

func (s *Server) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(t tasks.Task) string { return t.SubtitlePath }, "text/plain; charset=utf-8")
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, pathOf func(tasks.Task) string, contentType string) {
	t, ok := s.reg.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if t.Status != tasks.StatusDone {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("artifact not ready, current status: %s", t.Status))
		return
	}
	path := pathOf(t)
	if path == "" {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *Server) handleDownloadByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	if !safeFilename(name) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(s.cfg.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// handleDeleteFiles removes a finished artifact and its subtitle document.
func (s *Server) handleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !safeFilename(name) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	var deleted []string
	var errs []string
	videoPath := filepath.Join(s.cfg.OutputDir, name)
	if _, err := os.Stat(videoPath); err == nil {
		if err := os.Remove(videoPath); err != nil {
			errs = append(errs, fmt.Sprintf("delete video: %v", err))
		} else {
			deleted = append(deleted, name)
		}
	}
	srtName := strings.TrimSuffix(name, filepath.Ext(name)) + ".srt"
	srtPath := filepath.Join(s.cfg.OutputDir, srtName)
	if _, err := os.Stat(srtPath); err == nil {
		if err := os.Remove(srtPath); err != nil {
			errs = append(errs, fmt.Sprintf("delete subtitle: %v", err))
		} else {
			deleted = append(deleted, srtName)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "cleanup completed",
		"deleted": deleted,
		"errors":  errs,
	})
}

// safeFilename rejects anything that could escape the output directory.
func safeFilename(name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
