package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ytdlhost/ytdlhost/internal/app/orchestrator"
	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// ─── Submission ─────────────────────────────────────────────────────────────

// submitRequest is the body of POST /get_audio and /get_video.
type submitRequest struct {
	URL string `json:"url"`
	domain.FormatOptions
}

type submitResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

func (s *Server) handleSubmit(taskType domain.TaskType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if taskType == domain.TaskAudio {
			req.VideoFormat = ""
		}

		cred := credentialFrom(r.Context())
		id, err := s.orch.Submit(r.Context(), orchestrator.SubmitRequest{
			Type:    taskType,
			URL:     req.URL,
			Format:  req.FormatOptions,
			KeyName: cred.Name,
		})
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				log.Printf("[api] submit %s: %v", taskType, err)
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, submitResponse{Status: string(domain.TaskWaiting), TaskID: id})
	}
}

// ─── Status ─────────────────────────────────────────────────────────────────

type statusResponse struct {
	TaskID    string            `json:"task_id"`
	TaskType  domain.TaskType   `json:"task_type"`
	Status    domain.TaskStatus `json:"status"`
	URL       string            `json:"url"`
	Title     string            `json:"title,omitempty"`
	Duration  float64           `json:"duration,omitempty"`
	File      string            `json:"file,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.Status(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(task))
}

func toStatusResponse(t domain.Task) statusResponse {
	out := statusResponse{
		TaskID:    t.ID,
		TaskType:  t.Type,
		Status:    t.Status,
		URL:       t.URL,
		Title:     t.Title,
		Duration:  t.Duration,
		Error:     t.Error,
		CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if t.Status == domain.TaskCompleted && t.ResultFile != "" {
		out.File = "/files/" + url.PathEscape(t.ID) + "/" + url.PathEscape(filepath.Base(t.ResultFile))
	}
	return out
}

// ─── Files ──────────────────────────────────────────────────────────────────

// handleFile serves an artifact of a completed task only.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	name := chi.URLParam(r, "filename")

	task, err := s.orch.Status(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if task.Status != domain.TaskCompleted {
		writeError(w, http.StatusConflict, "task is "+string(task.Status))
		return
	}

	path, err := s.orch.Layout().FilePath(id, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// ─── Diagnostics ────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// handleQuota reports ledger usage to admin keys.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	cred := credentialFrom(r.Context())
	if !cred.HasPermission(domain.PermAdmin) {
		writeError(w, http.StatusForbidden, domain.ErrPermissionDenied.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.QuotaStats())
}
