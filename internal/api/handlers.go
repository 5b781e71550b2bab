package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tryonworks/broker/internal/job"
	"github.com/tryonworks/broker/internal/tryon"
)

var startTime = time.Now()

type Handlers struct {
	runner *tryon.Runner
	store  job.JobStore
}

func NewHandlers(runner *tryon.Runner, store job.JobStore) *Handlers {
	return &Handlers{runner: runner, store: store}
}

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("Try-on broker is running"))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	pending, processing, completed, failed := h.store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"jobs": map[string]int{
			"pending":    pending,
			"processing": processing,
			"completed":  completed,
			"failed":     failed,
		},
	})
}

type TryOnRequest struct {
	ModelImg string `json:"model_img"`
	DressImg string `json:"dress_img"`
}

// StartTryOn accepts a submission and answers with the job id before
// any remote work starts; callers poll GetStatus for the outcome.
func (h *Handlers) StartTryOn(w http.ResponseWriter, r *http.Request) {
	var req TryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.ModelImg == "" || req.DressImg == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model_img and dress_img are required"})
		return
	}

	j := h.runner.StartJob(req.ModelImg, req.DressImg)

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": j.ID})
}

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	j, err := h.store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job ID not found"})
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
