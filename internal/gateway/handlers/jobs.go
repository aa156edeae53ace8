package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatdigest/internal/cron"
)

// JobScheduler is the part of *cron.Scheduler the gateway uses.
type JobScheduler interface {
	Jobs() []cron.Job
	NextRun(name string) (time.Time, bool)
	RunNow(ctx context.Context, name string, now time.Time) (*cron.ExecuteResult, error)
	RemoveJob(name string) error
}

// JobHandler exposes the scheduled digests.
type JobHandler struct {
	scheduler JobScheduler
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(scheduler JobScheduler) *JobHandler {
	return &JobHandler{scheduler: scheduler}
}

// RegisterRoutes registers job routes on the router.
func (h *JobHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/jobs", h.HandleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/jobs/{name}/run", h.HandleRunJob).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs/{name}", h.HandleRemoveJob).Methods(http.MethodDelete)
}

// JobInfo is a job with its next firing time.
type JobInfo struct {
	cron.Job
	NextRun *time.Time `json:"next_run,omitempty"`
}

// HandleListJobs handles GET /api/v1/jobs.
func (h *JobHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.scheduler.Jobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{Job: j}
		if next, ok := h.scheduler.NextRun(j.Name); ok {
			info.NextRun = &next
		}
		out = append(out, info)
	}
	SendJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// HandleRunJob handles POST /api/v1/jobs/{name}/run, firing the job now.
func (h *JobHandler) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	res, err := h.scheduler.RunNow(r.Context(), name, time.Now())
	switch {
	case errors.Is(err, cron.ErrJobNotFound):
		SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, cron.ErrJobRunning):
		SendError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case err != nil:
		body := map[string]any{
			"error": ErrorDetail{Code: ErrCodeDigestFailed, Message: err.Error()},
		}
		if res != nil {
			body["result"] = res.Result
			body["retries"] = res.Retries
		}
		SendJSON(w, http.StatusBadGateway, body)
	default:
		SendJSON(w, http.StatusOK, map[string]any{
			"window":  res.Window,
			"result":  res.Result,
			"retries": res.Retries,
		})
	}
}

// HandleRemoveJob handles DELETE /api/v1/jobs/{name}. The job stops firing
// until the next restart reloads the configuration.
func (h *JobHandler) HandleRemoveJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	err := h.scheduler.RemoveJob(name)
	switch {
	case errors.Is(err, cron.ErrJobNotFound):
		SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case err != nil:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
