package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"chatdigest/internal/pipeline"
	"chatdigest/internal/storage"
	"chatdigest/internal/summarize"
)

// DigestRunner runs one digest. *pipeline.Runner implements it.
type DigestRunner interface {
	Run(ctx context.Context, w pipeline.Window, opts pipeline.Options) (*pipeline.Result, error)
}

// RunStore reads the run ledger. *storage.DB implements it.
type RunStore interface {
	ListRuns(limit int) ([]*storage.Run, error)
	GetRun(id string) (*storage.Run, error)
}

// DigestHandler serves digest triggers and the run ledger.
type DigestHandler struct {
	runner   DigestRunner
	runs     RunStore
	location *time.Location
}

// NewDigestHandler creates a DigestHandler. loc resolves "date" requests.
func NewDigestHandler(runner DigestRunner, runs RunStore, loc *time.Location) *DigestHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DigestHandler{runner: runner, runs: runs, location: loc}
}

// RegisterRoutes registers digest routes on the router.
func (h *DigestHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/digests", h.HandleCreateDigest).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/runs", h.HandleListRuns).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/runs/{id}", h.HandleGetRun).Methods(http.MethodGet)
}

// DigestRequest selects the window of a triggered digest: either Date
// (YYYY-MM-DD, a whole day) or Start and End.
type DigestRequest struct {
	Date   string    `json:"date,omitempty"`
	Start  time.Time `json:"start,omitempty"`
	End    time.Time `json:"end,omitempty"`
	DryRun bool      `json:"dry_run,omitempty"`
	Budget int       `json:"budget,omitempty"`
}

// DigestFailure is returned when a run fails after it started.
type DigestFailure struct {
	Error  ErrorDetail      `json:"error"`
	Result *pipeline.Result `json:"result,omitempty"`
}

func (h *DigestHandler) window(req DigestRequest) (pipeline.Window, error) {
	if req.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", req.Date, h.location)
		if err != nil {
			return pipeline.Window{}, err
		}
		return pipeline.DayWindow(day, h.location), nil
	}
	w := pipeline.Window{Start: req.Start, End: req.End}
	return w, w.Validate()
}

// HandleCreateDigest handles POST /api/v1/digests.
func (h *DigestHandler) HandleCreateDigest(w http.ResponseWriter, r *http.Request) {
	var req DigestRequest
	if err := DecodeJSON(r, &req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if req.Budget < 0 {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "budget must not be negative")
		return
	}
	win, err := h.window(req)
	if err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	res, err := h.runner.Run(r.Context(), win, pipeline.Options{DryRun: req.DryRun, Budget: req.Budget})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, summarize.ErrInputTooLarge) {
			status = http.StatusUnprocessableEntity
		}
		SendJSON(w, status, DigestFailure{
			Error:  ErrorDetail{Code: ErrCodeDigestFailed, Message: err.Error()},
			Result: res,
		})
		return
	}
	SendJSON(w, http.StatusOK, res)
}

// HandleListRuns handles GET /api/v1/runs?limit=n.
func (h *DigestHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(limit)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	SendJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// HandleGetRun handles GET /api/v1/runs/{id}.
func (h *DigestHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.runs.GetRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "run not found: "+id)
		return
	}
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, run)
}
