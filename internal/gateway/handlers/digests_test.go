package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdigest/internal/pipeline"
	"chatdigest/internal/storage"
	"chatdigest/internal/summarize"
)

type fakeRunner struct {
	window pipeline.Window
	opts   pipeline.Options
	err    error
}

func (f *fakeRunner) Run(_ context.Context, w pipeline.Window, opts pipeline.Options) (*pipeline.Result, error) {
	f.window, f.opts = w, opts
	res := &pipeline.Result{RunID: "run-1", Window: w, Status: storage.RunSucceeded, Summary: "all quiet"}
	if f.err != nil {
		res.Status = storage.RunFailed
		res.Summary = ""
		res.Error = f.err.Error()
	}
	return res, f.err
}

type fakeRuns struct {
	runs  map[string]*storage.Run
	limit int
}

func (f *fakeRuns) ListRuns(limit int) ([]*storage.Run, error) {
	f.limit = limit
	var out []*storage.Run
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuns) GetRun(id string) (*storage.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func newDigestRouter(runner DigestRunner, runs RunStore) *mux.Router {
	router := mux.NewRouter()
	NewDigestHandler(runner, runs, time.UTC).RegisterRoutes(router)
	return router
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return w
}

func TestCreateDigestByDate(t *testing.T) {
	runner := &fakeRunner{}
	router := newDigestRouter(runner, &fakeRuns{})

	w := post(t, router, "/api/v1/digests", `{"date":"2026-03-14","dry_run":true,"budget":500}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	start := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.True(t, runner.window.Start.Equal(start))
	assert.True(t, runner.window.End.Equal(start.Add(24*time.Hour)))
	assert.True(t, runner.opts.DryRun)
	assert.Equal(t, 500, runner.opts.Budget)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "all quiet", res.Summary)
}

func TestCreateDigestByRange(t *testing.T) {
	runner := &fakeRunner{}
	router := newDigestRouter(runner, &fakeRuns{})

	w := post(t, router, "/api/v1/digests", `{"start":"2026-03-14T08:00:00Z","end":"2026-03-14T20:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 12*time.Hour, runner.window.End.Sub(runner.window.Start))
	assert.False(t, runner.opts.DryRun)
}

func TestCreateDigestBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no window", `{}`},
		{"inverted window", `{"start":"2026-03-14T20:00:00Z","end":"2026-03-14T08:00:00Z"}`},
		{"bad date", `{"date":"14/03/2026"}`},
		{"negative budget", `{"date":"2026-03-14","budget":-1}`},
		{"unknown field", `{"day":"2026-03-14"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			w := post(t, newDigestRouter(runner, &fakeRuns{}), "/api/v1/digests", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
			assert.True(t, runner.window.Start.IsZero(), "runner must not be called")
		})
	}
}

func TestCreateDigestFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"provider down", errors.New("summarize step 1: connection refused"), http.StatusBadGateway},
		{"input too large", fmt.Errorf("run: %w", &summarize.InputTooLargeError{Step: 1, PromptTokens: 9000}), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newDigestRouter(&fakeRunner{err: tt.err}, &fakeRuns{})
			w := post(t, router, "/api/v1/digests", `{"date":"2026-03-14"}`)

			assert.Equal(t, tt.status, w.Code)
			var resp DigestFailure
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, ErrCodeDigestFailed, resp.Error.Code)
			require.NotNil(t, resp.Result)
			assert.Equal(t, storage.RunFailed, resp.Result.Status)
		})
	}
}

func TestRuns(t *testing.T) {
	runs := &fakeRuns{runs: map[string]*storage.Run{
		"a": {ID: "a", Status: storage.RunSucceeded},
	}}
	router := newDigestRouter(&fakeRunner{}, runs)

	t.Run("list default limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 20, runs.limit)

		var body struct {
			Runs []storage.Run `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Runs, 1)
		assert.Equal(t, "a", body.Runs[0].ID)
	})

	t.Run("list with limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, runs.limit)
	})

	t.Run("bad limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=zero", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/a", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var run storage.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
		assert.Equal(t, storage.RunSucceeded, run.Status)
	})

	t.Run("get missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/zzz", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
