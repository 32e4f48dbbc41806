package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/services"
	"docflow/internal/tracker"
)

const maxSubmitBytes = 1 << 20

// JobService is the subset of jobs.Service the handlers use.
type JobService interface {
	Registry() *jobs.Registry
	SubmitRaw(ctx context.Context, jobType string, raw json.RawMessage, opts ...jobs.SubmitOption) (*queue.Job, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
	Abort(ctx context.Context, id string) (*queue.Job, error)
}

// StatusReader reads tracker rows.
type StatusReader interface {
	Get(ctx context.Context, entityID, jobType string) (tracker.Record, error)
}

// Deps wires the handler.
type Deps struct {
	Jobs    JobService
	Tracker StatusReader
	Bus     *events.Bus
	Status  func(ctx context.Context) DaemonStatus
	Token   string
	Logger  *slog.Logger
}

type handler struct {
	jobs    JobService
	tracker StatusReader
	bus     *events.Bus
	status  func(ctx context.Context) DaemonStatus
	logger  *slog.Logger
}

// NewHandler builds the HTTP surface. A non-empty token requires bearer auth
// on every route.
func NewHandler(deps Deps) (http.Handler, error) {
	if deps.Jobs == nil {
		return nil, errors.New("api handler requires a job service")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &handler{
		jobs:    deps.Jobs,
		tracker: deps.Tracker,
		bus:     deps.Bus,
		status:  deps.Status,
		logger:  logging.NewComponentLogger(logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs/{type}", h.handleSubmit)
	mux.HandleFunc("GET /api/jobs/{type}/{id}", h.handleGet)
	mux.HandleFunc("POST /api/jobs/{type}/{id}/abort", h.handleAbort)
	mux.HandleFunc("GET /api/jobs", h.handleList)
	mux.HandleFunc("GET /api/types", h.handleTypes)
	mux.HandleFunc("GET /api/tracker/{type}/{entity...}", h.handleTracker)
	mux.HandleFunc("GET /api/events", h.handleEvents)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	return authMiddleware(strings.TrimSpace(deps.Token), mux), nil
}

func (h *handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	jobType := r.PathValue("type")
	if _, err := h.routable(jobType); err != nil {
		h.writeError(w, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	if err != nil {
		h.writeError(w, &jobs.ValidationError{Type: jobType, Field: "input", Err: err})
		return
	}
	job, err := h.jobs.SubmitRaw(r.Context(), jobType, json.RawMessage(body))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, JobResponse{Job: FromJob(job)})
}

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.lookupJob(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, JobResponse{Job: FromJob(job)})
}

func (h *handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	job, err := h.lookupJob(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	job, err = h.jobs.Abort(r.Context(), job.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, JobResponse{Job: FromJob(job)})
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter queue.ListFilter
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				h.writeError(w, services.Wrap(services.ErrValidation, "api", "list jobs", fmt.Sprintf("unknown status %q", part), nil))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.Type = strings.TrimSpace(query.Get("type"))
	filter.EntityID = strings.TrimSpace(query.Get("entity"))
	filter.ParentID = strings.TrimSpace(query.Get("parent"))
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, services.Wrap(services.ErrValidation, "api", "list jobs", "invalid limit", err))
			return
		}
		filter.Limit = limit
	}
	list, err := h.jobs.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, JobListResponse{Jobs: FromJobs(list)})
}

func (h *handler) handleTypes(w http.ResponseWriter, _ *http.Request) {
	descs := h.jobs.Registry().Types()
	out := make([]JobType, 0, len(descs))
	for _, desc := range descs {
		out = append(out, FromDescriptor(desc))
	}
	h.writeJSON(w, http.StatusOK, TypesResponse{Types: out})
}

func (h *handler) handleTracker(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		h.writeError(w, tracker.ErrNotFound)
		return
	}
	rec, err := h.tracker.Get(r.Context(), r.PathValue("entity"), r.PathValue("type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, TrackerResponse{Record: rec})
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, services.Wrap(services.ErrValidation, "api", "events", "invalid since", err))
			return
		}
		since = parsed
	}
	list, next := h.bus.Since(since)
	if list == nil {
		list = []events.Event{}
	}
	h.writeJSON(w, http.StatusOK, EventsResponse{Events: list, Next: next})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		h.writeJSON(w, http.StatusOK, DaemonStatus{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.status(r.Context()))
}

// routable returns the descriptor for a type exposed on the HTTP surface.
func (h *handler) routable(jobType string) (*jobs.Descriptor, error) {
	desc, err := h.jobs.Registry().Lookup(jobType)
	if err != nil {
		return nil, err
	}
	if !desc.Options.Router {
		return nil, &jobs.UnsupportedJobTypeError{Type: jobType}
	}
	return desc, nil
}

func (h *handler) lookupJob(r *http.Request) (*queue.Job, error) {
	jobType := r.PathValue("type")
	if _, err := h.routable(jobType); err != nil {
		return nil, err
	}
	job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if job.Type != jobType {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, r.PathValue("id"))
	}
	return job, nil
}

// statusCode maps domain errors onto HTTP status codes.
func statusCode(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, queue.ErrJobNotFound), errors.Is(err, tracker.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	}
	switch services.Kind(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindValidation, services.KindConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := statusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.Error(err),
		)
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
