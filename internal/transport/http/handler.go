package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/failure"
	"ehs/internal/pipeline"
	"ehs/internal/ratelimit"
	ratelimitmodels "ehs/internal/ratelimit/models"
	"ehs/pkg/platform/circuit"
	"ehs/pkg/platform/httputil"
	"ehs/pkg/platform/sentinel"
	"ehs/pkg/requestcontext"
)

// Processor ingests one raw record or applies a correction to a stored one.
type Processor interface {
	ProcessRecord(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error)
	CorrectRecord(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error)
	Pending() []domain.RecordKey
	ReconcilePending(ctx context.Context) []failure.RecoveryResult
}

// Circuits exposes breaker state for operators.
type Circuits interface {
	Stats() []circuit.Stats
	Reset(name string) bool
}

// Limiters exposes rate limiter state for operators.
type Limiters interface {
	Statuses(ctx context.Context) ([]ratelimitmodels.LimiterStatus, error)
}

// Reporter builds the error report.
type Reporter interface {
	Report(now time.Time) failure.Report
}

// Handler is the thin HTTP layer over the ingestion pipeline. It translates
// classified errors to status codes and holds no business logic.
type Handler struct {
	processor Processor
	circuits  Circuits
	limiters  Limiters
	reporter  Reporter
	logger    *slog.Logger
}

// New constructs a handler. Circuits and limiters are optional; their
// endpoints return empty lists without them.
func New(processor Processor, reporter Reporter, circuits Circuits, limiters Limiters, logger *slog.Logger) (*Handler, error) {
	if processor == nil {
		return nil, errors.New("record processor is required")
	}
	if reporter == nil {
		return nil, errors.New("error reporter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: processor,
		circuits:  circuits,
		limiters:  limiters,
		reporter:  reporter,
		logger:    logger,
	}, nil
}

// Register mounts the ingestion and operator endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records", h.HandleIngest)
	r.Put("/records", h.HandleCorrect)
	r.Get("/records/pending", h.HandlePending)
	r.Post("/records/reconcile", h.HandleReconcile)

	r.Get("/circuits", h.HandleCircuits)
	r.Post("/circuits/{name}/reset", h.HandleResetCircuit)
	r.Get("/ratelimits", h.HandleRateLimits)
	r.Get("/errors/report", h.HandleErrorReport)
}

// IngestResponse is returned by POST /records.
type IngestResponse struct {
	Outcome models.Outcome `json:"outcome"`
	Record  *models.Record `json:"record"`
}

// HandleIngest handles POST /records.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, ok := httputil.Decode[domain.RawRecord](w, r, h.logger)
	if !ok {
		return
	}

	rec, outcome, err := h.processor.ProcessRecord(ctx, raw)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	status := http.StatusOK
	if outcome == models.OutcomeCreated {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, IngestResponse{Outcome: outcome, Record: rec})
}

// HandleCorrect handles PUT /records: an operator correction of a record that
// already exists. The record's offender link is never changed.
func (h *Handler) HandleCorrect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, ok := httputil.Decode[domain.RawRecord](w, r, h.logger)
	if !ok {
		return
	}

	rec, outcome, err := h.processor.CorrectRecord(ctx, raw)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IngestResponse{Outcome: outcome, Record: rec})
}

// HandlePending handles GET /records/pending.
func (h *Handler) HandlePending(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pending": h.processor.Pending()})
}

// HandleReconcile handles POST /records/reconcile.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	results := h.processor.ReconcilePending(r.Context())
	succeeded := 0
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		}
	}
	h.logger.InfoContext(r.Context(), "reconciled pending records",
		"request_id", requestcontext.RequestID(r.Context()),
		"attempted", len(results),
		"succeeded", succeeded,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"succeeded": succeeded,
		"remaining": len(h.processor.Pending()),
	})
}

// HandleCircuits handles GET /circuits.
func (h *Handler) HandleCircuits(w http.ResponseWriter, _ *http.Request) {
	stats := []circuit.Stats{}
	if h.circuits != nil {
		stats = h.circuits.Stats()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"circuits": stats})
}

// HandleResetCircuit handles POST /circuits/{name}/reset.
func (h *Handler) HandleResetCircuit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.circuits == nil || !h.circuits.Reset(name) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "unknown circuit "+strconv.Quote(name))
		return
	}
	h.logger.WarnContext(r.Context(), "circuit reset by operator",
		"request_id", requestcontext.RequestID(r.Context()),
		"client_ip", requestcontext.ClientIP(r.Context()),
		"circuit", name,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRateLimits handles GET /ratelimits.
func (h *Handler) HandleRateLimits(w http.ResponseWriter, r *http.Request) {
	statuses := []ratelimitmodels.LimiterStatus{}
	if h.limiters != nil {
		var err error
		statuses, err = h.limiters.Statuses(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "reading limiter status failed", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"limiters": statuses})
}

// HandleErrorReport handles GET /errors/report.
func (h *Handler) HandleErrorReport(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.reporter.Report(requestcontext.Now(r.Context())))
}

// writeFailure maps a pipeline error to a response.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "record ingestion failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"status", status,
			"error", err,
		)
	}
	if retryAfter, ok := retryAfterFor(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	httputil.WriteError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	var ce *failure.ClassifiedError
	if !errors.As(err, &ce) {
		switch {
		case domain.IsValidation(err):
			return http.StatusBadRequest, httputil.CodeValidation
		case errors.Is(err, sentinel.ErrNotFound):
			return http.StatusNotFound, httputil.CodeNotFound
		case errors.Is(err, pipeline.ErrCorrectionsDisabled):
			return http.StatusServiceUnavailable, httputil.CodeUnavailable
		}
		return http.StatusInternalServerError, httputil.CodeInternal
	}
	switch {
	case ce.Classification.Kind == failure.KindValidation:
		return http.StatusBadRequest, httputil.CodeValidation
	case ce.Classification.Kind == failure.KindBusiness,
		ce.Classification.Subkind == failure.SubConstraintViolation:
		return http.StatusConflict, httputil.CodeConflict
	case ce.Classification.Subkind == failure.SubRateLimited:
		return http.StatusTooManyRequests, httputil.CodeTooManyRequests
	case ce.Classification.Subkind == failure.SubCancelled:
		return http.StatusServiceUnavailable, httputil.CodeUnavailable
	case ce.Action == failure.ActionRetry, ce.Action == failure.ActionCircuitBreak,
		ce.Action == failure.ActionDegrade:
		return http.StatusServiceUnavailable, httputil.CodeUnavailable
	}
	return http.StatusInternalServerError, httputil.CodeInternal
}

func retryAfterFor(err error) (time.Duration, bool) {
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) && limitErr.RetryAfter > 0 {
		return limitErr.RetryAfter, true
	}
	var openErr *circuit.OpenError
	if errors.As(err, &openErr) && openErr.RetryAfter > 0 {
		return openErr.RetryAfter, true
	}
	return 0, false
}
