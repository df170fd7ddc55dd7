package failure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultConsecutiveThreshold = 5
	defaultDedupeWindow         = 10 * time.Minute
)

// ClassifiedError is an error with its classification and chosen action.
type ClassifiedError struct {
	Classification Classification
	Action         Action
	Context        Context
	UserFacing     bool
	Fingerprint    string
	Consecutive    int
	Alerted        bool
	Err            error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Classification, e.Action, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Metrics is the subset of the metrics store the failure package records to.
type Metrics interface {
	IncClassifiedError(kind, subkind, action string)
	IncRecovery(remedy string, succeeded bool)
}

// Handler classifies errors, tracks consecutive failures per operation and
// de-duplicates alerts by fingerprint. It also keeps the journal Report is
// built from. Safe for concurrent use.
type Handler struct {
	threshold int
	window    time.Duration
	notifier  Notifier
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	consecutive map[string]int
	lastAlert   map[string]time.Time
	journal     journal
}

type HandlerOption func(*Handler)

func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) { h.notifier = n }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithConsecutiveThreshold sets how many consecutive failures of one
// operation trip circuit_break.
func WithConsecutiveThreshold(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.threshold = n
		}
	}
}

// WithDedupeWindow sets how long an alerted fingerprint stays silent.
func WithDedupeWindow(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.window = d
		}
	}
}

func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		threshold:   defaultConsecutiveThreshold,
		window:      defaultDedupeWindow,
		logger:      slog.Default(),
		now:         time.Now,
		consecutive: make(map[string]int),
		lastAlert:   make(map[string]time.Time),
		journal:     newJournal(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.notifier == nil {
		h.notifier = NewLogNotifier(h.logger)
	}
	return h
}

// Fingerprint identifies a failure site: sha256 over kind, subkind,
// operation and source.
func Fingerprint(c Classification, ectx Context) string {
	sum := sha256.Sum256([]byte(string(c.Kind) + "|" + string(c.Subkind) + "|" + ectx.Operation + "|" + ectx.Source))
	return hex.EncodeToString(sum[:])
}

// DetermineStrategy returns the action for err without recording anything.
// The consecutive-failure rule counts err as the next failure.
func (h *Handler) DetermineStrategy(err error, ectx Context) Action {
	h.mu.Lock()
	n := h.consecutive[ectx.Operation]
	h.mu.Unlock()
	c := Classify(err, ectx)
	if counts(c) {
		n++
	}
	return decide(c, ectx, n, h.threshold)
}

// Handle classifies err, records it and alerts on the first occurrence of
// its fingerprint inside the dedupe window. A nil err returns nil.
func (h *Handler) Handle(ctx context.Context, err error, ectx Context) *ClassifiedError {
	if err == nil {
		return nil
	}
	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	c := Classify(err, ectx)
	now := h.now()

	h.mu.Lock()
	if counts(c) {
		h.consecutive[ectx.Operation]++
	}
	n := h.consecutive[ectx.Operation]
	action := decide(c, ectx, n, h.threshold)
	fp := Fingerprint(c, ectx)
	occurrences := h.journal.record(fp, c, action, ectx, err, now)
	alert := alerts(c, action) && h.firstInWindow(fp, now)
	h.mu.Unlock()

	ce := &ClassifiedError{
		Classification: c,
		Action:         action,
		Context:        ectx,
		UserFacing:     c.Kind == KindValidation,
		Fingerprint:    fp,
		Consecutive:    n,
		Alerted:        alert,
		Err:            err,
	}
	if h.metrics != nil {
		h.metrics.IncClassifiedError(string(c.Kind), string(c.Subkind), string(action))
	}
	h.logger.DebugContext(ctx, "classified error",
		"operation", ectx.Operation,
		"classification", c.String(),
		"action", action,
		"consecutive", n,
		"error", err,
	)

	if alert {
		nerr := h.notifier.Notify(ctx, Alert{
			Fingerprint:    fp,
			Classification: c,
			Action:         action,
			Operation:      ectx.Operation,
			Source:         ectx.Source,
			Message:        err.Error(),
			Occurrences:    occurrences,
			At:             now,
		})
		if nerr != nil {
			h.logger.WarnContext(ctx, "notify failed", "fingerprint", fp, "error", nerr)
		}
	}
	return ce
}

// firstInWindow must be called while holding h.mu.
func (h *Handler) firstInWindow(fp string, now time.Time) bool {
	if last, ok := h.lastAlert[fp]; ok && now.Sub(last) < h.window {
		return false
	}
	h.lastAlert[fp] = now
	for k, t := range h.lastAlert {
		if now.Sub(t) >= h.window {
			delete(h.lastAlert, k)
		}
	}
	return true
}

// RecordSuccess resets the consecutive-failure count of an operation.
func (h *Handler) RecordSuccess(operation string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.consecutive, operation)
}

// Consecutive returns the current consecutive-failure count of an operation.
func (h *Handler) Consecutive(operation string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutive[operation]
}

func (h *Handler) recordRecovery(r RecoveryResult) {
	if h.metrics != nil && r.Attempted {
		h.metrics.IncRecovery(string(r.Remedy), r.Succeeded)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.journal.recovery(r)
}
