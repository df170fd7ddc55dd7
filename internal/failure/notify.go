package failure

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Queue.Notify when the worker is behind.
var ErrQueueFull = errors.New("alert queue full")

// Alert is raised the first time a fingerprint is seen inside the dedupe
// window.
type Alert struct {
	Fingerprint    string         `json:"fingerprint"`
	Classification Classification `json:"classification"`
	Action         Action         `json:"action"`
	Operation      string         `json:"operation"`
	Source         string         `json:"source"`
	Message        string         `json:"message"`
	Occurrences    int            `json:"occurrences"`
	At             time.Time      `json:"at"`
}

// Notifier delivers alerts to operators.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a logger; escalations at error level.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	level := slog.LevelWarn
	if a.Action == ActionEscalate || a.Action == ActionCircuitBreak {
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "failure alert",
		"fingerprint", a.Fingerprint,
		"classification", a.Classification.String(),
		"action", a.Action,
		"operation", a.Operation,
		"source", a.Source,
		"occurrences", a.Occurrences,
		"error", a.Message,
	)
	return nil
}

// AlertLog keeps every alert in memory, append-only.
type AlertLog struct {
	mu     sync.RWMutex
	alerts []Alert
}

func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

func (l *AlertLog) Notify(_ context.Context, a Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, a)
	return nil
}

func (l *AlertLog) List() []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// Queue hands alerts to a background Worker so slow sinks never block
// ingestion. A full queue drops the alert and reports ErrQueueFull.
type Queue struct {
	inbox chan Alert
}

func NewQueue(size int) *Queue {
	return &Queue{inbox: make(chan Alert, max(size, 1))}
}

func (q *Queue) Notify(_ context.Context, a Alert) error {
	select {
	case q.inbox <- a:
		return nil
	default:
		return ErrQueueFull
	}
}

// Worker drains a Queue into a sink.
type Worker struct {
	sink   Notifier
	inbox  <-chan Alert
	logger *slog.Logger
}

func NewWorker(q *Queue, sink Notifier, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: q.inbox, logger: logger}
}

// Run delivers alerts until ctx is done. Sink errors are logged and the
// alert is dropped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-w.inbox:
			if err := w.sink.Notify(ctx, a); err != nil {
				w.logger.WarnContext(ctx, "alert delivery failed", "fingerprint", a.Fingerprint, "error", err)
			}
		}
	}
}
