// Package bulk executes administrative operations against sets of
// target users.
//
// Exactly one submission runs at a time; a second Execute while one
// is in flight fails with labdojo.ErrOperationInFlight before any
// side effect. Per-item failures are collected and never halt the
// remaining targets; only a transport-level rejection of the whole
// request surfaces as a top-level error.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/audit"
	"github.com/labdojo/labdojo-go/metrics"
)

// ItemOutcome is one per-target result reported by a Backend.
type ItemOutcome struct {
	UserID string
	Err    error // nil on success
}

// Backend defines the contract for pluggable bulk operation backends.
// Implementations may batch the whole request into one call or
// iterate per target; the executor only observes the outcome stream.
type Backend interface {
	// Submit runs the operation, invoking report exactly once per
	// target as outcomes arrive. A returned error means the whole
	// request was rejected before per-item processing.
	Submit(ctx context.Context, req labdojo.BulkRequest, report func(ItemOutcome)) error
}

// ProgressFunc receives monotonic progress snapshots during a run.
type ProgressFunc func(labdojo.BulkProgress)

// Executor implements labdojo.BulkExecutor.
type Executor struct {
	backend    Backend
	logger     *slog.Logger
	metrics    *metrics.Metrics
	auditor    *audit.Logger
	onProgress ProgressFunc

	mu       sync.Mutex
	inFlight bool
	progress labdojo.BulkProgress
	hasRun   bool
	result   *labdojo.BulkResult
}

// compile-time check
var _ labdojo.BulkExecutor = (*Executor)(nil)

// Option configures the Executor.
type Option func(*Executor)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithAudit attaches an audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(e *Executor) { e.auditor = a }
}

// WithProgress registers a callback for progress snapshots.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Executor) { e.onProgress = fn }
}

// New creates a bulk executor with the given backend.
func New(backend Backend, opts ...Option) *Executor {
	e := &Executor{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Validate checks the request preconditions without touching the
// network, returning the normalized request with duplicate targets
// removed.
func Validate(req labdojo.BulkRequest) (labdojo.BulkRequest, error) {
	switch req.Operation {
	case labdojo.OpActivate, labdojo.OpDeactivate:
	case labdojo.OpRoleChange:
		if req.Role == "" {
			return req, fmt.Errorf("labdojo/bulk: %s requires a target role", req.Operation)
		}
	case labdojo.OpDelete:
		if strings.TrimSpace(req.Reason) == "" {
			return req, fmt.Errorf("labdojo/bulk: %s requires a reason", req.Operation)
		}
	default:
		return req, fmt.Errorf("labdojo/bulk: unknown operation %q", req.Operation)
	}

	seen := make(map[string]bool, len(req.UserIDs))
	deduped := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}
	if len(deduped) == 0 {
		return req, fmt.Errorf("labdojo/bulk: target user set cannot be empty")
	}
	req.UserIDs = deduped
	return req, nil
}

// RequiredPermission returns the permission key an actor must hold to
// perform the given operation kind.
func RequiredPermission(op labdojo.Operation) string {
	switch op {
	case labdojo.OpRoleChange:
		return "bulk_operations"
	case labdojo.OpActivate, labdojo.OpDeactivate, labdojo.OpDelete:
		return "delete_user"
	default:
		return ""
	}
}

// Execute validates and runs the request. Progress is published as
// outcomes arrive; the frozen result is returned and retrievable via
// Results until ClearResults.
func (e *Executor) Execute(ctx context.Context, req labdojo.BulkRequest) (*labdojo.BulkResult, error) {
	req, err := Validate(req)
	if err != nil {
		return nil, err
	}

	total := len(req.UserIDs)
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, fmt.Errorf("labdojo/bulk: %w", labdojo.ErrOperationInFlight)
	}
	e.inFlight = true
	e.hasRun = true
	e.result = nil
	e.progress = labdojo.BulkProgress{Total: total}
	e.mu.Unlock()

	submissionID := uuid.NewString()
	start := time.Now()
	if e.metrics != nil {
		e.metrics.RecordBulkSubmission(string(req.Operation))
	}
	e.logger.Info("bulk operation started",
		"submission_id", submissionID,
		"operation", string(req.Operation),
		"targets", total,
	)

	var (
		resMu     sync.Mutex
		succeeded []string
		failed    []labdojo.BulkFailure
	)

	report := func(out ItemOutcome) {
		resMu.Lock()
		if out.Err != nil {
			failed = append(failed, labdojo.BulkFailure{UserID: out.UserID, Error: out.Err.Error()})
		} else {
			succeeded = append(succeeded, out.UserID)
		}
		resMu.Unlock()

		e.mu.Lock()
		e.progress.Completed++
		if out.Err != nil {
			e.progress.Failed++
		}
		e.progress.Current = out.UserID
		snapshot := e.progress
		e.mu.Unlock()

		if e.metrics != nil {
			result := "success"
			if out.Err != nil {
				result = "failure"
			}
			e.metrics.RecordBulkItem(string(req.Operation), result)
		}
		if e.onProgress != nil {
			e.onProgress(snapshot)
		}
	}

	if err := e.backend.Submit(ctx, req, report); err != nil {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
		e.audit(submissionID, req, "failure", err)
		return nil, fmt.Errorf("labdojo/bulk: submit: %w", err)
	}

	result := &labdojo.BulkResult{
		SubmissionID: submissionID,
		Succeeded:    succeeded,
		Failed:       failed,
		Summary: labdojo.BulkSummary{
			SuccessfulCount: len(succeeded),
			FailedCount:     len(failed),
			SuccessRate:     float64(len(succeeded)) / float64(total) * 100,
		},
	}

	e.mu.Lock()
	e.result = result
	e.inFlight = false
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ObserveBulkDuration(time.Since(start).Seconds())
	}
	e.audit(submissionID, req, "success", nil)
	e.logger.Info("bulk operation finished",
		"submission_id", submissionID,
		"successful", len(succeeded),
		"failed", len(failed),
	)
	return result, nil
}

// InProgress reports whether a submission is currently running.
func (e *Executor) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Progress returns the latest progress snapshot. The second return is
// false before the first submission and after ClearResults.
func (e *Executor) Progress() (labdojo.BulkProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress, e.hasRun
}

// Results returns the frozen result of the last completed run.
func (e *Executor) Results() (*labdojo.BulkResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.result != nil
}

// ClearResults resets to the pre-submission state. It is a no-op
// while a submission is in flight.
func (e *Executor) ClearResults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return
	}
	e.result = nil
	e.progress = labdojo.BulkProgress{}
	e.hasRun = false
}

func (e *Executor) audit(submissionID string, req labdojo.BulkRequest, result string, err error) {
	if e.auditor == nil {
		return
	}
	event := audit.Event{
		EventID: submissionID,
		Action:  "bulk." + strings.ToLower(string(req.Operation)),
		Target:  fmt.Sprintf("%d users", len(req.UserIDs)),
		Result:  result,
		Details: req.Reason,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.auditor.Log(event)
}
