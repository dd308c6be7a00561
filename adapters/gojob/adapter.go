package gojob

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-blueledger/adapters/gologger"
	"github.com/goliatone/go-blueledger/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDChainReconcile      = "blueledger.chain.reconcile"
	ScriptPathChainReconcile = "blueledger/chain/reconcile"

	ParamBatchSize = "batch_size"
	ParamAttempt   = "attempt"

	dedupPolicyDrop = job.DeduplicationPolicy("drop")
)

// ChainReconciler is the ledger operation a reconcile job runs.
type ChainReconciler interface {
	ReconcileChain(ctx context.Context, batchSize int) (core.ReconcileStats, error)
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DelayFor doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		if delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewReconcileMessage builds the queue message for one reconcile pass. A zero
// batch size lets the ledger use its configured default.
func NewReconcileMessage(batchSize int, idempotencyKey string) *job.ExecutionMessage {
	msg := &job.ExecutionMessage{
		JobID:      JobIDChainReconcile,
		ScriptPath: ScriptPathChainReconcile,
		Parameters: map[string]any{
			ParamBatchSize: batchSize,
			ParamAttempt:   1,
		},
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		msg.IdempotencyKey = key
		msg.DedupPolicy = dedupPolicyDrop
	}
	return msg
}

type ReconcileScheduler struct {
	enqueuer queue.Enqueuer
}

func NewReconcileScheduler(enqueuer queue.Enqueuer) *ReconcileScheduler {
	return &ReconcileScheduler{enqueuer: enqueuer}
}

func (s *ReconcileScheduler) Schedule(ctx context.Context, batchSize int, idempotencyKey string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if batchSize < 0 {
		return fmt.Errorf("gojob: batch size must be >= 0")
	}
	return s.enqueuer.Enqueue(ctx, NewReconcileMessage(batchSize, idempotencyKey))
}

type WorkerOption func(*ReconcileWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *ReconcileWorker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *ReconcileWorker) {
		w.hook = hook
	}
}

func WithLogger(provider glog.LoggerProvider, logger glog.Logger) WorkerOption {
	return func(w *ReconcileWorker) {
		_, resolved := gologger.Resolve("blueledger.gojob", provider, logger)
		w.logger = glog.Ensure(resolved)
	}
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *ReconcileWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// ReconcileWorker pulls reconcile jobs from a queue and runs them against the
// ledger, acking on success and nacking with bounded backoff on failure.
type ReconcileWorker struct {
	reconciler ChainReconciler
	dequeuer   queue.Dequeuer
	policy     RetryPolicy
	hook       worker.Hook
	logger     glog.Logger
	now        func() time.Time
}

func NewReconcileWorker(reconciler ChainReconciler, dequeuer queue.Dequeuer, opts ...WorkerOption) (*ReconcileWorker, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("gojob: chain reconciler is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	w := &ReconcileWorker{
		reconciler: reconciler,
		dequeuer:   dequeuer,
		policy: RetryPolicy{
			MaxAttempts:     5,
			BaseDelay:       2 * time.Second,
			MaxDelay:        5 * time.Minute,
			DeadLetterOnMax: true,
		},
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// ProcessNext dequeues one delivery and handles it.
func (w *ReconcileWorker) ProcessNext(ctx context.Context) (core.ReconcileStats, error) {
	if w == nil || w.dequeuer == nil {
		return core.ReconcileStats{}, fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return core.ReconcileStats{}, err
	}
	return w.Handle(ctx, delivery)
}

func (w *ReconcileWorker) Handle(ctx context.Context, delivery queue.Delivery) (core.ReconcileStats, error) {
	if w == nil || w.reconciler == nil {
		return core.ReconcileStats{}, fmt.Errorf("gojob: worker is not configured")
	}
	if delivery == nil {
		return core.ReconcileStats{}, fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDChainReconcile {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		err := fmt.Errorf("gojob: unsupported job %q", jobID)
		if nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return core.ReconcileStats{}, nackErr
		}
		return core.ReconcileStats{}, err
	}

	batchSize, err := intParam(msg.Parameters, ParamBatchSize, 0)
	if err != nil || batchSize < 0 {
		if err == nil {
			err = fmt.Errorf("gojob: batch size must be >= 0")
		}
		if nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return core.ReconcileStats{}, nackErr
		}
		return core.ReconcileStats{}, err
	}
	attempt, err := intParam(msg.Parameters, ParamAttempt, 1)
	if err != nil || attempt < 1 {
		attempt = 1
	}

	startedAt := w.now()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	w.onStart(ctx, event)

	stats, runErr := w.reconciler.ReconcileChain(ctx, batchSize)
	event.Duration = w.now().Sub(startedAt)
	if runErr == nil {
		if err := delivery.Ack(ctx); err != nil {
			return stats, err
		}
		w.onSuccess(ctx, event)
		w.logger.Info("chain reconcile job completed",
			"attempt", attempt,
			"claimed", stats.Claimed,
			"submitted", stats.Submitted,
			"retried", stats.Retried,
			"failed", stats.Failed,
		)
		return stats, nil
	}

	nack := w.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.policy.DelayFor(attempt),
		Requeue: true,
		Reason:  runErr.Error(),
	}, attempt)
	event.Err = runErr
	event.Delay = nack.Delay
	if nack.Requeue {
		msg.Parameters = withParam(msg.Parameters, ParamAttempt, attempt+1)
		w.onRetry(ctx, event)
	} else {
		w.onFailure(ctx, event)
	}
	w.logger.Warn("chain reconcile job failed",
		"attempt", attempt,
		"requeue", nack.Requeue,
		"dead_letter", nack.DeadLetter,
		"error", runErr,
	)
	if err := delivery.Nack(ctx, nack); err != nil {
		return stats, err
	}
	return stats, runErr
}

func (w *ReconcileWorker) onStart(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *ReconcileWorker) onSuccess(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *ReconcileWorker) onFailure(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *ReconcileWorker) onRetry(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

func intParam(params map[string]any, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch value := raw.(type) {
	case int:
		return value, nil
	case int32:
		return int(value), nil
	case int64:
		return int(value), nil
	case float64:
		if value != math.Trunc(value) {
			return 0, fmt.Errorf("gojob: %s must be an integer", key)
		}
		return int(value), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("gojob: %s must be an integer", key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("gojob: %s has unsupported type %T", key, raw)
	}
}

func withParam(params map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[key] = value
	return out
}

var _ worker.Hook = (*LoggingHook)(nil)

// LoggingHook writes go-job worker lifecycle events to a glog logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("job scheduled for retry", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	jobID := ""
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		jobID = message.JobID
	}
	fields := []any{"job_id", jobID, "attempt", event.Attempt}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var _ ChainReconciler = (*core.Service)(nil)
