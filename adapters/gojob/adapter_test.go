package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-blueledger/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestReconcileScheduler_EnqueuesReconcileMessage(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	scheduler := NewReconcileScheduler(enqueuer)

	if err := scheduler.Schedule(context.Background(), 25, "reconcile-2026-03-01T12:00"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDChainReconcile {
		t.Fatalf("expected reconcile job message, got %#v", enqueuer.last)
	}
	if enqueuer.last.Parameters[ParamBatchSize] != 25 {
		t.Fatalf("expected batch size parameter, got %#v", enqueuer.last.Parameters)
	}
	if enqueuer.last.IdempotencyKey != "reconcile-2026-03-01T12:00" || enqueuer.last.DedupPolicy == "" {
		t.Fatalf("expected idempotency key and dedup policy, got %#v", enqueuer.last)
	}
	if err := scheduler.Schedule(context.Background(), -1, ""); err == nil {
		t.Fatalf("expected negative batch size to be rejected")
	}
}

func TestReconcileWorker_AcksSuccessfulRun(t *testing.T) {
	reconciler := &stubReconciler{stats: core.ReconcileStats{Claimed: 3, Submitted: 3}}
	delivery := &stubQueueDelivery{msg: NewReconcileMessage(10, "")}
	hook := &capturingHook{}
	w, err := NewReconcileWorker(reconciler, &stubQueueDequeuer{delivery: delivery}, WithHook(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	stats, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if stats.Submitted != 3 || reconciler.lastBatch != 10 {
		t.Fatalf("unexpected stats %#v batch=%d", stats, reconciler.lastBatch)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack without nack")
	}
	if hook.started != 1 || hook.succeeded != 1 {
		t.Fatalf("expected start and success hooks, got %#v", hook)
	}
}

func TestReconcileWorker_NacksWithBoundedBackoff(t *testing.T) {
	reconciler := &stubReconciler{err: errors.New("ledger store offline")}
	delivery := &stubQueueDelivery{msg: NewReconcileMessage(0, "")}
	hook := &capturingHook{}
	w, err := NewReconcileWorker(reconciler, &stubQueueDequeuer{delivery: delivery},
		WithHook(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}),
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if _, err := w.Handle(context.Background(), delivery); err == nil {
		t.Fatalf("expected reconcile failure to be returned")
	}
	if !delivery.nackOpts.Requeue || delivery.nackOpts.Delay != time.Second {
		t.Fatalf("expected requeue after 1s on first attempt, got %#v", delivery.nackOpts)
	}
	if hook.retried != 1 {
		t.Fatalf("expected retry hook, got %#v", hook)
	}
	if delivery.msg.Parameters[ParamAttempt] != 2 {
		t.Fatalf("expected attempt counter to advance, got %#v", delivery.msg.Parameters)
	}

	if _, err := w.Handle(context.Background(), delivery); err == nil {
		t.Fatalf("expected reconcile failure on second attempt")
	}
	if delivery.nackOpts.Requeue || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %#v", delivery.nackOpts)
	}
	if hook.failed != 1 {
		t.Fatalf("expected failure hook, got %#v", hook)
	}
}

func TestReconcileWorker_DeadLettersUnsupportedJobs(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other.job"}}
	w, err := NewReconcileWorker(&stubReconciler{}, &stubQueueDequeuer{delivery: delivery})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.Handle(context.Background(), delivery); err == nil {
		t.Fatalf("expected unsupported job error")
	}
	if !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected unsupported job to be dead lettered")
	}

	bad := &stubQueueDelivery{msg: &job.ExecutionMessage{
		JobID:      JobIDChainReconcile,
		Parameters: map[string]any{ParamBatchSize: "many"},
	}}
	if _, err := w.Handle(context.Background(), bad); err == nil || !bad.nackOpts.DeadLetter {
		t.Fatalf("expected malformed batch size to be dead lettered, got %v", err)
	}
}

func TestReconcileWorker_DrivesLedgerReconcile(t *testing.T) {
	chain := core.NewSimulatedChainAdapter()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, err := core.NewService(core.DefaultConfig(), core.WithChainAdapter(chain), core.WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	project, err := svc.SubmitProject(ctx, core.SubmitProjectInput{
		Name: "Kelp Bay", Location: "Tasmania", OwnerAddress: "0xowner", AreaHectares: 20, Methodology: "VM0033",
	})
	if err != nil {
		t.Fatalf("submit project: %v", err)
	}
	if _, err := svc.ApproveProject(ctx, project.ID, ""); err != nil {
		t.Fatalf("approve project: %v", err)
	}
	ingested, err := svc.IngestAttestation(ctx, core.IngestAttestationInput{
		ProjectID: project.ID, Metrics: map[string]float64{core.MetricTCO2e: 50}, EvidenceReference: "ipfs://kelp",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := svc.IssueOracleSummary(ctx, ingested.AttestationID); err != nil {
		t.Fatalf("issue summary: %v", err)
	}
	chain.FailNext(1)
	if _, err := svc.MintCredits(ctx, core.MintRequest{ProjectID: project.ID, AttestationID: ingested.AttestationID, Amount: 50}); !core.IsChainError(err) {
		t.Fatalf("expected chain error, got %v", err)
	}

	now = now.Add(time.Minute)
	delivery := &stubQueueDelivery{msg: NewReconcileMessage(0, "")}
	w, err := NewReconcileWorker(svc, &stubQueueDequeuer{delivery: delivery})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	stats, err := w.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if stats.Submitted != 1 || !delivery.acked {
		t.Fatalf("expected one submitted transaction and ack, got %#v acked=%t", stats, delivery.acked)
	}
}

func TestRetryPolicy_DelayFor(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 2 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 5 * time.Second},
		{attempt: 40, want: 5 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.DelayFor(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestNewReconcileWorker_RequiresDependencies(t *testing.T) {
	if _, err := NewReconcileWorker(nil, &stubQueueDequeuer{}); err == nil {
		t.Fatalf("expected reconciler requirement")
	}
	if _, err := NewReconcileWorker(&stubReconciler{}, nil); err == nil {
		t.Fatalf("expected dequeuer requirement")
	}
}

type stubReconciler struct {
	stats     core.ReconcileStats
	err       error
	lastBatch int
}

func (s *stubReconciler) ReconcileChain(_ context.Context, batchSize int) (core.ReconcileStats, error) {
	s.lastBatch = batchSize
	return s.stats, s.err
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	started   int
	succeeded int
	failed    int
	retried   int
}

func (h *capturingHook) OnStart(context.Context, worker.Event)   { h.started++ }
func (h *capturingHook) OnSuccess(context.Context, worker.Event) { h.succeeded++ }
func (h *capturingHook) OnFailure(context.Context, worker.Event) { h.failed++ }
func (h *capturingHook) OnRetry(context.Context, worker.Event)   { h.retried++ }
