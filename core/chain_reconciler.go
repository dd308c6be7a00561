package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type ChainReconcilerConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ClaimTTL bounds how long a claimed transaction stays hidden from other
	// reconcilers before its submission outcome is recorded.
	ClaimTTL time.Duration
}

func DefaultChainReconcilerConfig() ChainReconcilerConfig {
	return ChainReconcilerConfig{
		BatchSize:      defaultChainBatchSize,
		MaxAttempts:    defaultChainMaxAttempts,
		InitialBackoff: defaultChainBackoff,
		MaxBackoff:     defaultChainMaxBackoff,
		ClaimTTL:       defaultChainClaimTTL,
	}
}

func (c ChainReconcilerConfig) normalized() ChainReconcilerConfig {
	defaults := DefaultChainReconcilerConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = defaults.ClaimTTL
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// BackoffAfter returns the delay before the attempt following attempt.
func (c ChainReconcilerConfig) BackoffAfter(attempt int) time.Duration {
	c = c.normalized()
	if attempt < 1 {
		attempt = 1
	}
	next := time.Duration(float64(c.InitialBackoff) * math.Pow(2, float64(attempt-1)))
	if next <= 0 || next > c.MaxBackoff {
		return c.MaxBackoff
	}
	return next
}

// ChainReconciler resubmits ledger transactions whose chain submission has
// not succeeded yet. The ledger itself is never touched beyond the chain
// status fields.
type ChainReconciler struct {
	store   LedgerStore
	adapter ChainAdapter
	config  ChainReconcilerConfig
	now     func() time.Time
}

func NewChainReconciler(store LedgerStore, adapter ChainAdapter, config ChainReconcilerConfig) (*ChainReconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("core: ledger store is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("core: chain adapter is required")
	}
	return &ChainReconciler{
		store:   store,
		adapter: adapter,
		config:  config.normalized(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (r *ChainReconciler) ReconcilePending(ctx context.Context, batchSize int) (ReconcileStats, error) {
	if r == nil || r.store == nil || r.adapter == nil {
		return ReconcileStats{}, fmt.Errorf("core: chain reconciler is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = r.config.BatchSize
	}
	pending, err := r.store.ListPendingChainTransactions(ctx, r.now(), limit)
	if err != nil {
		return ReconcileStats{}, err
	}

	stats := ReconcileStats{}
	var reconcileErr error
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return stats, joinErrors(reconcileErr, err)
		}
		now := r.now()
		claimed, err := r.store.ClaimChainTransaction(ctx, ChainClaim{
			TransactionID: tx.ID,
			Attempts:      tx.ChainAttempts,
			Now:           now,
			LeaseUntil:    now.Add(r.config.ClaimTTL),
		})
		if err != nil {
			reconcileErr = joinErrors(reconcileErr, err)
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}
		stats.Claimed++

		result := r.submit(ctx, tx)
		if err := r.store.RecordChainResult(ctx, result); err != nil {
			if errors.Is(err, ErrChainResultStale) {
				stats.Skipped++
				continue
			}
			reconcileErr = joinErrors(reconcileErr, err)
			continue
		}
		switch result.Status {
		case ChainStatusSubmitted:
			stats.Submitted++
		case ChainStatusFailed:
			stats.Failed++
		default:
			stats.Retried++
		}
	}
	return stats, reconcileErr
}

func (r *ChainReconciler) submit(ctx context.Context, tx LedgerTransaction) ChainResult {
	evidence := ""
	if tx.Kind == TransactionKindMint {
		if lot, err := r.store.GetLot(ctx, tx.TokenID); err == nil {
			evidence = lot.EvidenceReference
		}
	}
	ref, err := r.adapter.Submit(ctx, chainOperationFor(tx, evidence))
	return r.outcome(tx.ID, tx.ChainAttempts+1, ref, err)
}

// outcome builds the ChainResult for attempt number attempt.
func (r *ChainReconciler) outcome(transactionID string, attempt int, ref string, err error) ChainResult {
	now := r.now()
	result := ChainResult{
		TransactionID: strings.TrimSpace(transactionID),
		Attempts:      attempt,
		RecordedAt:    now,
	}
	if err == nil && strings.TrimSpace(ref) != "" {
		result.Status = ChainStatusSubmitted
		result.TxRef = strings.TrimSpace(ref)
		return result
	}
	if err == nil {
		err = fmt.Errorf("core: chain adapter returned an empty reference")
	}
	result.LastError = err.Error()
	if attempt >= r.config.MaxAttempts {
		result.Status = ChainStatusFailed
		return result
	}
	next := now.Add(r.config.BackoffAfter(attempt))
	result.Status = ChainStatusPending
	result.NextAttemptAt = &next
	return result
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
