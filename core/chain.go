package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// SimulatedChainAdapter stands in for a real chain client. References are
// derived from the transaction id so resubmitting the same operation yields
// the same reference.
type SimulatedChainAdapter struct {
	mu          sync.Mutex
	submissions map[string]ChainOperation
	failNext    int
}

func NewSimulatedChainAdapter() *SimulatedChainAdapter {
	return &SimulatedChainAdapter{submissions: map[string]ChainOperation{}}
}

// FailNext makes the next n submissions return an error.
func (a *SimulatedChainAdapter) FailNext(n int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 {
		n = 0
	}
	a.failNext = n
}

func (a *SimulatedChainAdapter) Submit(ctx context.Context, op ChainOperation) (string, error) {
	if a == nil {
		return "", fmt.Errorf("core: chain adapter is not configured")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	txID := strings.TrimSpace(op.TransactionID)
	if txID == "" {
		return "", fmt.Errorf("core: chain operation requires a transaction id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext > 0 {
		a.failNext--
		return "", fmt.Errorf("core: simulated chain unavailable")
	}
	if a.submissions == nil {
		a.submissions = map[string]ChainOperation{}
	}
	a.submissions[txID] = op
	return SimulatedChainTxRef(txID), nil
}

// Submissions returns the number of distinct transactions accepted.
func (a *SimulatedChainAdapter) Submissions() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submissions)
}

func SimulatedChainTxRef(transactionID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(transactionID)))
	return "0x" + hex.EncodeToString(sum[:])
}

func chainOperationFor(tx LedgerTransaction, evidenceReference string) ChainOperation {
	return ChainOperation{
		Kind:              tx.Kind,
		TransactionID:     tx.ID,
		TokenID:           tx.TokenID,
		CertificateID:     tx.CertificateID,
		FromAddress:       tx.FromAddress,
		ToAddress:         tx.ToAddress,
		Amount:            tx.Amount,
		EvidenceReference: evidenceReference,
	}
}

var _ ChainAdapter = (*SimulatedChainAdapter)(nil)
