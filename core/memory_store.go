package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps every ledger record in process memory behind a single
// mutex. Reads return copies so callers never observe a partial commit.
type MemoryStore struct {
	mu sync.RWMutex

	projects         map[string]Project
	attestations     map[string]Attestation
	projectSequences map[string]int64
	summaries        map[string]OracleSummary
	lots             map[string]CreditLot
	lotByAttestation map[string]string
	balances         map[string]HolderBalance
	positions        map[string]HolderPosition
	certificates     map[string]RetirementCertificate
	transactions     map[string]LedgerTransaction
	transactionOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:         map[string]Project{},
		attestations:     map[string]Attestation{},
		projectSequences: map[string]int64{},
		summaries:        map[string]OracleSummary{},
		lots:             map[string]CreditLot{},
		lotByAttestation: map[string]string{},
		balances:         map[string]HolderBalance{},
		positions:        map[string]HolderPosition{},
		certificates:     map[string]RetirementCertificate{},
		transactions:     map[string]LedgerTransaction{},
	}
}

func (s *MemoryStore) ProjectStore() ProjectStore         { return memoryProjectStore{s} }
func (s *MemoryStore) AttestationStore() AttestationStore { return memoryAttestationStore{s} }
func (s *MemoryStore) SummaryStore() SummaryStore         { return memorySummaryStore{s} }
func (s *MemoryStore) LedgerStore() LedgerStore           { return memoryLedgerStore{s} }

type memoryProjectStore struct{ s *MemoryStore }

func (m memoryProjectStore) Create(_ context.Context, project Project) (Project, error) {
	id := strings.TrimSpace(project.ID)
	if id == "" {
		return Project{}, fmt.Errorf("core: project id is required")
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.projects[id]; exists {
		return Project{}, ErrRecordExists
	}
	project.ID = id
	m.s.projects[id] = copyProject(project)
	return copyProject(project), nil
}

func (m memoryProjectStore) Get(_ context.Context, id string) (Project, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	project, ok := m.s.projects[strings.TrimSpace(id)]
	if !ok {
		return Project{}, ErrRecordNotFound
	}
	return copyProject(project), nil
}

func (m memoryProjectStore) List(_ context.Context, filter ProjectFilter) ([]Project, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]Project, 0, len(m.s.projects))
	for _, project := range m.s.projects {
		if filter.Status != "" && project.Status != filter.Status {
			continue
		}
		out = append(out, copyProject(project))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (m memoryProjectStore) Update(_ context.Context, project Project) (Project, error) {
	id := strings.TrimSpace(project.ID)
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.projects[id]; !ok {
		return Project{}, ErrRecordNotFound
	}
	m.s.projects[id] = copyProject(project)
	return copyProject(project), nil
}

type memoryAttestationStore struct{ s *MemoryStore }

func (m memoryAttestationStore) Create(_ context.Context, attestation Attestation) (Attestation, error) {
	id := strings.TrimSpace(attestation.ID)
	projectID := strings.TrimSpace(attestation.ProjectID)
	if id == "" || projectID == "" {
		return Attestation{}, fmt.Errorf("core: attestation id and project id are required")
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.attestations[id]; exists {
		return Attestation{}, ErrRecordExists
	}
	m.s.projectSequences[projectID]++
	attestation.ID = id
	attestation.ProjectID = projectID
	attestation.Sequence = m.s.projectSequences[projectID]
	attestation.Metrics = copyMetrics(attestation.Metrics)
	m.s.attestations[id] = attestation
	return copyAttestation(attestation), nil
}

func (m memoryAttestationStore) Get(_ context.Context, id string) (Attestation, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	attestation, ok := m.s.attestations[strings.TrimSpace(id)]
	if !ok {
		return Attestation{}, ErrRecordNotFound
	}
	return copyAttestation(attestation), nil
}

func (m memoryAttestationStore) GetLatest(ctx context.Context, projectID string) (Attestation, error) {
	list, err := m.ListByProject(ctx, projectID)
	if err != nil {
		return Attestation{}, err
	}
	if len(list) == 0 {
		return Attestation{}, ErrRecordNotFound
	}
	return list[len(list)-1], nil
}

// ListByProject returns attestations oldest first.
func (m memoryAttestationStore) ListByProject(_ context.Context, projectID string) ([]Attestation, error) {
	projectID = strings.TrimSpace(projectID)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []Attestation{}
	for _, attestation := range m.s.attestations {
		if attestation.ProjectID == projectID {
			out = append(out, copyAttestation(attestation))
		}
	}
	sortAttestations(out)
	return out, nil
}

func sortAttestations(list []Attestation) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].IngestedAt.Equal(list[j].IngestedAt) {
			return list[i].IngestedAt.Before(list[j].IngestedAt)
		}
		return list[i].Sequence < list[j].Sequence
	})
}

type memorySummaryStore struct{ s *MemoryStore }

func (m memorySummaryStore) Create(_ context.Context, summary OracleSummary) (OracleSummary, error) {
	id := strings.TrimSpace(summary.AttestationID)
	if id == "" {
		return OracleSummary{}, fmt.Errorf("core: summary attestation id is required")
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.summaries[id]; exists {
		return OracleSummary{}, ErrRecordExists
	}
	summary.AttestationID = id
	m.s.summaries[id] = summary
	return summary, nil
}

func (m memorySummaryStore) Get(_ context.Context, attestationID string) (OracleSummary, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	summary, ok := m.s.summaries[strings.TrimSpace(attestationID)]
	if !ok {
		return OracleSummary{}, ErrRecordNotFound
	}
	return summary, nil
}

type memoryLedgerStore struct{ s *MemoryStore }

func (m memoryLedgerStore) GetLot(_ context.Context, tokenID string) (CreditLot, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	lot, ok := m.s.lots[strings.TrimSpace(tokenID)]
	if !ok {
		return CreditLot{}, ErrRecordNotFound
	}
	return lot, nil
}

func (m memoryLedgerStore) FindLotByAttestation(_ context.Context, attestationID string) (CreditLot, bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	tokenID, ok := m.s.lotByAttestation[strings.TrimSpace(attestationID)]
	if !ok {
		return CreditLot{}, false, nil
	}
	return m.s.lots[tokenID], true, nil
}

func (m memoryLedgerStore) GetBalance(_ context.Context, holder string) (HolderBalance, error) {
	holder = strings.TrimSpace(holder)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	balance, ok := m.s.balances[holder]
	if !ok {
		return HolderBalance{HolderAddress: holder}, nil
	}
	return balance, nil
}

func (m memoryLedgerStore) GetPosition(_ context.Context, holder string, tokenID string) (HolderPosition, error) {
	holder = strings.TrimSpace(holder)
	tokenID = strings.TrimSpace(tokenID)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	position, ok := m.s.positions[positionKey(holder, tokenID)]
	if !ok {
		return HolderPosition{HolderAddress: holder, TokenID: tokenID}, nil
	}
	return position, nil
}

func (m memoryLedgerStore) ListLotPositions(_ context.Context, tokenID string) ([]HolderPosition, error) {
	tokenID = strings.TrimSpace(tokenID)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []HolderPosition{}
	for _, position := range m.s.positions {
		if position.TokenID == tokenID {
			out = append(out, position)
		}
	}
	sortPositions(out)
	return out, nil
}

func (m memoryLedgerStore) ListHolderPositions(_ context.Context, holder string) ([]HolderPosition, error) {
	holder = strings.TrimSpace(holder)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []HolderPosition{}
	for _, position := range m.s.positions {
		if position.HolderAddress == holder {
			out = append(out, position)
		}
	}
	sortPositions(out)
	return out, nil
}

func sortPositions(list []HolderPosition) {
	sort.Slice(list, func(i, j int) bool {
		return positionKey(list[i].HolderAddress, list[i].TokenID) < positionKey(list[j].HolderAddress, list[j].TokenID)
	})
}

func (m memoryLedgerStore) ListHolderTransactions(_ context.Context, holder string) ([]LedgerTransaction, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []LedgerTransaction{}
	for _, id := range m.s.transactionOrder {
		tx := m.s.transactions[id]
		if tx.Involves(holder) {
			out = append(out, copyTransaction(tx))
		}
	}
	return out, nil
}

func (m memoryLedgerStore) GetCertificate(_ context.Context, id string) (RetirementCertificate, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	certificate, ok := m.s.certificates[strings.TrimSpace(id)]
	if !ok {
		return RetirementCertificate{}, ErrRecordNotFound
	}
	return certificate, nil
}

// ListLots returns lots oldest mint first.
func (m memoryLedgerStore) ListLots(_ context.Context, filter CreditLotFilter) ([]CreditLot, error) {
	projectID := strings.TrimSpace(filter.ProjectID)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []CreditLot{}
	for _, lot := range m.s.lots {
		if projectID != "" && lot.ProjectID != projectID {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MintedAt.Equal(out[j].MintedAt) {
			return out[i].TokenID < out[j].TokenID
		}
		return out[i].MintedAt.Before(out[j].MintedAt)
	})
	return out, nil
}

func (m memoryLedgerStore) ListCertificates(_ context.Context, filter CertificateFilter) ([]RetirementCertificate, error) {
	tokenID := strings.TrimSpace(filter.TokenID)
	holder := strings.TrimSpace(filter.Holder)
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []RetirementCertificate{}
	for _, certificate := range m.s.certificates {
		if tokenID != "" && certificate.TokenID != tokenID {
			continue
		}
		if holder != "" && certificate.HolderAddress != holder {
			continue
		}
		out = append(out, certificate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RetiredAt.Equal(out[j].RetiredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RetiredAt.Before(out[j].RetiredAt)
	})
	return out, nil
}

// Commit validates every uniqueness rule before writing anything.
func (m memoryLedgerStore) Commit(ctx context.Context, mutation LedgerMutation) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	tokenID := strings.TrimSpace(mutation.Lot.TokenID)
	txID := strings.TrimSpace(mutation.Transaction.ID)
	if tokenID == "" || txID == "" {
		return fmt.Errorf("core: ledger mutation requires a lot and a transaction")
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.transactions[txID]; exists {
		return ErrRecordExists
	}
	if mutation.CreateLot {
		if _, exists := m.s.lots[tokenID]; exists {
			return ErrRecordExists
		}
		if _, used := m.s.lotByAttestation[strings.TrimSpace(mutation.Lot.AttestationID)]; used {
			return ErrAttestationAlreadyMinted
		}
	} else if _, exists := m.s.lots[tokenID]; !exists {
		return ErrRecordNotFound
	}
	if mutation.Certificate != nil {
		if _, exists := m.s.certificates[strings.TrimSpace(mutation.Certificate.ID)]; exists {
			return ErrRecordExists
		}
	}

	if mutation.CreateLot {
		m.s.lots[tokenID] = mutation.Lot
		m.s.lotByAttestation[strings.TrimSpace(mutation.Lot.AttestationID)] = tokenID
	} else {
		// Chain fields are owned by RecordChainResult.
		existing := m.s.lots[tokenID]
		existing.Retired = mutation.Lot.Retired
		existing.Unallocated = mutation.Lot.Unallocated
		existing.UpdatedAt = mutation.Lot.UpdatedAt
		m.s.lots[tokenID] = existing
	}
	for _, balance := range mutation.Balances {
		m.s.balances[strings.TrimSpace(balance.HolderAddress)] = balance
	}
	for _, position := range mutation.Positions {
		m.s.positions[positionKey(position.HolderAddress, position.TokenID)] = position
	}
	if mutation.Certificate != nil {
		m.s.certificates[strings.TrimSpace(mutation.Certificate.ID)] = *mutation.Certificate
	}
	m.s.transactions[txID] = copyTransaction(mutation.Transaction)
	m.s.transactionOrder = append(m.s.transactionOrder, txID)
	return nil
}

func (m memoryLedgerStore) ListPendingChainTransactions(_ context.Context, now time.Time, limit int) ([]LedgerTransaction, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []LedgerTransaction{}
	for _, id := range m.s.transactionOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		tx := m.s.transactions[id]
		if tx.ChainStatus != ChainStatusPending {
			continue
		}
		if tx.ChainNextAttemptAt != nil && tx.ChainNextAttemptAt.After(now) {
			continue
		}
		out = append(out, copyTransaction(tx))
	}
	return out, nil
}

func (m memoryLedgerStore) ClaimChainTransaction(_ context.Context, claim ChainClaim) (bool, error) {
	txID := strings.TrimSpace(claim.TransactionID)
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	tx, ok := m.s.transactions[txID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if tx.ChainStatus != ChainStatusPending || tx.ChainAttempts != claim.Attempts {
		return false, nil
	}
	if tx.ChainNextAttemptAt != nil && tx.ChainNextAttemptAt.After(claim.Now) {
		return false, nil
	}
	lease := claim.LeaseUntil
	tx.ChainNextAttemptAt = &lease
	m.s.transactions[txID] = tx
	return true, nil
}

func (m memoryLedgerStore) RecordChainResult(_ context.Context, result ChainResult) error {
	txID := strings.TrimSpace(result.TransactionID)
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	tx, ok := m.s.transactions[txID]
	if !ok {
		return ErrRecordNotFound
	}
	if tx.ChainStatus != ChainStatusPending || result.Attempts <= tx.ChainAttempts {
		return ErrChainResultStale
	}
	applyChainResult(&tx, result)
	m.s.transactions[txID] = tx

	switch {
	case tx.Kind == TransactionKindMint:
		if lot, ok := m.s.lots[tx.TokenID]; ok {
			lot.ChainStatus = tx.ChainStatus
			lot.ChainTxRef = tx.ChainTxRef
			m.s.lots[tx.TokenID] = lot
		}
	case tx.Kind == TransactionKindRetire && tx.CertificateID != "":
		if certificate, ok := m.s.certificates[tx.CertificateID]; ok {
			certificate.ChainStatus = tx.ChainStatus
			certificate.ChainTxRef = tx.ChainTxRef
			m.s.certificates[tx.CertificateID] = certificate
		}
	}
	return nil
}

func applyChainResult(tx *LedgerTransaction, result ChainResult) {
	tx.ChainStatus = result.Status
	if ref := strings.TrimSpace(result.TxRef); ref != "" {
		tx.ChainTxRef = ref
	}
	tx.ChainAttempts = result.Attempts
	tx.ChainNextAttemptAt = copyTimePtr(result.NextAttemptAt)
	tx.ChainLastError = strings.TrimSpace(result.LastError)
	if !result.RecordedAt.IsZero() {
		tx.UpdatedAt = result.RecordedAt
	}
}

func copyProject(project Project) Project {
	project.Documents = copyStrings(project.Documents)
	project.ApprovedAt = copyTimePtr(project.ApprovedAt)
	project.RejectedAt = copyTimePtr(project.RejectedAt)
	return project
}

func copyAttestation(attestation Attestation) Attestation {
	attestation.Metrics = copyMetrics(attestation.Metrics)
	return attestation
}

func copyTransaction(tx LedgerTransaction) LedgerTransaction {
	tx.ChainNextAttemptAt = copyTimePtr(tx.ChainNextAttemptAt)
	return tx
}

func copyTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

var _ StoreProvider = (*MemoryStore)(nil)
