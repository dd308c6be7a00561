package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-blueledger/core"
	"github.com/uptrace/bun"
)

const (
	defaultPendingChainBatch = 50
	maxSequenceRetries       = 5
)

var errSequenceTaken = errors.New("sqlstore: transaction sequence taken")

// LedgerStore keeps lots, holdings, certificates and the transaction log.
// Commit applies a whole LedgerMutation inside one database transaction.
type LedgerStore struct {
	db *bun.DB
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LedgerStore{db: db}, nil
}

func (s *LedgerStore) GetLot(ctx context.Context, tokenID string) (core.CreditLot, error) {
	if s == nil || s.db == nil {
		return core.CreditLot{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record, err := findLot(ctx, s.db, "token_id", tokenID)
	if err != nil {
		return core.CreditLot{}, err
	}
	if record == nil {
		return core.CreditLot{}, core.ErrRecordNotFound
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) FindLotByAttestation(ctx context.Context, attestationID string) (core.CreditLot, bool, error) {
	if s == nil || s.db == nil {
		return core.CreditLot{}, false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record, err := findLot(ctx, s.db, "attestation_id", attestationID)
	if err != nil {
		return core.CreditLot{}, false, err
	}
	if record == nil {
		return core.CreditLot{}, false, nil
	}
	return record.toDomain(), true, nil
}

func (s *LedgerStore) GetBalance(ctx context.Context, holder string) (core.HolderBalance, error) {
	if s == nil || s.db == nil {
		return core.HolderBalance{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	holder = strings.TrimSpace(holder)
	record, err := findBalance(ctx, s.db, holder)
	if err != nil {
		return core.HolderBalance{}, err
	}
	if record == nil {
		return core.HolderBalance{HolderAddress: holder}, nil
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) GetPosition(ctx context.Context, holder string, tokenID string) (core.HolderPosition, error) {
	if s == nil || s.db == nil {
		return core.HolderPosition{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	holder = strings.TrimSpace(holder)
	tokenID = strings.TrimSpace(tokenID)
	record, err := findPosition(ctx, s.db, holder, tokenID)
	if err != nil {
		return core.HolderPosition{}, err
	}
	if record == nil {
		return core.HolderPosition{HolderAddress: holder, TokenID: tokenID}, nil
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) ListLotPositions(ctx context.Context, tokenID string) ([]core.HolderPosition, error) {
	return s.listPositions(ctx, "token_id", tokenID)
}

func (s *LedgerStore) ListHolderPositions(ctx context.Context, holder string) ([]core.HolderPosition, error) {
	return s.listPositions(ctx, "holder_address", holder)
}

func (s *LedgerStore) listPositions(ctx context.Context, column string, value string) ([]core.HolderPosition, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	var records []holderPositionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.? = ?", bun.Ident(column), strings.TrimSpace(value)).
		OrderExpr("?TableAlias.holder_address ASC").
		OrderExpr("?TableAlias.token_id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	out := make([]core.HolderPosition, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

// ListHolderTransactions returns transactions in commit order.
func (s *LedgerStore) ListHolderTransactions(ctx context.Context, holder string) ([]core.LedgerTransaction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return []core.LedgerTransaction{}, nil
	}
	var records []ledgerTransactionRecord
	err := s.db.NewSelect().
		Model(&records).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.from_address = ?", holder).
				WhereOr("?TableAlias.to_address = ?", holder)
		}).
		OrderExpr("?TableAlias.sequence ASC").
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	out := make([]core.LedgerTransaction, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *LedgerStore) GetCertificate(ctx context.Context, id string) (core.RetirementCertificate, error) {
	if s == nil || s.db == nil {
		return core.RetirementCertificate{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record := &retirementCertificateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.RetirementCertificate{}, core.ErrRecordNotFound
		}
		return core.RetirementCertificate{}, err
	}
	return record.toDomain(), nil
}

// ListLots returns lots oldest mint first.
func (s *LedgerStore) ListLots(ctx context.Context, filter core.CreditLotFilter) ([]core.CreditLot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	var records []creditLotRecord
	q := s.db.NewSelect().Model(&records)
	if projectID := strings.TrimSpace(filter.ProjectID); projectID != "" {
		q = q.Where("?TableAlias.project_id = ?", projectID)
	}
	err := q.
		OrderExpr("?TableAlias.minted_at ASC").
		OrderExpr("?TableAlias.token_id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	out := make([]core.CreditLot, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *LedgerStore) ListCertificates(ctx context.Context, filter core.CertificateFilter) ([]core.RetirementCertificate, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	var records []retirementCertificateRecord
	q := s.db.NewSelect().Model(&records)
	if tokenID := strings.TrimSpace(filter.TokenID); tokenID != "" {
		q = q.Where("?TableAlias.token_id = ?", tokenID)
	}
	if holder := strings.TrimSpace(filter.Holder); holder != "" {
		q = q.Where("?TableAlias.holder_address = ?", holder)
	}
	err := q.
		OrderExpr("?TableAlias.retired_at ASC").
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	out := make([]core.RetirementCertificate, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

// Commit writes every record of the mutation or none of them. An existing
// lot only has its retirement totals updated; chain fields belong to
// RecordChainResult. Two commits that read the same MAX(sequence) collide on
// the sequence unique key, and the loser runs again.
func (s *LedgerStore) Commit(ctx context.Context, mutation core.LedgerMutation) error {
	var err error
	for range maxSequenceRetries {
		err = s.commitOnce(ctx, mutation)
		if !errors.Is(err, errSequenceTaken) {
			return err
		}
	}
	return fmt.Errorf("sqlstore: transaction sequence contended: %w", err)
}

func (s *LedgerStore) commitOnce(ctx context.Context, mutation core.LedgerMutation) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	txID := strings.TrimSpace(mutation.Transaction.ID)
	tokenID := strings.TrimSpace(mutation.Lot.TokenID)
	if txID == "" {
		return fmt.Errorf("sqlstore: transaction id is required")
	}
	if tokenID == "" {
		return fmt.Errorf("sqlstore: token id is required")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*ledgerTransactionRecord)(nil)).
			Where("id = ?", txID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrRecordExists
		}

		if mutation.CreateLot {
			if err := insertLot(ctx, tx, mutation.Lot); err != nil {
				return err
			}
		} else if err := updateLotTotals(ctx, tx, mutation.Lot); err != nil {
			return err
		}

		for _, balance := range mutation.Balances {
			if err := upsertBalance(ctx, tx, balance); err != nil {
				return err
			}
		}
		for _, position := range mutation.Positions {
			if err := upsertPosition(ctx, tx, position); err != nil {
				return err
			}
		}
		if mutation.Certificate != nil {
			if _, err := tx.NewInsert().Model(newCertificateRecord(*mutation.Certificate)).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return core.ErrRecordExists
				}
				return err
			}
		}

		var sequence int64
		if err := tx.NewSelect().
			Model((*ledgerTransactionRecord)(nil)).
			ColumnExpr("COALESCE(MAX(sequence), 0)").
			Scan(ctx, &sequence); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(newTransactionRecord(mutation.Transaction, sequence+1)).Exec(ctx); err != nil {
			// The id was checked above, so a duplicate here is the sequence.
			if isUniqueViolation(err) {
				return errSequenceTaken
			}
			return err
		}
		return nil
	})
}

// ListPendingChainTransactions returns pending transactions that are due at
// now, oldest first.
func (s *LedgerStore) ListPendingChainTransactions(ctx context.Context, now time.Time, limit int) ([]core.LedgerTransaction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if limit <= 0 {
		limit = defaultPendingChainBatch
	}
	var records []ledgerTransactionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.chain_status = ?", string(core.ChainStatusPending)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.chain_next_attempt_at IS NULL").
				WhereOr("?TableAlias.chain_next_attempt_at <= ?", now.UTC())
		}).
		OrderExpr("?TableAlias.sequence ASC").
		OrderExpr("?TableAlias.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	out := make([]core.LedgerTransaction, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

// ClaimChainTransaction leases a due pending transaction with one
// conditional UPDATE, so concurrent reconcilers see at most one winner.
func (s *LedgerStore) ClaimChainTransaction(ctx context.Context, claim core.ChainClaim) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	txID := strings.TrimSpace(claim.TransactionID)
	if txID == "" {
		return false, fmt.Errorf("sqlstore: transaction id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*ledgerTransactionRecord)(nil)).
		Set("chain_next_attempt_at = ?", claim.LeaseUntil.UTC()).
		Where("id = ?", txID).
		Where("chain_status = ?", string(core.ChainStatusPending)).
		Where("chain_attempts = ?", claim.Attempts).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("chain_next_attempt_at IS NULL").
				WhereOr("chain_next_attempt_at <= ?", claim.Now.UTC())
		}).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RecordChainResult stores the outcome on the transaction and mirrors status
// and reference onto the lot for mints or the certificate for retirements.
// Only a pending transaction with fewer recorded attempts accepts it.
func (s *LedgerStore) RecordChainResult(ctx context.Context, result core.ChainResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	txID := strings.TrimSpace(result.TransactionID)
	if txID == "" {
		return fmt.Errorf("sqlstore: transaction id is required")
	}
	recordedAt := result.RecordedAt.UTC()
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &ledgerTransactionRecord{}
		if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", txID).Limit(1).Scan(ctx); err != nil {
			if isNoRows(err) {
				return core.ErrRecordNotFound
			}
			return err
		}
		if record.ChainStatus != string(core.ChainStatusPending) || result.Attempts <= record.ChainAttempts {
			return core.ErrChainResultStale
		}
		previousAttempts := record.ChainAttempts
		record.ChainStatus = string(result.Status)
		if ref := strings.TrimSpace(result.TxRef); ref != "" {
			record.ChainTxRef = ref
		}
		record.ChainAttempts = result.Attempts
		record.ChainNextAttemptAt = copyTimePointer(result.NextAttemptAt)
		record.ChainLastError = strings.TrimSpace(result.LastError)
		record.UpdatedAt = recordedAt

		res, err := tx.NewUpdate().
			Model(record).
			Column("chain_status", "chain_tx_ref", "chain_attempts", "chain_next_attempt_at", "chain_last_error", "updated_at").
			Where("id = ?", txID).
			Where("chain_status = ?", string(core.ChainStatusPending)).
			Where("chain_attempts = ?", previousAttempts).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, affectedErr := res.RowsAffected(); affectedErr == nil && affected == 0 {
			return core.ErrChainResultStale
		}

		switch {
		case record.Kind == string(core.TransactionKindMint):
			_, err := tx.NewUpdate().
				Model((*creditLotRecord)(nil)).
				Set("chain_status = ?", record.ChainStatus).
				Set("chain_tx_ref = ?", record.ChainTxRef).
				Where("token_id = ?", record.TokenID).
				Exec(ctx)
			return err
		case record.Kind == string(core.TransactionKindRetire) && record.CertificateID != "":
			_, err := tx.NewUpdate().
				Model((*retirementCertificateRecord)(nil)).
				Set("chain_status = ?", record.ChainStatus).
				Set("chain_tx_ref = ?", record.ChainTxRef).
				Where("id = ?", record.CertificateID).
				Exec(ctx)
			return err
		}
		return nil
	})
}

func insertLot(ctx context.Context, tx bun.Tx, lot core.CreditLot) error {
	existing, err := findLot(ctx, tx, "token_id", lot.TokenID)
	if err != nil {
		return err
	}
	if existing != nil {
		return core.ErrRecordExists
	}
	consumed, err := findLot(ctx, tx, "attestation_id", lot.AttestationID)
	if err != nil {
		return err
	}
	if consumed != nil {
		return core.ErrAttestationAlreadyMinted
	}
	if _, err := tx.NewInsert().Model(newCreditLotRecord(lot)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.ErrAttestationAlreadyMinted
		}
		return err
	}
	return nil
}

func updateLotTotals(ctx context.Context, tx bun.Tx, lot core.CreditLot) error {
	updatedAt := lot.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := tx.NewUpdate().
		Model((*creditLotRecord)(nil)).
		Set("retired = ?", lot.Retired).
		Set("unallocated = ?", lot.Unallocated).
		Set("updated_at = ?", updatedAt).
		Where("token_id = ?", strings.TrimSpace(lot.TokenID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := res.RowsAffected(); affectedErr == nil && affected == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func upsertBalance(ctx context.Context, tx bun.Tx, balance core.HolderBalance) error {
	holder := strings.TrimSpace(balance.HolderAddress)
	if holder == "" {
		return fmt.Errorf("sqlstore: holder address is required")
	}
	record, err := findBalance(ctx, tx, holder)
	if err != nil {
		return err
	}
	updatedAt := balance.UpdatedAt.UTC()
	if record == nil {
		_, err := tx.NewInsert().Model(&holderBalanceRecord{
			HolderAddress: holder,
			Owned:         balance.Owned,
			Retired:       balance.Retired,
			UpdatedAt:     updatedAt,
		}).Exec(ctx)
		return err
	}
	_, err = tx.NewUpdate().
		Model((*holderBalanceRecord)(nil)).
		Set("owned = ?", balance.Owned).
		Set("retired = ?", balance.Retired).
		Set("updated_at = ?", updatedAt).
		Where("holder_address = ?", holder).
		Exec(ctx)
	return err
}

func upsertPosition(ctx context.Context, tx bun.Tx, position core.HolderPosition) error {
	holder := strings.TrimSpace(position.HolderAddress)
	tokenID := strings.TrimSpace(position.TokenID)
	if holder == "" || tokenID == "" {
		return fmt.Errorf("sqlstore: holder address and token id are required")
	}
	record, err := findPosition(ctx, tx, holder, tokenID)
	if err != nil {
		return err
	}
	updatedAt := position.UpdatedAt.UTC()
	if record == nil {
		_, err := tx.NewInsert().Model(&holderPositionRecord{
			HolderAddress: holder,
			TokenID:       tokenID,
			Owned:         position.Owned,
			Retired:       position.Retired,
			UpdatedAt:     updatedAt,
		}).Exec(ctx)
		return err
	}
	_, err = tx.NewUpdate().
		Model((*holderPositionRecord)(nil)).
		Set("owned = ?", position.Owned).
		Set("retired = ?", position.Retired).
		Set("updated_at = ?", updatedAt).
		Where("holder_address = ?", holder).
		Where("token_id = ?", tokenID).
		Exec(ctx)
	return err
}

func findLot(ctx context.Context, db bun.IDB, column string, value string) (*creditLotRecord, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	record := &creditLotRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func findBalance(ctx context.Context, db bun.IDB, holder string) (*holderBalanceRecord, error) {
	if holder == "" {
		return nil, nil
	}
	record := &holderBalanceRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.holder_address = ?", holder).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func findPosition(ctx context.Context, db bun.IDB, holder string, tokenID string) (*holderPositionRecord, error) {
	if holder == "" || tokenID == "" {
		return nil, nil
	}
	record := &holderPositionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.holder_address = ?", holder).
		Where("?TableAlias.token_id = ?", tokenID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
