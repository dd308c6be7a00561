package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MintCredits issues a new credit lot against an oracle summary and
// allocates the full amount to the project owner. The chain adapter is
// called after the ledger commit; a chain failure is returned as a
// ChainError alongside a populated result.
func (s *Service) MintCredits(ctx context.Context, req MintRequest) (result MintResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"project_id":     req.ProjectID,
		"attestation_id": req.AttestationID,
		"amount":         req.Amount,
		"kind":           string(TransactionKindMint),
	}
	defer func() {
		fields["token_id"] = result.TokenID
		s.observeOperation(ctx, startedAt, "mint_credits", err, fields)
	}()

	projectID := strings.TrimSpace(req.ProjectID)
	attestationID := strings.TrimSpace(req.AttestationID)
	if projectID == "" {
		err = s.mapError(ValidationError("project_id", "project id is required"))
		return MintResult{}, err
	}
	if attestationID == "" {
		err = s.mapError(ValidationError("attestation_id", "attestation id is required"))
		return MintResult{}, err
	}

	project, err := s.projectStore.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			err = s.mapError(NotFoundError("project not found"))
			return MintResult{}, err
		}
		err = s.mapError(err)
		return MintResult{}, err
	}
	if project.Status != ProjectStatusApproved {
		err = s.mapError(InvalidStateError(fmt.Sprintf("project is %s; credits can only be minted for approved projects", project.Status)))
		return MintResult{}, err
	}
	owner := strings.TrimSpace(project.OwnerAddress)

	var (
		lot CreditLot
		tx  LedgerTransaction
	)
	keys := []string{AttestationLockKey(attestationID), HolderLockKey(owner)}
	err = s.withLocks(ctx, keys, func() error {
		summary, getErr := s.summaryStore.Get(ctx, attestationID)
		if getErr != nil {
			if errors.Is(getErr, ErrRecordNotFound) {
				return NotFoundError("oracle summary not found for attestation")
			}
			return getErr
		}
		if strings.TrimSpace(summary.ProjectID) != projectID {
			return MismatchError("oracle summary belongs to a different project")
		}
		now := s.now()
		if !summary.Usable(now) {
			return ExpiredError("oracle summary has expired")
		}
		if _, found, findErr := s.ledgerStore.FindLotByAttestation(ctx, attestationID); findErr != nil {
			return findErr
		} else if found {
			return ConflictError("attestation has already been used to mint credits")
		}
		if req.Amount <= 0 {
			return ValidationError("amount", "amount must be > 0")
		}
		decision, policyErr := s.issuancePolicy.Evaluate(ctx, IssuanceRequest{
			ProjectID:         projectID,
			AttestationID:     attestationID,
			AreaHectares:      project.AreaHectares,
			TCO2e:             summary.TCO2e,
			Amount:            req.Amount,
			CreditsPerHectare: s.config.Issuance.CreditsPerHectare,
			CapByArea:         !s.config.Issuance.DisableAreaCap,
		})
		if policyErr != nil {
			return policyErr
		}
		if !decision.Allowed {
			reason := strings.TrimSpace(decision.Reason)
			if reason == "" {
				reason = "amount is not allowed by the issuance policy"
			}
			return ValidationError("amount", reason)
		}

		balance, balanceErr := s.ledgerStore.GetBalance(ctx, owner)
		if balanceErr != nil {
			return balanceErr
		}
		holderPositions, listErr := s.ledgerStore.ListHolderPositions(ctx, owner)
		if listErr != nil {
			return listErr
		}

		tokenID := s.newID()
		lot = CreditLot{
			TokenID:           tokenID,
			ProjectID:         projectID,
			Vintage:           summary.Vintage,
			Amount:            req.Amount,
			AttestationID:     attestationID,
			EvidenceReference: summary.EvidenceReference,
			ChainStatus:       ChainStatusPending,
			MintedAt:          now,
			UpdatedAt:         now,
		}
		position := HolderPosition{HolderAddress: owner, TokenID: tokenID, Owned: req.Amount, UpdatedAt: now}
		if balance.Owned > math.MaxInt64-req.Amount {
			return ValidationError("amount", "owner balance would overflow")
		}
		balance.HolderAddress = owner
		balance.Owned += req.Amount
		balance.UpdatedAt = now

		if err := s.validateProvenance(lot, []HolderPosition{position}, []holderState{{
			balance:   balance,
			positions: mergePositions(holderPositions, position),
		}}); err != nil {
			return err
		}

		tx = s.pendingTransaction(LedgerTransaction{
			ID:        s.newID(),
			Kind:      TransactionKindMint,
			TokenID:   tokenID,
			ProjectID: projectID,
			ToAddress: owner,
			Amount:    req.Amount,
		}, now)
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return ctxErr
		}
		return s.ledgerStore.Commit(ctx, LedgerMutation{
			Lot:         lot,
			CreateLot:   true,
			Balances:    []HolderBalance{balance},
			Positions:   []HolderPosition{position},
			Transaction: tx,
		})
	})
	if err != nil {
		err = s.mapError(err)
		return MintResult{}, err
	}

	result = MintResult{TokenID: lot.TokenID, TransactionID: tx.ID, ChainStatus: ChainStatusPending}
	chained, chainErr := s.submitToChain(ctx, tx, lot.EvidenceReference)
	result.ChainTxRef = chained.TxRef
	result.ChainStatus = chained.Status
	if chainErr != nil {
		err = chainErr
		return result, err
	}
	return result, nil
}

// TransferCredits moves owned credits of one lot between two holders. Both
// halves commit together or not at all.
func (s *Service) TransferCredits(ctx context.Context, req TransferRequest) (result TransferResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"token_id": req.TokenID,
		"from":     req.From,
		"to":       req.To,
		"amount":   req.Amount,
		"kind":     string(TransactionKindTransfer),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "transfer_credits", err, fields)
	}()

	tokenID := strings.TrimSpace(req.TokenID)
	from := strings.TrimSpace(req.From)
	to := strings.TrimSpace(req.To)
	if err = validateTransfer(tokenID, from, to, req.Amount); err != nil {
		err = s.mapError(err)
		return TransferResult{}, err
	}
	price := s.config.Pricing.PricePerCredit
	if price > 0 && req.Amount > math.MaxInt64/price {
		err = s.mapError(ValidationError("amount", "transfer value overflows"))
		return TransferResult{}, err
	}

	var tx LedgerTransaction
	keys := []string{HolderLockKey(from), HolderLockKey(to), LotLockKey(tokenID)}
	err = s.withLocks(ctx, keys, func() error {
		lot, getErr := s.ledgerStore.GetLot(ctx, tokenID)
		if getErr != nil {
			if errors.Is(getErr, ErrRecordNotFound) {
				return NotFoundError("credit lot not found")
			}
			return getErr
		}
		fromPosition, fromBalance, loadErr := s.loadHolding(ctx, from, tokenID)
		if loadErr != nil {
			return loadErr
		}
		if fromPosition.Owned < req.Amount || fromBalance.Owned < req.Amount {
			return InsufficientBalanceError("sender does not own enough credits in this lot")
		}
		toPosition, toBalance, loadErr := s.loadHolding(ctx, to, tokenID)
		if loadErr != nil {
			return loadErr
		}
		if toBalance.Owned > math.MaxInt64-req.Amount {
			return ValidationError("amount", "recipient balance would overflow")
		}

		now := s.now()
		fromPosition.Owned -= req.Amount
		fromPosition.UpdatedAt = now
		fromBalance.Owned -= req.Amount
		fromBalance.UpdatedAt = now
		toPosition.Owned += req.Amount
		toPosition.UpdatedAt = now
		toBalance.Owned += req.Amount
		toBalance.UpdatedAt = now
		lot.UpdatedAt = now

		states, stateErr := s.proposedHolderStates(ctx,
			[]HolderBalance{fromBalance, toBalance},
			[]HolderPosition{fromPosition, toPosition},
		)
		if stateErr != nil {
			return stateErr
		}
		lotPositions, listErr := s.ledgerStore.ListLotPositions(ctx, tokenID)
		if listErr != nil {
			return listErr
		}
		if err := s.validateProvenance(lot, mergePositions(lotPositions, fromPosition, toPosition), states); err != nil {
			return err
		}

		tx = s.pendingTransaction(LedgerTransaction{
			ID:             s.newID(),
			Kind:           TransactionKindTransfer,
			TokenID:        tokenID,
			ProjectID:      lot.ProjectID,
			FromAddress:    from,
			ToAddress:      to,
			Amount:         req.Amount,
			PricePerCredit: price,
			TotalValue:     req.Amount * price,
		}, now)
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return ctxErr
		}
		return s.ledgerStore.Commit(ctx, LedgerMutation{
			Lot:         lot,
			Balances:    []HolderBalance{fromBalance, toBalance},
			Positions:   []HolderPosition{fromPosition, toPosition},
			Transaction: tx,
		})
	})
	if err != nil {
		err = s.mapError(err)
		return TransferResult{}, err
	}

	result = TransferResult{
		TransactionID:  tx.ID,
		TotalValue:     tx.TotalValue,
		PricePerCredit: tx.PricePerCredit,
		ChainStatus:    ChainStatusPending,
	}
	chained, chainErr := s.submitToChain(ctx, tx, "")
	result.ChainTxRef = chained.TxRef
	result.ChainStatus = chained.Status
	if chainErr != nil {
		err = chainErr
		return result, err
	}
	return result, nil
}

func validateTransfer(tokenID, from, to string, amount int64) error {
	if tokenID == "" {
		return ValidationError("token_id", "token id is required")
	}
	if from == "" {
		return ValidationError("from", "sender is required")
	}
	if to == "" {
		return ValidationError("to", "recipient is required")
	}
	if from == to {
		return ValidationError("to", "sender and recipient must differ")
	}
	if amount <= 0 {
		return ValidationError("amount", "amount must be > 0")
	}
	return nil
}

// RetireCredits permanently removes credits from a holder's position and
// issues a retirement certificate in the same commit.
func (s *Service) RetireCredits(ctx context.Context, req RetireRequest) (result RetireResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"token_id": req.TokenID,
		"holder":   req.Holder,
		"amount":   req.Amount,
		"kind":     string(TransactionKindRetire),
	}
	defer func() {
		fields["certificate_id"] = result.CertificateID
		s.observeOperation(ctx, startedAt, "retire_credits", err, fields)
	}()

	holder := strings.TrimSpace(req.Holder)
	tokenID := strings.TrimSpace(req.TokenID)
	switch {
	case holder == "":
		err = ValidationError("holder", "holder is required")
	case tokenID == "":
		err = ValidationError("token_id", "token id is required")
	case req.Amount <= 0:
		err = ValidationError("amount", "amount must be > 0")
	}
	if err != nil {
		err = s.mapError(err)
		return RetireResult{}, err
	}

	var (
		certificate RetirementCertificate
		tx          LedgerTransaction
	)
	keys := []string{HolderLockKey(holder), LotLockKey(tokenID)}
	err = s.withLocks(ctx, keys, func() error {
		lot, getErr := s.ledgerStore.GetLot(ctx, tokenID)
		if getErr != nil {
			if errors.Is(getErr, ErrRecordNotFound) {
				return NotFoundError("credit lot not found")
			}
			return getErr
		}
		position, balance, loadErr := s.loadHolding(ctx, holder, tokenID)
		if loadErr != nil {
			return loadErr
		}
		if position.Owned < req.Amount || balance.Owned < req.Amount {
			return InsufficientBalanceError("holder does not own enough credits in this lot")
		}
		if lot.Outstanding() < req.Amount {
			return InsufficientSupplyError("credit lot does not have enough outstanding credits")
		}
		if balance.Retired > math.MaxInt64-req.Amount {
			return ValidationError("amount", "retired balance would overflow")
		}

		now := s.now()
		position.Owned -= req.Amount
		position.Retired += req.Amount
		position.UpdatedAt = now
		balance.Owned -= req.Amount
		balance.Retired += req.Amount
		balance.UpdatedAt = now
		lot.Retired += req.Amount
		lot.UpdatedAt = now

		states, stateErr := s.proposedHolderStates(ctx, []HolderBalance{balance}, []HolderPosition{position})
		if stateErr != nil {
			return stateErr
		}
		lotPositions, listErr := s.ledgerStore.ListLotPositions(ctx, tokenID)
		if listErr != nil {
			return listErr
		}
		if err := s.validateProvenance(lot, mergePositions(lotPositions, position), states); err != nil {
			return err
		}

		certificate = RetirementCertificate{
			ID:            s.newID(),
			HolderAddress: holder,
			TokenID:       tokenID,
			Amount:        req.Amount,
			Beneficiary:   strings.TrimSpace(req.Beneficiary),
			Purpose:       strings.TrimSpace(req.Purpose),
			ChainStatus:   ChainStatusPending,
			RetiredAt:     now,
		}
		tx = s.pendingTransaction(LedgerTransaction{
			ID:            s.newID(),
			Kind:          TransactionKindRetire,
			TokenID:       tokenID,
			ProjectID:     lot.ProjectID,
			FromAddress:   holder,
			Amount:        req.Amount,
			CertificateID: certificate.ID,
		}, now)
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return ctxErr
		}
		return s.ledgerStore.Commit(ctx, LedgerMutation{
			Lot:         lot,
			Balances:    []HolderBalance{balance},
			Positions:   []HolderPosition{position},
			Certificate: &certificate,
			Transaction: tx,
		})
	})
	if err != nil {
		err = s.mapError(err)
		return RetireResult{}, err
	}

	result = RetireResult{CertificateID: certificate.ID, TransactionID: tx.ID, ChainStatus: ChainStatusPending}
	chained, chainErr := s.submitToChain(ctx, tx, "")
	result.ChainTxRef = chained.TxRef
	result.ChainStatus = chained.Status
	if chainErr != nil {
		err = chainErr
		return result, err
	}
	return result, nil
}

func (s *Service) GetHolderBalance(ctx context.Context, holder string) (HolderBalance, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return HolderBalance{}, s.mapError(ValidationError("holder", "holder is required"))
	}
	balance, err := s.ledgerStore.GetBalance(ctx, holder)
	if err != nil {
		return HolderBalance{}, s.mapError(err)
	}
	return balance, nil
}

func (s *Service) ListHolderPositions(ctx context.Context, holder string) ([]HolderPosition, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, s.mapError(ValidationError("holder", "holder is required"))
	}
	positions, err := s.ledgerStore.ListHolderPositions(ctx, holder)
	if err != nil {
		return nil, s.mapError(err)
	}
	return positions, nil
}

// ListHolderTransactions returns every transaction the holder is a party
// to, oldest first.
func (s *Service) ListHolderTransactions(ctx context.Context, holder string) ([]LedgerTransaction, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, s.mapError(ValidationError("holder", "holder is required"))
	}
	transactions, err := s.ledgerStore.ListHolderTransactions(ctx, holder)
	if err != nil {
		return nil, s.mapError(err)
	}
	return transactions, nil
}

func (s *Service) GetCreditLot(ctx context.Context, tokenID string) (CreditLot, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return CreditLot{}, s.mapError(ValidationError("token_id", "token id is required"))
	}
	lot, err := s.ledgerStore.GetLot(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return CreditLot{}, s.mapError(NotFoundError("credit lot not found"))
		}
		return CreditLot{}, s.mapError(err)
	}
	return lot, nil
}

func (s *Service) GetRetirementCertificate(ctx context.Context, certificateID string) (RetirementCertificate, error) {
	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return RetirementCertificate{}, s.mapError(ValidationError("certificate_id", "certificate id is required"))
	}
	certificate, err := s.ledgerStore.GetCertificate(ctx, certificateID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return RetirementCertificate{}, s.mapError(NotFoundError("retirement certificate not found"))
		}
		return RetirementCertificate{}, s.mapError(err)
	}
	return certificate, nil
}

// ListCreditLots returns minted lots, oldest first.
func (s *Service) ListCreditLots(ctx context.Context, filter CreditLotFilter) ([]CreditLot, error) {
	filter.ProjectID = strings.TrimSpace(filter.ProjectID)
	lots, err := s.ledgerStore.ListLots(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return lots, nil
}

// ListRetirementCertificates returns certificates, oldest retirement first.
func (s *Service) ListRetirementCertificates(ctx context.Context, filter CertificateFilter) ([]RetirementCertificate, error) {
	filter.TokenID = strings.TrimSpace(filter.TokenID)
	filter.Holder = strings.TrimSpace(filter.Holder)
	certificates, err := s.ledgerStore.ListCertificates(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return certificates, nil
}

// ReconcileChain resubmits transactions whose chain submission is still
// pending and due.
func (s *Service) ReconcileChain(ctx context.Context, batchSize int) (stats ReconcileStats, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "reconcile_chain", err, map[string]any{
			"claimed":   stats.Claimed,
			"submitted": stats.Submitted,
			"retried":   stats.Retried,
			"failed":    stats.Failed,
		})
	}()
	if s.chainReconciler == nil {
		err = s.mapError(fmt.Errorf("core: chain reconciler is not configured"))
		return ReconcileStats{}, err
	}
	stats, err = s.chainReconciler.ReconcilePending(ctx, batchSize)
	if err != nil {
		err = s.mapError(err)
		return stats, err
	}
	return stats, nil
}

type holderState struct {
	balance   HolderBalance
	positions []HolderPosition
}

func (s *Service) loadHolding(ctx context.Context, holder string, tokenID string) (HolderPosition, HolderBalance, error) {
	position, err := s.ledgerStore.GetPosition(ctx, holder, tokenID)
	if err != nil {
		return HolderPosition{}, HolderBalance{}, err
	}
	balance, err := s.ledgerStore.GetBalance(ctx, holder)
	if err != nil {
		return HolderPosition{}, HolderBalance{}, err
	}
	position.HolderAddress = holder
	position.TokenID = tokenID
	balance.HolderAddress = holder
	return position, balance, nil
}

// proposedHolderStates pairs each updated balance with the holder's full
// position list after the update.
func (s *Service) proposedHolderStates(ctx context.Context, balances []HolderBalance, updates []HolderPosition) ([]holderState, error) {
	states := make([]holderState, 0, len(balances))
	for _, balance := range balances {
		current, err := s.ledgerStore.ListHolderPositions(ctx, balance.HolderAddress)
		if err != nil {
			return nil, err
		}
		own := make([]HolderPosition, 0, len(updates))
		for _, update := range updates {
			if update.HolderAddress == balance.HolderAddress {
				own = append(own, update)
			}
		}
		states = append(states, holderState{balance: balance, positions: mergePositions(current, own...)})
	}
	return states, nil
}

func (s *Service) validateProvenance(lot CreditLot, lotPositions []HolderPosition, holders []holderState) error {
	if s.provenanceValidator == nil {
		return nil
	}
	if err := s.provenanceValidator.ValidateLot(lot, lotPositions); err != nil {
		return asInvariantViolation(err)
	}
	for _, holder := range holders {
		if err := s.provenanceValidator.ValidateHolder(holder.balance, holder.positions); err != nil {
			return asInvariantViolation(err)
		}
	}
	return nil
}

func asInvariantViolation(err error) error {
	if IsKind(err, LedgerErrorInvariantViolation) {
		return err
	}
	return InvariantViolationError(err.Error())
}

// pendingTransaction leaves the first submission to the caller. The claim
// lease keeps reconcilers away until that attempt is recorded or abandoned.
func (s *Service) pendingTransaction(tx LedgerTransaction, now time.Time) LedgerTransaction {
	next := now.Add(s.config.ChainReconcilerConfig().normalized().ClaimTTL)
	tx.ChainStatus = ChainStatusPending
	tx.ChainNextAttemptAt = &next
	tx.CreatedAt = now
	tx.UpdatedAt = now
	return tx
}

// submitToChain runs outside every lock. The ledger commit it follows is
// final; only the chain status fields change here.
func (s *Service) submitToChain(ctx context.Context, tx LedgerTransaction, evidenceReference string) (ChainResult, error) {
	ref, submitErr := s.chainAdapter.Submit(ctx, chainOperationFor(tx, evidenceReference))
	result := s.chainReconciler.outcome(tx.ID, 1, ref, submitErr)

	// A stale result means a reconciler already recorded this attempt.
	recordErr := s.ledgerStore.RecordChainResult(context.WithoutCancel(ctx), result)
	if recordErr != nil && !errors.Is(recordErr, ErrChainResultStale) {
		s.logWarn(ctx, "chain result not recorded", map[string]any{
			"transaction_id": tx.ID,
			"kind":           string(tx.Kind),
			"error":          recordErr.Error(),
		})
	}
	if result.Status == ChainStatusSubmitted {
		return result, nil
	}
	cause := submitErr
	if cause == nil {
		cause = errors.New(result.LastError)
	}
	s.logWarn(ctx, "chain submission deferred to reconciliation", map[string]any{
		"transaction_id": tx.ID,
		"token_id":       tx.TokenID,
		"kind":           string(tx.Kind),
		"chain_status":   string(result.Status),
		"error":          result.LastError,
	})
	return result, s.mapError(ChainError(cause))
}
