package core

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func TestMintCredits_AllocatesLotToOwner(t *testing.T) {
	f := newLedgerFixture(t)
	result := f.mintedLot(t, 500)
	ctx := context.Background()

	if result.ChainStatus != ChainStatusSubmitted || result.ChainTxRef != SimulatedChainTxRef(result.TransactionID) {
		t.Fatalf("expected submitted chain status, got %+v", result)
	}
	lot, err := f.svc.GetCreditLot(ctx, result.TokenID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if lot.Amount != 500 || lot.Retired != 0 || lot.ProjectID != f.project.ID || lot.EvidenceReference != "Qm123" {
		t.Fatalf("unexpected lot %+v", lot)
	}
	if lot.ChainStatus != ChainStatusSubmitted || lot.ChainTxRef == "" {
		t.Fatalf("expected chain reference on lot, got %+v", lot)
	}
	balance := f.balance(t, testOwner)
	if balance.Owned != 500 || balance.Retired != 0 {
		t.Fatalf("unexpected owner balance %+v", balance)
	}
	txs, err := f.svc.ListHolderTransactions(ctx, testOwner)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Kind != TransactionKindMint || txs[0].PricePerCredit != 0 || txs[0].ToAddress != testOwner {
		t.Fatalf("unexpected mint transaction %+v", txs)
	}
	assertConserved(t, f, result.TokenID)
}

func TestMintThenRetire_ProducesCertificate(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 500)
	ctx := context.Background()

	retired, err := f.svc.RetireCredits(ctx, RetireRequest{
		Holder:      testOwner,
		TokenID:     minted.TokenID,
		Amount:      100,
		Beneficiary: "Acme Corp",
		Purpose:     "FY26 offset",
	})
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	balance := f.balance(t, testOwner)
	if balance.Owned != 400 || balance.Retired != 100 {
		t.Fatalf("expected 400 owned and 100 retired, got %+v", balance)
	}
	certificate, err := f.svc.GetRetirementCertificate(ctx, retired.CertificateID)
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	if certificate.TokenID != minted.TokenID || certificate.Amount != 100 || certificate.Beneficiary != "Acme Corp" {
		t.Fatalf("unexpected certificate %+v", certificate)
	}
	if certificate.ChainStatus != ChainStatusSubmitted {
		t.Fatalf("expected certificate chain status to be recorded, got %s", certificate.ChainStatus)
	}
	certificates, err := f.svc.ListRetirementCertificates(ctx, CertificateFilter{TokenID: minted.TokenID})
	if err != nil {
		t.Fatalf("list certificates: %v", err)
	}
	if len(certificates) != 1 {
		t.Fatalf("expected one certificate for the lot, got %d", len(certificates))
	}
	lot, _ := f.svc.GetCreditLot(ctx, minted.TokenID)
	if lot.Retired != 100 || lot.Outstanding() != 400 {
		t.Fatalf("unexpected lot totals %+v", lot)
	}
	txs, _ := f.svc.ListHolderTransactions(ctx, testOwner)
	if len(txs) != 2 || txs[1].Kind != TransactionKindRetire || txs[1].CertificateID != retired.CertificateID {
		t.Fatalf("unexpected holder history %+v", txs)
	}
	assertConserved(t, f, minted.TokenID)
}

func TestRetireCredits_InsufficientBalanceLeavesStateUntouched(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 500)
	ctx := context.Background()

	_, err := f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: minted.TokenID, Amount: 600})
	assertKind(t, err, LedgerErrorInsufficientBalance)

	balance := f.balance(t, testOwner)
	if balance.Owned != 500 || balance.Retired != 0 {
		t.Fatalf("expected balance unchanged, got %+v", balance)
	}
	certificates, _ := f.svc.ListRetirementCertificates(ctx, CertificateFilter{TokenID: minted.TokenID})
	if len(certificates) != 0 {
		t.Fatalf("expected no certificate, got %d", len(certificates))
	}
	txs, _ := f.svc.ListHolderTransactions(ctx, testOwner)
	if len(txs) != 1 {
		t.Fatalf("expected only the mint transaction, got %d", len(txs))
	}
}

func TestRetireCredits_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 10)
	ctx := context.Background()

	_, err := f.svc.RetireCredits(ctx, RetireRequest{TokenID: minted.TokenID, Amount: 1})
	assertKind(t, err, LedgerErrorValidation)
	_, err = f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: minted.TokenID})
	assertKind(t, err, LedgerErrorValidation)
	_, err = f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: "missing", Amount: 1})
	assertKind(t, err, LedgerErrorNotFound)
	_, err = f.svc.RetireCredits(ctx, RetireRequest{Holder: "0xstranger", TokenID: minted.TokenID, Amount: 1})
	assertKind(t, err, LedgerErrorInsufficientBalance)
}

func TestMintCredits_RejectsReusedAttestation(t *testing.T) {
	f := newLedgerFixture(t)
	project := f.approvedProject(t, 150.5)
	summary := f.issuedSummary(t, project.ID, 61.2)
	ctx := context.Background()
	req := MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 100}

	if _, err := f.svc.MintCredits(ctx, req); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	_, err := f.svc.MintCredits(ctx, req)
	assertKind(t, err, LedgerErrorConflict)
	if f.balance(t, testOwner).Owned != 100 {
		t.Fatalf("expected second mint to leave balance unchanged")
	}
}

func TestMintCredits_ConcurrentDuplicatesMintOnce(t *testing.T) {
	f := newLedgerFixture(t)
	project := f.approvedProject(t, 150.5)
	summary := f.issuedSummary(t, project.ID, 61.2)
	ctx := context.Background()
	req := MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 100}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.MintCredits(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsKind(err, LedgerErrorConflict):
				conflicts++
			default:
				t.Errorf("unexpected mint error %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || conflicts != 7 {
		t.Fatalf("expected one success and seven conflicts, got %d and %d", successes, conflicts)
	}
	if f.balance(t, testOwner).Owned != 100 {
		t.Fatalf("expected exactly one lot worth of credits")
	}
}

func TestMintCredits_Preconditions(t *testing.T) {
	t.Run("unknown project", func(t *testing.T) {
		f := newLedgerFixture(t)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: "prj_missing", AttestationID: "att", Amount: 1})
		assertKind(t, err, LedgerErrorNotFound)
	})

	t.Run("project not approved", func(t *testing.T) {
		f := newLedgerFixture(t)
		project := f.submitProject(t, 10)
		summary := f.issuedSummary(t, project.ID, 5)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 1})
		assertKind(t, err, LedgerErrorInvalidState)
	})

	t.Run("missing summary", func(t *testing.T) {
		f := newLedgerFixture(t)
		project := f.approvedProject(t, 10)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: "att_missing", Amount: 1})
		assertKind(t, err, LedgerErrorNotFound)
	})

	t.Run("summary for another project", func(t *testing.T) {
		f := newLedgerFixture(t)
		other := f.approvedProject(t, 10)
		summary := f.issuedSummary(t, other.ID, 5)
		project := f.approvedProject(t, 10)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 1})
		assertKind(t, err, LedgerErrorMismatch)
	})

	t.Run("expired summary", func(t *testing.T) {
		f := newLedgerFixture(t)
		project := f.approvedProject(t, 10)
		summary := f.issuedSummary(t, project.ID, 5)
		f.clock.Advance(25 * time.Hour)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 1})
		assertKind(t, err, LedgerErrorExpired)
		if f.balance(t, testOwner).Owned != 0 {
			t.Fatalf("expected no credits minted from an expired summary")
		}
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		f := newLedgerFixture(t)
		project := f.approvedProject(t, 10)
		summary := f.issuedSummary(t, project.ID, 5)
		f.clock.Advance(24 * time.Hour)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 1})
		assertKind(t, err, LedgerErrorExpired)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := newLedgerFixture(t)
		project := f.approvedProject(t, 10)
		summary := f.issuedSummary(t, project.ID, 5)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID})
		assertKind(t, err, LedgerErrorValidation)
	})

	t.Run("area cap", func(t *testing.T) {
		f := newLedgerFixture(t)
		project := f.approvedProject(t, 10)
		summary := f.issuedSummary(t, project.ID, 5)
		_, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 101})
		assertKind(t, err, LedgerErrorValidation)
		if _, err := f.svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 100}); err != nil {
			t.Fatalf("expected amount at cap to mint: %v", err)
		}
	})
}

func TestMintCredits_AreaCapCanBeDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Issuance.DisableAreaCap = true
	store := NewMemoryStore()
	clock := newTestClock()
	svc, err := NewService(cfg, WithRepositoryFactory(store), WithClock(clock.Now), WithLogger(stubLogger{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f := &ledgerFixture{svc: svc, store: store, clock: clock}
	project := f.approvedProject(t, 1)
	summary := f.issuedSummary(t, project.ID, 5)
	if _, err := svc.MintCredits(context.Background(), MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 10_000}); err != nil {
		t.Fatalf("expected uncapped mint, got %v", err)
	}
}

func TestTransferCredits_MovesOwnershipAndPrices(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 500)
	ctx := context.Background()

	result, err := f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: "0xbuyer", Amount: 120})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.PricePerCredit != 50 || result.TotalValue != 6000 {
		t.Fatalf("unexpected pricing %+v", result)
	}
	if got := f.balance(t, testOwner).Owned; got != 380 {
		t.Fatalf("expected sender to own 380, got %d", got)
	}
	if got := f.balance(t, "0xbuyer").Owned; got != 120 {
		t.Fatalf("expected recipient to own 120, got %d", got)
	}
	positions, err := f.svc.ListHolderPositions(ctx, "0xbuyer")
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 1 || positions[0].TokenID != minted.TokenID || positions[0].Owned != 120 {
		t.Fatalf("unexpected recipient positions %+v", positions)
	}
	buyerTxs, _ := f.svc.ListHolderTransactions(ctx, "0xbuyer")
	if len(buyerTxs) != 1 || buyerTxs[0].Kind != TransactionKindTransfer || buyerTxs[0].TotalValue != 6000 {
		t.Fatalf("unexpected recipient history %+v", buyerTxs)
	}
	assertConserved(t, f, minted.TokenID)

	if _, err := f.svc.RetireCredits(ctx, RetireRequest{Holder: "0xbuyer", TokenID: minted.TokenID, Amount: 20}); err != nil {
		t.Fatalf("recipient retire: %v", err)
	}
	assertConserved(t, f, minted.TokenID)
}

func TestTransferCredits_Rejections(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 50)
	ctx := context.Background()

	_, err := f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: "0xbuyer", Amount: 51})
	assertKind(t, err, LedgerErrorInsufficientBalance)
	_, err = f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: testOwner, Amount: 1})
	assertKind(t, err, LedgerErrorValidation)
	_, err = f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: "0xbuyer"})
	assertKind(t, err, LedgerErrorValidation)
	_, err = f.svc.TransferCredits(ctx, TransferRequest{TokenID: "missing", From: testOwner, To: "0xbuyer", Amount: 1})
	assertKind(t, err, LedgerErrorNotFound)

	if f.balance(t, testOwner).Owned != 50 || f.balance(t, "0xbuyer").Owned != 0 {
		t.Fatalf("expected balances unchanged after rejected transfers")
	}
}

func TestTransferCredits_ConcurrentSpendNeverOverdraws(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: "0xbuyer", Amount: 10})
				return
			}
			_, _ = f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: minted.TokenID, Amount: 10})
		}(i)
	}
	wg.Wait()

	owner := f.balance(t, testOwner)
	buyer := f.balance(t, "0xbuyer")
	if owner.Owned != 0 || owner.Owned+owner.Retired+buyer.Owned != 100 {
		t.Fatalf("expected all credits accounted for, got owner %+v buyer %+v", owner, buyer)
	}
	assertConserved(t, f, minted.TokenID)
}

type corruptingValidator struct {
	ConservationValidator
}

func (corruptingValidator) ValidateLot(CreditLot, []HolderPosition) error {
	return ValidationError("lot", "forced failure")
}

func TestLedgerOperations_InvariantViolationRollsBack(t *testing.T) {
	f := newLedgerFixture(t)
	minted := f.mintedLot(t, 100)
	ctx := context.Background()
	f.svc.provenanceValidator = corruptingValidator{}

	_, err := f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: minted.TokenID, Amount: 10})
	assertKind(t, err, LedgerErrorInvariantViolation)
	_, err = f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: "0xbuyer", Amount: 10})
	assertKind(t, err, LedgerErrorInvariantViolation)

	if balance := f.balance(t, testOwner); balance.Owned != 100 || balance.Retired != 0 {
		t.Fatalf("expected no state change, got %+v", balance)
	}
	lot, _ := f.svc.GetCreditLot(ctx, minted.TokenID)
	if lot.Retired != 0 {
		t.Fatalf("expected lot untouched, got %+v", lot)
	}
	txs, _ := f.svc.ListHolderTransactions(ctx, testOwner)
	if len(txs) != 1 {
		t.Fatalf("expected no new transactions, got %d", len(txs))
	}
}

func TestLedgerReads_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	_, err := f.svc.GetHolderBalance(ctx, " ")
	assertKind(t, err, LedgerErrorValidation)
	_, err = f.svc.GetCreditLot(ctx, "missing")
	assertKind(t, err, LedgerErrorNotFound)
	_, err = f.svc.GetRetirementCertificate(ctx, "missing")
	assertKind(t, err, LedgerErrorNotFound)

	balance := f.balance(t, "0xnobody")
	if balance.Owned != 0 || balance.Retired != 0 {
		t.Fatalf("expected zero balance for unknown holder, got %+v", balance)
	}
}

func TestLedgerOperations_CancelledWhileWaitingLeavesNoTrace(t *testing.T) {
	locker := NewMemoryRecordLocker()
	f := newLedgerFixture(t, WithRecordLocker(locker))
	minted := f.mintedLot(t, 500)

	cases := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{
			name: "retire",
			run: func(ctx context.Context) error {
				_, err := f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: minted.TokenID, Amount: 100})
				return err
			},
		},
		{
			name: "transfer",
			run: func(ctx context.Context) error {
				_, err := f.svc.TransferCredits(ctx, TransferRequest{TokenID: minted.TokenID, From: testOwner, To: "0xbuyer", Amount: 100})
				return err
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			held, err := locker.AcquireAll(context.Background(), []string{HolderLockKey(testOwner)}, 0)
			if err != nil {
				t.Fatalf("hold owner lock: %v", err)
			}
			defer func() { _ = held.Unlock(context.Background()) }()

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			assertKind(t, tc.run(ctx), LedgerErrorCancelled)

			balance := f.balance(t, testOwner)
			if balance.Owned != 500 || balance.Retired != 0 {
				t.Fatalf("expected balance unchanged, got %+v", balance)
			}
			if buyer := f.balance(t, "0xbuyer"); buyer.Owned != 0 {
				t.Fatalf("expected recipient untouched, got %+v", buyer)
			}
			certificates, err := f.svc.ListRetirementCertificates(context.Background(), CertificateFilter{TokenID: minted.TokenID})
			if err != nil {
				t.Fatalf("list certificates: %v", err)
			}
			if len(certificates) != 0 {
				t.Fatalf("expected no certificate, got %d", len(certificates))
			}
			txs, _ := f.svc.ListHolderTransactions(context.Background(), testOwner)
			if len(txs) != 1 {
				t.Fatalf("expected only the mint transaction, got %d", len(txs))
			}
			assertConserved(t, f, minted.TokenID)
		})
	}
}

func TestMintCredits_UncappedOverflowIsValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Issuance.DisableAreaCap = true
	store := NewMemoryStore()
	clock := newTestClock()
	svc, err := NewService(cfg, WithRepositoryFactory(store), WithClock(clock.Now), WithLogger(stubLogger{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f := &ledgerFixture{svc: svc, store: store, clock: clock}
	project := f.approvedProject(t, 1)
	ctx := context.Background()

	first := f.issuedSummary(t, project.ID, 5)
	if _, err := svc.MintCredits(ctx, MintRequest{ProjectID: project.ID, AttestationID: first.AttestationID, Amount: math.MaxInt64}); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	second := f.issuedSummary(t, project.ID, 5)
	_, err = svc.MintCredits(ctx, MintRequest{ProjectID: project.ID, AttestationID: second.AttestationID, Amount: 1})
	assertKind(t, err, LedgerErrorValidation)
	if f.balance(t, testOwner).Owned != math.MaxInt64 {
		t.Fatalf("expected balance to stay at the first mint")
	}
	if lots, _ := svc.ListCreditLots(ctx, CreditLotFilter{ProjectID: project.ID}); len(lots) != 1 {
		t.Fatalf("expected a single lot, got %d", len(lots))
	}
}

func TestLedgerListings_FilterLotsAndCertificates(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	firstLot := f.mintedLot(t, 200)
	firstProject := f.project.ID
	secondLot := f.mintedLot(t, 300)

	lots, err := f.svc.ListCreditLots(ctx, CreditLotFilter{})
	if err != nil {
		t.Fatalf("list lots: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("expected two lots, got %d", len(lots))
	}
	lots, _ = f.svc.ListCreditLots(ctx, CreditLotFilter{ProjectID: firstProject})
	if len(lots) != 1 || lots[0].TokenID != firstLot.TokenID {
		t.Fatalf("expected only the first project's lot, got %+v", lots)
	}

	retired, err := f.svc.RetireCredits(ctx, RetireRequest{Holder: testOwner, TokenID: firstLot.TokenID, Amount: 50})
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	all, _ := f.svc.ListRetirementCertificates(ctx, CertificateFilter{})
	if len(all) != 1 || all[0].ID != retired.CertificateID {
		t.Fatalf("expected one certificate, got %+v", all)
	}
	byHolder, _ := f.svc.ListRetirementCertificates(ctx, CertificateFilter{Holder: testOwner})
	if len(byHolder) != 1 {
		t.Fatalf("expected holder filter to match, got %d", len(byHolder))
	}
	other, _ := f.svc.ListRetirementCertificates(ctx, CertificateFilter{TokenID: secondLot.TokenID})
	if len(other) != 0 {
		t.Fatalf("expected no certificates on the second lot, got %d", len(other))
	}
}
