package treasury

import (
	"context"
	"errors"
	"testing"

	domain "github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/identity"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	auth := identity.NewStatic([]string{"admin"}, []string{"s1", "s2", "s3"}, nil)
	return New(store, auth, "treasury", 2, observe.NewRing(100), nil), store
}

func TestDepositNativeOneToOne(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	acct, err := s.Deposit(ctx, "alice", domain.NativeCurrency, 500)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if acct.Free != 500 || acct.Reserved != 0 {
		t.Fatalf("unexpected account %+v", acct)
	}
}

func TestDepositConvertsWithFloor(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	// 1 USD = 7/2 units
	if _, err := s.SetExchangeRate(ctx, "admin", "USD", 7, 2); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	acct, err := s.Deposit(ctx, "alice", "USD", 3)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// floor(3 * 7 / 2) = 10
	if acct.Free != 10 {
		t.Fatalf("free = %d, want 10", acct.Free)
	}
	if acct.Currency != domain.NativeCurrency {
		t.Fatalf("deposit landed in %s, want native", acct.Currency)
	}
}

func TestDepositUnknownCurrency(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Deposit(context.Background(), "alice", "EUR", 10)
	if !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
}

func TestSetExchangeRateRequiresAdmin(t *testing.T) {
	s, _ := newService(t)
	_, err := s.SetExchangeRate(context.Background(), "mallory", "USD", 1, 1)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestEscrowLockReleaseRoundTrip(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "alice", domain.NativeCurrency, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := LockReserve(ctx, store, "alice", domain.NativeCurrency, 60); err != nil {
		t.Fatalf("lock: %v", err)
	}
	acct, _ := s.Balance(ctx, "alice")
	if acct.Free != 40 || acct.Reserved != 60 {
		t.Fatalf("after lock %+v", acct)
	}

	if _, err := LockReserve(ctx, store, "alice", domain.NativeCurrency, 50); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if _, err := ReleaseReserve(ctx, store, "alice", domain.NativeCurrency, 60); err != nil {
		t.Fatalf("release: %v", err)
	}
	acct, _ = s.Balance(ctx, "alice")
	if acct.Free != 100 || acct.Reserved != 0 {
		t.Fatalf("round trip not exact: %+v", acct)
	}
}

func TestVoucherRedeemOnce(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	v, err := s.IssueVoucher(ctx, "admin", "bob", 250)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := s.RedeemVoucher(ctx, "mallory", v.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-bearer, got %v", err)
	}

	acct, err := s.RedeemVoucher(ctx, "bob", v.ID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if acct.Free != 250 {
		t.Fatalf("free = %d, want 250", acct.Free)
	}

	if _, err := s.RedeemVoucher(ctx, "bob", v.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on re-redeem, got %v", err)
	}
	acct, _ = s.Balance(ctx, "bob")
	if acct.Free != 250 {
		t.Fatalf("balance changed on failed re-redeem: %d", acct.Free)
	}
}

func TestBuyValueWithExternalFunds(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()

	slot, err := store.CreateSlot(ctx, slotFixture())
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	if _, err := s.SetExchangeRate(ctx, "admin", "USD", 3, 1); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	tok, err := s.BuyValueWithExternalFunds(ctx, "alice", "USD", 10, slot.ID)
	if err != nil {
		t.Fatalf("buy value: %v", err)
	}
	if tok.Owner != "alice" || tok.Value != 30 || tok.SlotID != slot.ID {
		t.Fatalf("unexpected token %+v", tok)
	}
}

func TestDisbursementThresholdAndIdempotency(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "treasury", domain.NativeCurrency, 1000); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}

	d, err := s.ProposeDisbursement(ctx, "s1", "ops", 400)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if d.Status != domain.DisbursementPending || len(d.Confirmations) != 1 {
		t.Fatalf("unexpected proposal %+v", d)
	}

	// proposer re-confirming changes nothing
	d, err = s.ConfirmDisbursement(ctx, "s1", d.ID)
	if err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if len(d.Confirmations) != 1 {
		t.Fatalf("duplicate confirmation recorded: %v", d.Confirmations)
	}

	d, err = s.ConfirmDisbursement(ctx, "s2", d.ID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if d.Status != domain.DisbursementExecuted {
		t.Fatalf("status = %s, want executed", d.Status)
	}

	tre, _ := s.Balance(ctx, "treasury")
	ops, _ := s.Balance(ctx, "ops")
	if tre.Free != 600 || ops.Free != 400 {
		t.Fatalf("balances %d/%d, want 600/400", tre.Free, ops.Free)
	}

	// confirming an executed request is a no-op success
	d, err = s.ConfirmDisbursement(ctx, "s3", d.ID)
	if err != nil {
		t.Fatalf("confirm after execute: %v", err)
	}
	if d.Status != domain.DisbursementExecuted || len(d.Confirmations) != 2 {
		t.Fatalf("executed request mutated: %+v", d)
	}
	if tre, _ := s.Balance(ctx, "treasury"); tre.Free != 600 {
		t.Fatalf("treasury debited twice: %d", tre.Free)
	}
}

func TestDisbursementFailureStaysPendingForRetry(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	d, err := s.ProposeDisbursement(ctx, "s1", "ops", 400)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// threshold reached, but the treasury cannot cover the payout
	_, err = s.ConfirmDisbursement(ctx, "s2", d.ID)
	if !errors.Is(err, ErrDisbursementFailed) {
		t.Fatalf("expected ErrDisbursementFailed, got %v", err)
	}

	stored, err := s.GetDisbursement(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.DisbursementPending || len(stored.Confirmations) != 2 {
		t.Fatalf("failed execution lost state: %+v", stored)
	}

	// fund the treasury; any signer's confirmation retries the payout
	if _, err := s.Deposit(ctx, "treasury", domain.NativeCurrency, 500); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	stored, err = s.ConfirmDisbursement(ctx, "s2", d.ID)
	if err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if stored.Status != domain.DisbursementExecuted {
		t.Fatalf("retry did not execute: %+v", stored)
	}
	if ops, _ := s.Balance(ctx, "ops"); ops.Free != 400 {
		t.Fatalf("ops balance = %d, want 400", ops.Free)
	}
}

func TestProposeDisbursementRequiresSigner(t *testing.T) {
	s, _ := newService(t)
	_, err := s.ProposeDisbursement(context.Background(), "mallory", "ops", 10)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDuplicateConfirmNotObserved(t *testing.T) {
	store := memory.New()
	auth := identity.NewStatic([]string{"admin"}, []string{"s1", "s2", "s3"}, nil)
	ring := observe.NewRing(100)
	s := New(store, auth, "treasury", 3, ring, nil)
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "treasury", domain.NativeCurrency, 1000); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	d, err := s.ProposeDisbursement(ctx, "s1", "ops", 400)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	if _, err := s.ConfirmDisbursement(ctx, "s2", d.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := ring.RecentByKind(observe.KindDisbursementConfirmed, 10); len(got) != 1 {
		t.Fatalf("expected one disbursement.confirmed, got %+v", got)
	}

	// re-confirming changes nothing and must not appear in the stream
	if _, err := s.ConfirmDisbursement(ctx, "s2", d.ID); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if got := ring.RecentByKind(observe.KindDisbursementConfirmed, 10); len(got) != 1 {
		t.Fatalf("duplicate confirm observed: %+v", got)
	}
}
