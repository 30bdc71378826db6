package market

import (
	"context"
	"errors"
	"testing"

	domain "github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/domain/token"
	domtre "github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/services/treasury"
	"github.com/slotledger/market_layer/internal/app/storage/memory"
)

func newMarket(t *testing.T) (*Service, *memory.Store, *observe.Ring) {
	t.Helper()
	store := memory.New()
	fees := domain.FeeSchedule{ProtocolBps: 250, ReferrerBps: 100, TreasuryIdentity: "protocol"}
	ring := observe.NewRing(100)
	return New(store, fees, ring, nil), store, ring
}

func seedSlot(t *testing.T, store *memory.Store) string {
	t.Helper()
	slot, err := store.CreateSlot(context.Background(), token.Slot{
		Name:            "gold",
		MarketActive:    true,
		RoyaltyReceiver: "royalty-recv",
		RoyaltyBps:      500,
	})
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot.ID
}

func seedToken(t *testing.T, store *memory.Store, slotID, owner string, value int64) token.Token {
	t.Helper()
	tok, err := store.CreateToken(context.Background(), token.Token{SlotID: slotID, Owner: owner, Value: value})
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}
	return tok
}

func fund(t *testing.T, store *memory.Store, id string, amount int64) {
	t.Helper()
	if _, err := treasury.CreditFree(context.Background(), store, id, domtre.NativeCurrency, amount); err != nil {
		t.Fatalf("fund %s: %v", id, err)
	}
}

func escrowOf(t *testing.T, store *memory.Store, id string) domtre.EscrowAccount {
	t.Helper()
	acct, err := store.GetEscrowAccount(context.Background(), id, domtre.NativeCurrency)
	if err != nil {
		return domtre.EscrowAccount{Identity: id, Currency: domtre.NativeCurrency}
	}
	return acct
}

func TestSetBuyPriceOwnerOnly(t *testing.T) {
	s, store, _ := newMarket(t)
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	if _, err := s.SetBuyPrice(context.Background(), "mallory", tok.ID, 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := s.SetBuyPrice(context.Background(), "seller", tok.ID, 100); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
}

func TestSetBuyPriceInactiveMarket(t *testing.T) {
	s, store, _ := newMarket(t)
	slot, err := store.CreateSlot(context.Background(), token.Slot{Name: "dormant", MarketActive: false})
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	tok := seedToken(t, store, slot.ID, "seller", 7)

	if _, err := s.SetBuyPrice(context.Background(), "seller", tok.ID, 100); !errors.Is(err, ErrMarketInactive) {
		t.Fatalf("expected ErrMarketInactive, got %v", err)
	}
}

func TestBuySettlesAndClearsListing(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	if _, err := s.SetBuyPrice(ctx, "seller", tok.ID, 100); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
	fund(t, store, "buyer", 700)

	if err := s.Buy(ctx, "buyer", tok.ID, 100, 7); err != nil {
		t.Fatalf("buy: %v", err)
	}

	bought, _ := store.GetToken(ctx, tok.ID)
	if bought.Owner != "buyer" {
		t.Fatalf("owner = %s, want buyer", bought.Owner)
	}
	if _, err := s.GetListing(ctx, tok.ID); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("listing not cleared: %v", err)
	}

	// gross 700: protocol floor(700*250/10000)=17, royalty floor(700*500/10000)=35
	if got := escrowOf(t, store, "buyer").Free; got != 0 {
		t.Fatalf("buyer free = %d, want 0", got)
	}
	if got := escrowOf(t, store, "seller").Free; got != 648 {
		t.Fatalf("seller free = %d, want 648", got)
	}
	if got := escrowOf(t, store, "protocol").Free; got != 17 {
		t.Fatalf("protocol free = %d, want 17", got)
	}
	if got := escrowOf(t, store, "royalty-recv").Free; got != 35 {
		t.Fatalf("royalty free = %d, want 35", got)
	}
}

func TestBuyPriceProtection(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	if _, err := s.SetBuyPrice(ctx, "seller", tok.ID, 100); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
	fund(t, store, "buyer", 700)

	if err := s.Buy(ctx, "buyer", tok.ID, 99, 7); !errors.Is(err, ErrPriceProtection) {
		t.Fatalf("expected ErrPriceProtection on unit price, got %v", err)
	}
	if err := s.Buy(ctx, "buyer", tok.ID, 100, 8); !errors.Is(err, ErrPriceProtection) {
		t.Fatalf("expected ErrPriceProtection on min units, got %v", err)
	}
}

func TestBuyInsufficientFundsRollsBack(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	if _, err := s.SetBuyPrice(ctx, "seller", tok.ID, 100); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
	fund(t, store, "buyer", 100)

	err := s.Buy(ctx, "buyer", tok.ID, 100, 7)
	if !errors.Is(err, treasury.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	unchanged, _ := store.GetToken(ctx, tok.ID)
	if unchanged.Owner != "seller" {
		t.Fatalf("ownership changed on failed buy")
	}
	if _, err := s.GetListing(ctx, tok.ID); err != nil {
		t.Fatalf("listing lost on failed buy: %v", err)
	}
	if got := escrowOf(t, store, "buyer").Free; got != 100 {
		t.Fatalf("buyer escrow mutated on failed buy: %d", got)
	}
}

func TestCancelBuyPriceBySetter(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	if _, err := s.SetBuyPrice(ctx, "seller", tok.ID, 100); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
	if err := s.CancelBuyPrice(ctx, "mallory", tok.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := s.CancelBuyPrice(ctx, "seller", tok.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.GetListing(ctx, tok.ID); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("listing survived cancel: %v", err)
	}
}

func TestOfferLockAndExactRefund(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	fund(t, store, "buyer", 500)

	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 300, ""); err != nil {
		t.Fatalf("make offer: %v", err)
	}
	acct := escrowOf(t, store, "buyer")
	if acct.Free != 200 || acct.Reserved != 300 {
		t.Fatalf("after offer %+v", acct)
	}

	if err := s.CancelOffer(ctx, "buyer", tok.ID); err != nil {
		t.Fatalf("cancel offer: %v", err)
	}
	acct = escrowOf(t, store, "buyer")
	if acct.Free != 500 || acct.Reserved != 0 {
		t.Fatalf("escrow round trip not exact: %+v", acct)
	}
}

func TestMakeOfferReplacesPriorLock(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	fund(t, store, "buyer", 500)

	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 300, ""); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 450, ""); err != nil {
		t.Fatalf("replacement offer: %v", err)
	}
	acct := escrowOf(t, store, "buyer")
	if acct.Free != 50 || acct.Reserved != 450 {
		t.Fatalf("replacement did not relock: %+v", acct)
	}

	offers, _ := s.ListOffers(ctx, tok.ID)
	if len(offers) != 1 || offers[0].Amount != 450 {
		t.Fatalf("unexpected offers %+v", offers)
	}
}

func TestMakeOfferInsufficientFunds(t *testing.T) {
	s, store, _ := newMarket(t)
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	fund(t, store, "buyer", 100)
	_, err := s.MakeOffer(context.Background(), "buyer", tok.ID, 300, "")
	if !errors.Is(err, treasury.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if acct := escrowOf(t, store, "buyer"); acct.Free != 100 || acct.Reserved != 0 {
		t.Fatalf("escrow mutated on failed offer: %+v", acct)
	}
}

func TestAcceptOfferWithReferrer(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	if _, err := s.SetBuyPrice(ctx, "seller", tok.ID, 999); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
	fund(t, store, "buyer", 1000)
	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 1000, "ref"); err != nil {
		t.Fatalf("make offer: %v", err)
	}

	if err := s.AcceptOffer(ctx, "seller", tok.ID, "buyer", 1001); !errors.Is(err, ErrPriceProtection) {
		t.Fatalf("expected ErrPriceProtection on minAmount, got %v", err)
	}
	if err := s.AcceptOffer(ctx, "seller", tok.ID, "buyer", 1000); err != nil {
		t.Fatalf("accept offer: %v", err)
	}

	// gross 1000: protocol 25, royalty 50, referrer 10, seller 915
	if got := escrowOf(t, store, "seller").Free; got != 915 {
		t.Fatalf("seller free = %d, want 915", got)
	}
	if got := escrowOf(t, store, "protocol").Free; got != 25 {
		t.Fatalf("protocol free = %d, want 25", got)
	}
	if got := escrowOf(t, store, "royalty-recv").Free; got != 50 {
		t.Fatalf("royalty free = %d, want 50", got)
	}
	if got := escrowOf(t, store, "ref").Free; got != 10 {
		t.Fatalf("referrer free = %d, want 10", got)
	}
	if acct := escrowOf(t, store, "buyer"); acct.Free != 0 || acct.Reserved != 0 {
		t.Fatalf("buyer escrow not drained: %+v", acct)
	}

	sold, _ := store.GetToken(ctx, tok.ID)
	if sold.Owner != "buyer" {
		t.Fatalf("owner = %s, want buyer", sold.Owner)
	}
	if _, err := s.GetListing(ctx, tok.ID); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("competing listing not cleared: %v", err)
	}
	offers, _ := s.ListOffers(ctx, tok.ID)
	if len(offers) != 0 {
		t.Fatalf("offer survived acceptance: %+v", offers)
	}
}

func TestAcceptOfferRequiresOwner(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	fund(t, store, "buyer", 100)
	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 100, ""); err != nil {
		t.Fatalf("make offer: %v", err)
	}
	if err := s.AcceptOffer(ctx, "mallory", tok.ID, "buyer", 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFeeSplitFloorRounding(t *testing.T) {
	fees := domain.FeeSchedule{ProtocolBps: 250, ReferrerBps: 100, TreasuryIdentity: "protocol"}

	// gross 39: protocol and referrer cuts floor to zero, royalty to 1
	b := fees.Split(39, 500, true)
	if b.Protocol != 0 || b.Royalty != 1 || b.Referrer != 0 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if b.Protocol+b.Royalty+b.Referrer+b.SellerNet != b.Gross {
		t.Fatalf("breakdown does not sum to gross: %+v", b)
	}
}

func TestFeeSplitLargeGross(t *testing.T) {
	fees := domain.FeeSchedule{ProtocolBps: 250, ReferrerBps: 100, TreasuryIdentity: "protocol"}

	// near the int64 ceiling the naive gross*bps product would wrap negative
	const gross = int64(1_000_000_000_000_000_000)
	b := fees.Split(gross, 500, true)
	if b.Protocol != 25_000_000_000_000_000 || b.Royalty != 50_000_000_000_000_000 || b.Referrer != 10_000_000_000_000_000 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if b.Protocol < 0 || b.Royalty < 0 || b.Referrer < 0 || b.SellerNet < 0 {
		t.Fatalf("negative cut in breakdown %+v", b)
	}
	if b.Protocol+b.Royalty+b.Referrer+b.SellerNet != gross {
		t.Fatalf("breakdown does not sum to gross: %+v", b)
	}
}

func TestAcceptOfferLargeGrossConserved(t *testing.T) {
	s, store, _ := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	const gross = int64(1_000_000_000_000_000_000)
	fund(t, store, "buyer", gross)
	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, gross, "ref"); err != nil {
		t.Fatalf("make offer: %v", err)
	}
	if err := s.AcceptOffer(ctx, "seller", tok.ID, "buyer", gross); err != nil {
		t.Fatalf("accept offer: %v", err)
	}

	credited := escrowOf(t, store, "seller").Free +
		escrowOf(t, store, "protocol").Free +
		escrowOf(t, store, "royalty-recv").Free +
		escrowOf(t, store, "ref").Free
	if credited != gross {
		t.Fatalf("credited %d against gross %d", credited, gross)
	}
	if got := escrowOf(t, store, "seller").Free; got != 915_000_000_000_000_000 {
		t.Fatalf("seller free = %d, want 915000000000000000", got)
	}
	if acct := escrowOf(t, store, "buyer"); acct.Free != 0 || acct.Reserved != 0 {
		t.Fatalf("buyer escrow not drained: %+v", acct)
	}
}

func TestOfferEscrowObservations(t *testing.T) {
	s, store, ring := newMarket(t)
	ctx := context.Background()
	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)

	fund(t, store, "buyer", 500)

	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 300, ""); err != nil {
		t.Fatalf("make offer: %v", err)
	}
	locked := ring.RecentByKind(observe.KindEscrowLocked, 10)
	if len(locked) != 1 || locked[0].Amount != 300 || locked[0].Actor != "buyer" {
		t.Fatalf("expected one escrow.locked for 300, got %+v", locked)
	}
	if rel := ring.RecentByKind(observe.KindEscrowReleased, 10); len(rel) != 0 {
		t.Fatalf("fresh offer should not release escrow, got %+v", rel)
	}

	// replacing the offer releases the old lock and takes the new one
	if _, err := s.MakeOffer(ctx, "buyer", tok.ID, 450, ""); err != nil {
		t.Fatalf("replacement offer: %v", err)
	}
	rel := ring.RecentByKind(observe.KindEscrowReleased, 10)
	if len(rel) != 1 || rel[0].Amount != 300 {
		t.Fatalf("expected escrow.released for prior lock 300, got %+v", rel)
	}
	locked = ring.RecentByKind(observe.KindEscrowLocked, 10)
	if len(locked) != 2 || locked[0].Amount != 450 {
		t.Fatalf("expected escrow.locked for 450, got %+v", locked)
	}

	if err := s.CancelOffer(ctx, "buyer", tok.ID); err != nil {
		t.Fatalf("cancel offer: %v", err)
	}
	rel = ring.RecentByKind(observe.KindEscrowReleased, 10)
	if len(rel) != 2 || rel[0].Amount != 450 {
		t.Fatalf("expected escrow.released for canceled lock 450, got %+v", rel)
	}
}
