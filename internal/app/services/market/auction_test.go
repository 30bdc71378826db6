package market

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/storage/memory"
)

const (
	auctionDuration  = 24 * time.Hour
	auctionExtension = 15 * time.Minute
)

// newAuctionFixture returns a market service with a controllable clock, an
// auctioned token and the seller's slot.
func newAuctionFixture(t *testing.T) (*Service, *memory.Store, *time.Time, string) {
	t.Helper()
	s, store, _ := newMarket(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	s.WithClock(func() time.Time { return *clock })

	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)
	return s, store, clock, tok.ID
}

func createAuction(t *testing.T, s *Service, tokenID string) domain.ReserveAuction {
	t.Helper()
	a, err := s.CreateReserveAuction(context.Background(), "seller", tokenID, 50, auctionDuration, auctionExtension)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return a
}

func TestCreateReserveAuctionTakesCustody(t *testing.T) {
	s, store, _, tokenID := newAuctionFixture(t)
	a := createAuction(t, s, tokenID)

	if a.Status != domain.AuctionCreated || !a.EndTime.IsZero() {
		t.Fatalf("unexpected auction %+v", a)
	}
	tok, _ := store.GetToken(context.Background(), tokenID)
	if tok.Owner != Custodian {
		t.Fatalf("owner = %s, want %s", tok.Owner, Custodian)
	}

	if _, err := s.CreateReserveAuction(context.Background(), "seller", tokenID, 50, auctionDuration, auctionExtension); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("second auction for escrowed token should fail ownership, got %v", err)
	}
}

func TestCreateReserveAuctionRejectsListedToken(t *testing.T) {
	s, _, _, tokenID := newAuctionFixture(t)
	ctx := context.Background()

	if _, err := s.SetBuyPrice(ctx, "seller", tokenID, 10); err != nil {
		t.Fatalf("set buy price: %v", err)
	}
	if _, err := s.CreateReserveAuction(ctx, "seller", tokenID, 50, auctionDuration, auctionExtension); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestFirstBidStartsCountdown(t *testing.T) {
	s, store, clock, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)

	if _, err := s.PlaceBid(ctx, "bidder1", a.ID, 49); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow below reserve, got %v", err)
	}

	a, err := s.PlaceBid(ctx, "bidder1", a.ID, 50)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if a.Status != domain.AuctionActive {
		t.Fatalf("status = %s, want active", a.Status)
	}
	wantEnd := clock.Add(auctionDuration)
	if !a.EndTime.Equal(wantEnd) {
		t.Fatalf("end time = %v, want %v", a.EndTime, wantEnd)
	}
	if acct := escrowOf(t, store, "bidder1"); acct.Free != 50 || acct.Reserved != 50 {
		t.Fatalf("bid not locked: %+v", acct)
	}
}

func TestOutbidRefundsAndAntiSnipeExtends(t *testing.T) {
	s, store, clock, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)
	fund(t, store, "bidder2", 100)

	a, err := s.PlaceBid(ctx, "bidder1", a.ID, 50)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	firstEnd := a.EndTime

	// equal bid is rejected
	if _, err := s.PlaceBid(ctx, "bidder2", a.ID, 50); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow on equal bid, got %v", err)
	}

	// bid one second before the end lands inside the extension window
	*clock = firstEnd.Add(-time.Second)
	a, err = s.PlaceBid(ctx, "bidder2", a.ID, 60)
	if err != nil {
		t.Fatalf("snipe bid: %v", err)
	}
	wantEnd := clock.Add(auctionExtension)
	if !a.EndTime.Equal(wantEnd) {
		t.Fatalf("end time = %v, want extended %v", a.EndTime, wantEnd)
	}
	if a.EndTime.Before(firstEnd) {
		t.Fatalf("end time moved earlier")
	}

	// outbid bidder fully refunded
	if acct := escrowOf(t, store, "bidder1"); acct.Free != 100 || acct.Reserved != 0 {
		t.Fatalf("bidder1 not refunded: %+v", acct)
	}
	if acct := escrowOf(t, store, "bidder2"); acct.Free != 40 || acct.Reserved != 60 {
		t.Fatalf("bidder2 lock wrong: %+v", acct)
	}
}

func TestRebidRefundsAndRelocks(t *testing.T) {
	s, store, _, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)

	if _, err := s.PlaceBid(ctx, "bidder1", a.ID, 50); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if _, err := s.PlaceBid(ctx, "bidder1", a.ID, 80); err != nil {
		t.Fatalf("rebid: %v", err)
	}

	// the old 50 is released before the 80 locks, never stacked
	if acct := escrowOf(t, store, "bidder1"); acct.Free != 20 || acct.Reserved != 80 {
		t.Fatalf("rebid stacked locks: %+v", acct)
	}
}

func TestBidAfterEndRejected(t *testing.T) {
	s, store, clock, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)
	fund(t, store, "bidder2", 100)

	a, err := s.PlaceBid(ctx, "bidder1", a.ID, 50)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}

	*clock = a.EndTime
	if _, err := s.PlaceBid(ctx, "bidder2", a.ID, 60); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after end, got %v", err)
	}
}

func TestFinalizeWithoutBidRejectedCancelSucceeds(t *testing.T) {
	s, store, _, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	if _, err := s.FinalizeReserveAuction(ctx, a.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if err := s.CancelReserveAuction(ctx, "mallory", a.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := s.CancelReserveAuction(ctx, "seller", a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	tok, _ := store.GetToken(ctx, tokenID)
	if tok.Owner != "seller" {
		t.Fatalf("token not returned to seller: %s", tok.Owner)
	}
	got, _ := s.GetAuction(ctx, a.ID)
	if got.Status != domain.AuctionCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}
}

func TestCancelAfterBidRejected(t *testing.T) {
	s, store, _, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)
	if _, err := s.PlaceBid(ctx, "bidder1", a.ID, 50); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := s.CancelReserveAuction(ctx, "seller", a.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestFinalizeSettlesAuction(t *testing.T) {
	s, store, clock, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)
	a, err := s.PlaceBid(ctx, "bidder1", a.ID, 100)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}

	if _, err := s.FinalizeReserveAuction(ctx, a.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("finalize before end should fail, got %v", err)
	}

	*clock = a.EndTime
	a, err = s.FinalizeReserveAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if a.Status != domain.AuctionFinalized {
		t.Fatalf("status = %s, want finalized", a.Status)
	}

	tok, _ := store.GetToken(ctx, tokenID)
	if tok.Owner != "bidder1" {
		t.Fatalf("token owner = %s, want bidder1", tok.Owner)
	}
	// gross 100: protocol 2, royalty 5, seller 93
	if got := escrowOf(t, store, "seller").Free; got != 93 {
		t.Fatalf("seller free = %d, want 93", got)
	}
	if acct := escrowOf(t, store, "bidder1"); acct.Free != 0 || acct.Reserved != 0 {
		t.Fatalf("bidder escrow not settled: %+v", acct)
	}

	if _, err := s.FinalizeReserveAuction(ctx, a.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double finalize should fail, got %v", err)
	}
}

func TestSweeperFinalizesEndedAuctions(t *testing.T) {
	s, store, clock, tokenID := newAuctionFixture(t)
	ctx := context.Background()
	a := createAuction(t, s, tokenID)

	fund(t, store, "bidder1", 100)
	a, err := s.PlaceBid(ctx, "bidder1", a.ID, 60)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}

	sweeper := NewSweeper(store, s, "@every 30s", nil)

	sweeper.SweepOnce(ctx)
	got, _ := s.GetAuction(ctx, a.ID)
	if got.Status != domain.AuctionActive {
		t.Fatalf("sweeper finalized a running auction")
	}

	*clock = a.EndTime.Add(time.Second)
	sweeper.SweepOnce(ctx)
	got, _ = s.GetAuction(ctx, a.ID)
	if got.Status != domain.AuctionFinalized {
		t.Fatalf("sweeper did not finalize ended auction: %s", got.Status)
	}
}

func TestBidObservationsEmitted(t *testing.T) {
	s, store, ring := newMarket(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return now })

	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)
	a, err := s.CreateReserveAuction(ctx, "seller", tok.ID, 50, auctionDuration, auctionExtension)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	fund(t, store, "bidder1", 100)
	if _, err := s.PlaceBid(ctx, "bidder1", a.ID, 50); err != nil {
		t.Fatalf("bid: %v", err)
	}

	if got := ring.RecentByKind(observe.KindBidPlaced, 1); len(got) != 1 || got[0].Amount != 50 {
		t.Fatalf("expected bid.placed observation, got %v", got)
	}
}

func TestBidEscrowObservations(t *testing.T) {
	s, store, ring := newMarket(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return now })

	slotID := seedSlot(t, store)
	tok := seedToken(t, store, slotID, "seller", 7)
	a, err := s.CreateReserveAuction(ctx, "seller", tok.ID, 50, auctionDuration, auctionExtension)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	fund(t, store, "bidder1", 100)
	fund(t, store, "bidder2", 100)

	if _, err := s.PlaceBid(ctx, "bidder1", a.ID, 50); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	locked := ring.RecentByKind(observe.KindEscrowLocked, 10)
	if len(locked) != 1 || locked[0].Actor != "bidder1" || locked[0].Amount != 50 {
		t.Fatalf("expected escrow.locked for first bid, got %+v", locked)
	}
	if rel := ring.RecentByKind(observe.KindEscrowReleased, 10); len(rel) != 0 {
		t.Fatalf("first bid should not release escrow, got %+v", rel)
	}

	// the outbid leader's lock is refunded before the new lock is taken
	if _, err := s.PlaceBid(ctx, "bidder2", a.ID, 60); err != nil {
		t.Fatalf("outbid: %v", err)
	}
	rel := ring.RecentByKind(observe.KindEscrowReleased, 10)
	if len(rel) != 1 || rel[0].Actor != "bidder1" || rel[0].Amount != 50 {
		t.Fatalf("expected escrow.released for outbid lock, got %+v", rel)
	}
	locked = ring.RecentByKind(observe.KindEscrowLocked, 10)
	if len(locked) != 2 || locked[0].Actor != "bidder2" || locked[0].Amount != 60 {
		t.Fatalf("expected escrow.locked for outbid amount, got %+v", locked)
	}
}
