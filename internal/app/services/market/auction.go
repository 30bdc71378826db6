package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	domtre "github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/services/ledger"
	"github.com/slotledger/market_layer/internal/app/services/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
)

// CreateReserveAuction opens an auction for a whole token. The token moves
// into marketplace custody until finalize or cancel. The countdown does not
// start until a bid meets the reserve price.
func (s *Service) CreateReserveAuction(ctx context.Context, seller, tokenID string, reservePrice int64, duration, extension time.Duration) (market.ReserveAuction, error) {
	if reservePrice <= 0 {
		return market.ReserveAuction{}, fmt.Errorf("reserve price must be positive: %w", ErrInvalidAmount)
	}
	if duration <= 0 || extension <= 0 {
		return market.ReserveAuction{}, fmt.Errorf("duration and extension must be positive: %w", ErrInvalidAmount)
	}

	var auction market.ReserveAuction
	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := s.getToken(ctx, st, tokenID)
		if err != nil {
			return err
		}
		if tok.Owner != seller {
			return fmt.Errorf("caller %s does not own token %s: %w", seller, tokenID, ErrUnauthorized)
		}
		if _, err := s.getActiveSlot(ctx, st, tok.SlotID); err != nil {
			return err
		}
		if _, err := st.GetListing(ctx, tokenID); err == nil {
			return fmt.Errorf("token %s has an active listing: %w", tokenID, ErrInvalidState)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if _, err := st.GetOpenAuctionByToken(ctx, tokenID); err == nil {
			return fmt.Errorf("token %s already has an open auction: %w", tokenID, ErrInvalidState)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		if _, err := ledger.TransferOwnership(ctx, st, tokenID, Custodian); err != nil {
			return err
		}
		auction, err = st.CreateAuction(ctx, market.ReserveAuction{
			TokenID:           tokenID,
			Seller:            seller,
			Currency:          domtre.NativeCurrency,
			ReservePrice:      reservePrice,
			Duration:          duration,
			ExtensionDuration: extension,
			Status:            market.AuctionCreated,
		})
		return err
	})
	if err != nil {
		return market.ReserveAuction{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:      observe.KindAuctionCreated,
		Actor:     seller,
		TokenID:   tokenID,
		AuctionID: auction.ID,
		Amount:    reservePrice,
	})
	s.log.WithField("auction_id", auction.ID).
		WithField("token_id", tokenID).
		WithField("reserve_price", reservePrice).
		Info("reserve auction created")
	return auction, nil
}

// PlaceBid bids on an open auction. The first qualifying bid must meet the
// reserve price and starts the countdown; later bids must strictly exceed the
// current bid. The full bid amount is locked in the bidder's escrow; the
// outbid bidder is refunded in full, and a rebid by the current leader is
// refunded and relocked rather than stacked. Bids landing inside the
// extension window push the end time out (it never moves earlier).
func (s *Service) PlaceBid(ctx context.Context, bidder, auctionID string, amount int64) (market.ReserveAuction, error) {
	if amount <= 0 {
		return market.ReserveAuction{}, fmt.Errorf("bid must be positive: %w", ErrInvalidAmount)
	}
	now := s.now()

	var (
		auction    market.ReserveAuction
		extended   bool
		prevBidder string
		prevBid    int64
	)
	err := s.db.Transact(ctx, func(st storage.Store) error {
		a, err := s.getAuction(ctx, st, auctionID)
		if err != nil {
			return err
		}
		if a.Status != market.AuctionCreated && a.Status != market.AuctionActive {
			return fmt.Errorf("auction %s is %s: %w", auctionID, a.Status, ErrInvalidState)
		}
		if a.Seller == bidder {
			return fmt.Errorf("seller cannot bid on own auction: %w", ErrInvalidState)
		}
		if a.Ended(now) {
			return fmt.Errorf("auction %s ended at %s: %w", auctionID, a.EndTime.Format(time.RFC3339), ErrInvalidState)
		}
		if a.Started() {
			if amount <= a.CurrentBid {
				return fmt.Errorf("bid %d does not exceed current bid %d: %w", amount, a.CurrentBid, ErrBidTooLow)
			}
		} else if amount < a.ReservePrice {
			return fmt.Errorf("bid %d below reserve price %d: %w", amount, a.ReservePrice, ErrBidTooLow)
		}

		// refund the standing lock: the outbid bidder's in full, or the
		// leader's own before relocking the larger amount
		if a.Started() {
			if _, err := treasury.ReleaseReserve(ctx, st, a.CurrentBidder, a.Currency, a.CurrentBid); err != nil {
				return err
			}
			prevBidder, prevBid = a.CurrentBidder, a.CurrentBid
		}
		if _, err := treasury.LockReserve(ctx, st, bidder, a.Currency, amount); err != nil {
			return err
		}

		if !a.Started() {
			a.StartTime = now
			a.EndTime = now.Add(a.Duration)
			a.Status = market.AuctionActive
		}
		a.CurrentBid = amount
		a.CurrentBidder = bidder
		if !now.Before(a.EndTime.Add(-a.ExtensionDuration)) {
			if end := now.Add(a.ExtensionDuration); end.After(a.EndTime) {
				a.EndTime = end
				extended = true
			}
		}

		auction, err = st.UpdateAuction(ctx, a)
		return err
	})
	if err != nil {
		return market.ReserveAuction{}, err
	}

	if prevBid > 0 {
		s.sink.Emit(observe.Observation{
			Kind:      observe.KindEscrowReleased,
			Actor:     prevBidder,
			TokenID:   auction.TokenID,
			AuctionID: auctionID,
			Amount:    prevBid,
			Currency:  auction.Currency,
		})
	}
	s.sink.Emit(observe.Observation{
		Kind:      observe.KindEscrowLocked,
		Actor:     bidder,
		TokenID:   auction.TokenID,
		AuctionID: auctionID,
		Amount:    amount,
		Currency:  auction.Currency,
	})
	s.sink.Emit(observe.Observation{
		Kind:      observe.KindBidPlaced,
		Actor:     bidder,
		TokenID:   auction.TokenID,
		AuctionID: auctionID,
		Amount:    amount,
	})
	if extended {
		s.sink.Emit(observe.Observation{
			Kind:      observe.KindAuctionExtended,
			AuctionID: auctionID,
			Fields:    map[string]string{"end_time": auction.EndTime.Format(time.RFC3339)},
		})
	}
	s.log.WithField("auction_id", auctionID).
		WithField("bidder", bidder).
		WithField("amount", amount).
		WithField("end_time", auction.EndTime).
		Info("bid placed")
	return auction, nil
}

// FinalizeReserveAuction settles an ended auction: the token goes to the
// highest bidder and the locked bid, minus fees, to the seller. An auction
// that never received a bid cannot be finalized, only canceled.
func (s *Service) FinalizeReserveAuction(ctx context.Context, auctionID string) (market.ReserveAuction, error) {
	now := s.now()

	var (
		auction   market.ReserveAuction
		breakdown market.FeeBreakdown
	)
	err := s.db.Transact(ctx, func(st storage.Store) error {
		a, err := s.getAuction(ctx, st, auctionID)
		if err != nil {
			return err
		}
		if a.Status != market.AuctionActive || !a.Started() {
			return fmt.Errorf("auction %s has no qualifying bid: %w", auctionID, ErrInvalidState)
		}
		if !a.Ended(now) {
			return fmt.Errorf("auction %s runs until %s: %w", auctionID, a.EndTime.Format(time.RFC3339), ErrInvalidState)
		}

		tok, err := s.getToken(ctx, st, a.TokenID)
		if err != nil {
			return err
		}
		slot, err := s.getSlot(ctx, st, tok.SlotID)
		if err != nil {
			return err
		}
		if _, err := treasury.DebitReserved(ctx, st, a.CurrentBidder, a.Currency, a.CurrentBid); err != nil {
			return err
		}
		breakdown, err = s.payOut(ctx, st, a.CurrentBid, slot, a.Seller, "")
		if err != nil {
			return err
		}
		if _, err := ledger.TransferOwnership(ctx, st, a.TokenID, a.CurrentBidder); err != nil {
			return err
		}
		a.Status = market.AuctionFinalized
		auction, err = st.UpdateAuction(ctx, a)
		return err
	})
	if err != nil {
		return market.ReserveAuction{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:      observe.KindAuctionFinalized,
		Actor:     auction.CurrentBidder,
		TokenID:   auction.TokenID,
		AuctionID: auctionID,
		Amount:    auction.CurrentBid,
		Fields: map[string]string{
			"seller":     auction.Seller,
			"seller_net": fmt.Sprintf("%d", breakdown.SellerNet),
		},
	})
	s.log.WithField("auction_id", auctionID).
		WithField("winner", auction.CurrentBidder).
		WithField("amount", auction.CurrentBid).
		Info("auction finalized")
	return auction, nil
}

// CancelReserveAuction withdraws a bid-less auction and returns the token to
// the seller. Once a qualifying bid exists the auction is binding.
func (s *Service) CancelReserveAuction(ctx context.Context, caller, auctionID string) error {
	var auction market.ReserveAuction
	err := s.db.Transact(ctx, func(st storage.Store) error {
		a, err := s.getAuction(ctx, st, auctionID)
		if err != nil {
			return err
		}
		if a.Seller != caller {
			return fmt.Errorf("caller %s did not create auction %s: %w", caller, auctionID, ErrUnauthorized)
		}
		if a.Status != market.AuctionCreated || a.Started() {
			return fmt.Errorf("auction %s has a bid and is binding: %w", auctionID, ErrInvalidState)
		}

		if _, err := ledger.TransferOwnership(ctx, st, a.TokenID, a.Seller); err != nil {
			return err
		}
		a.Status = market.AuctionCanceled
		auction, err = st.UpdateAuction(ctx, a)
		return err
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:      observe.KindAuctionCanceled,
		Actor:     caller,
		TokenID:   auction.TokenID,
		AuctionID: auctionID,
	})
	s.log.WithField("auction_id", auctionID).Info("auction canceled")
	return nil
}

// GetAuction returns an auction by ID.
func (s *Service) GetAuction(ctx context.Context, auctionID string) (market.ReserveAuction, error) {
	return s.getAuction(ctx, s.db, auctionID)
}

func (s *Service) getAuction(ctx context.Context, st storage.MarketStore, auctionID string) (market.ReserveAuction, error) {
	a, err := st.GetAuction(ctx, auctionID)
	if errors.Is(err, storage.ErrNotFound) {
		return market.ReserveAuction{}, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
	}
	return a, err
}
