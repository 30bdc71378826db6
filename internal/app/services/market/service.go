// Package market implements the marketplace engine: fixed buy-price listings,
// escrow-funded peer offers and reserve auctions.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/domain/token"
	domtre "github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/services/ledger"
	"github.com/slotledger/market_layer/internal/app/services/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/pkg/logger"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidState    = errors.New("invalid state")
	ErrTokenNotFound   = errors.New("token not found")
	ErrListingNotFound = errors.New("listing not found")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrMarketInactive  = errors.New("market inactive for slot")
	ErrPriceProtection = errors.New("price protection triggered")
	ErrBidTooLow       = errors.New("bid too low")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// Custodian is the identity holding tokens escrowed to the marketplace while
// a reserve auction is open.
const Custodian = "marketplace"

// Service manages listings, offers and reserve auctions.
type Service struct {
	db   storage.DB
	fees market.FeeSchedule
	sink observe.Sink
	log  *logger.Logger
	now  func() time.Time
}

// New constructs a marketplace service.
func New(db storage.DB, fees market.FeeSchedule, sink observe.Sink, log *logger.Logger) *Service {
	if sink == nil {
		sink = observe.Noop{}
	}
	if log == nil {
		log = logger.NewDefault("market")
	}
	return &Service{
		db:   db,
		fees: fees,
		sink: sink,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Auction end and extension times are
// always evaluated against it lazily, at the moment an operation runs.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// SetBuyPrice lists a token for sale at a fixed price per value unit,
// overwriting any prior listing. Only the current owner may list, and the
// token's slot must have an active market.
func (s *Service) SetBuyPrice(ctx context.Context, caller, tokenID string, pricePerUnit int64) (market.Listing, error) {
	if pricePerUnit <= 0 {
		return market.Listing{}, fmt.Errorf("price per unit must be positive: %w", ErrInvalidAmount)
	}

	var listing market.Listing
	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := s.getToken(ctx, st, tokenID)
		if err != nil {
			return err
		}
		if tok.Owner != caller {
			return fmt.Errorf("caller %s does not own token %s: %w", caller, tokenID, ErrUnauthorized)
		}
		if _, err := s.getActiveSlot(ctx, st, tok.SlotID); err != nil {
			return err
		}
		if _, err := st.GetOpenAuctionByToken(ctx, tokenID); err == nil {
			return fmt.Errorf("token %s is in an open auction: %w", tokenID, ErrInvalidState)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		listing, err = st.PutListing(ctx, market.Listing{
			TokenID:      tokenID,
			Seller:       tok.Owner,
			SetBy:        caller,
			Currency:     domtre.NativeCurrency,
			PricePerUnit: pricePerUnit,
		})
		return err
	})
	if err != nil {
		return market.Listing{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindListingSet,
		Actor:   caller,
		TokenID: tokenID,
		Amount:  pricePerUnit,
	})
	s.log.WithField("token_id", tokenID).WithField("price_per_unit", pricePerUnit).Info("buy price set")
	return listing, nil
}

// CancelBuyPrice clears a listing. Only the owner or the identity that set
// the price may cancel.
func (s *Service) CancelBuyPrice(ctx context.Context, caller, tokenID string) error {
	err := s.db.Transact(ctx, func(st storage.Store) error {
		listing, err := st.GetListing(ctx, tokenID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("listing for token %s: %w", tokenID, ErrListingNotFound)
			}
			return err
		}
		tok, err := s.getToken(ctx, st, tokenID)
		if err != nil {
			return err
		}
		if caller != tok.Owner && caller != listing.SetBy {
			return fmt.Errorf("caller %s may not cancel listing for token %s: %w", caller, tokenID, ErrUnauthorized)
		}
		return st.DeleteListing(ctx, tokenID)
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindListingCanceled,
		Actor:   caller,
		TokenID: tokenID,
	})
	return nil
}

// Buy purchases a listed token outright. The price is units * pricePerUnit
// where units is the token's current value. maxUnitPrice protects the buyer
// against a listing price raised since they last looked, and minUnits against
// value drained out of the token.
func (s *Service) Buy(ctx context.Context, buyer, tokenID string, maxUnitPrice, minUnits int64) error {
	var (
		breakdown market.FeeBreakdown
		seller    string
	)
	err := s.db.Transact(ctx, func(st storage.Store) error {
		listing, err := st.GetListing(ctx, tokenID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("listing for token %s: %w", tokenID, ErrListingNotFound)
			}
			return err
		}
		tok, err := s.getToken(ctx, st, tokenID)
		if err != nil {
			return err
		}
		if buyer == tok.Owner {
			return fmt.Errorf("owner cannot buy own token: %w", ErrInvalidState)
		}
		if listing.PricePerUnit > maxUnitPrice {
			return fmt.Errorf("unit price %d exceeds max %d: %w", listing.PricePerUnit, maxUnitPrice, ErrPriceProtection)
		}
		units := tok.Value
		if units < minUnits {
			return fmt.Errorf("token holds %d units, expected at least %d: %w", units, minUnits, ErrPriceProtection)
		}
		gross, err := safeMul(units, listing.PricePerUnit)
		if err != nil {
			return err
		}
		if gross <= 0 {
			return fmt.Errorf("listing nets zero amount: %w", ErrInvalidAmount)
		}

		slot, err := s.getSlot(ctx, st, tok.SlotID)
		if err != nil {
			return err
		}
		if _, err := treasury.DebitFree(ctx, st, buyer, domtre.NativeCurrency, gross); err != nil {
			return err
		}
		breakdown, err = s.payOut(ctx, st, gross, slot, tok.Owner, "")
		if err != nil {
			return err
		}
		seller = tok.Owner
		if _, err := ledger.TransferOwnership(ctx, st, tokenID, buyer); err != nil {
			return err
		}
		return st.DeleteListing(ctx, tokenID)
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindTokenBought,
		Actor:   buyer,
		TokenID: tokenID,
		Amount:  breakdown.Gross,
		Fields: map[string]string{
			"seller":     seller,
			"seller_net": fmt.Sprintf("%d", breakdown.SellerNet),
		},
	})
	s.log.WithField("token_id", tokenID).
		WithField("buyer", buyer).
		WithField("gross", breakdown.Gross).
		WithField("seller_net", breakdown.SellerNet).
		Info("token bought")
	return nil
}

// MakeOffer places (or replaces) a funded offer on a token, locking the full
// amount in the buyer's escrow for as long as the offer stands.
func (s *Service) MakeOffer(ctx context.Context, buyer, tokenID string, amount int64, referrer string) (market.Offer, error) {
	if amount <= 0 {
		return market.Offer{}, fmt.Errorf("amount must be positive: %w", ErrInvalidAmount)
	}

	var (
		offer    market.Offer
		replaced int64
	)
	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := s.getToken(ctx, st, tokenID)
		if err != nil {
			return err
		}
		if tok.Owner == buyer {
			return fmt.Errorf("owner cannot offer on own token: %w", ErrInvalidState)
		}
		if _, err := s.getActiveSlot(ctx, st, tok.SlotID); err != nil {
			return err
		}

		// replacing an offer releases the old lock before taking the new one
		if prior, err := st.GetOffer(ctx, tokenID, buyer); err == nil {
			if _, err := treasury.ReleaseReserve(ctx, st, buyer, domtre.NativeCurrency, prior.Amount); err != nil {
				return err
			}
			replaced = prior.Amount
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		if _, err := treasury.LockReserve(ctx, st, buyer, domtre.NativeCurrency, amount); err != nil {
			return err
		}
		offer, err = st.PutOffer(ctx, market.Offer{
			TokenID:  tokenID,
			Buyer:    buyer,
			Currency: domtre.NativeCurrency,
			Amount:   amount,
			Referrer: referrer,
		})
		return err
	})
	if err != nil {
		return market.Offer{}, err
	}

	if replaced > 0 {
		s.sink.Emit(observe.Observation{
			Kind:     observe.KindEscrowReleased,
			Actor:    buyer,
			TokenID:  tokenID,
			Amount:   replaced,
			Currency: domtre.NativeCurrency,
		})
	}
	s.sink.Emit(observe.Observation{
		Kind:     observe.KindEscrowLocked,
		Actor:    buyer,
		TokenID:  tokenID,
		Amount:   amount,
		Currency: domtre.NativeCurrency,
	})
	s.sink.Emit(observe.Observation{
		Kind:    observe.KindOfferMade,
		Actor:   buyer,
		TokenID: tokenID,
		Amount:  amount,
	})
	s.log.WithField("token_id", tokenID).WithField("buyer", buyer).WithField("amount", amount).Info("offer made")
	return offer, nil
}

// CancelOffer withdraws the buyer's offer, releasing the locked amount back
// to free escrow exactly.
func (s *Service) CancelOffer(ctx context.Context, buyer, tokenID string) error {
	var amount int64
	err := s.db.Transact(ctx, func(st storage.Store) error {
		offer, err := st.GetOffer(ctx, tokenID, buyer)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("offer on token %s by %s: %w", tokenID, buyer, ErrOfferNotFound)
			}
			return err
		}
		if _, err := treasury.ReleaseReserve(ctx, st, buyer, domtre.NativeCurrency, offer.Amount); err != nil {
			return err
		}
		amount = offer.Amount
		return st.DeleteOffer(ctx, tokenID, buyer)
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:     observe.KindEscrowReleased,
		Actor:    buyer,
		TokenID:  tokenID,
		Amount:   amount,
		Currency: domtre.NativeCurrency,
	})
	s.sink.Emit(observe.Observation{
		Kind:    observe.KindOfferCanceled,
		Actor:   buyer,
		TokenID: tokenID,
		Amount:  amount,
	})
	return nil
}

// AcceptOffer settles a standing offer. minAmount protects the seller against
// the offer shrinking since they last looked. Any competing listing for the
// token is cleared.
func (s *Service) AcceptOffer(ctx context.Context, seller, tokenID, buyer string, minAmount int64) error {
	var breakdown market.FeeBreakdown
	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := s.getToken(ctx, st, tokenID)
		if err != nil {
			return err
		}
		if tok.Owner != seller {
			return fmt.Errorf("caller %s does not own token %s: %w", seller, tokenID, ErrUnauthorized)
		}
		offer, err := st.GetOffer(ctx, tokenID, buyer)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("offer on token %s by %s: %w", tokenID, buyer, ErrOfferNotFound)
			}
			return err
		}
		if offer.Amount < minAmount {
			return fmt.Errorf("offer amount %d below minimum %d: %w", offer.Amount, minAmount, ErrPriceProtection)
		}

		slot, err := s.getSlot(ctx, st, tok.SlotID)
		if err != nil {
			return err
		}
		if _, err := treasury.DebitReserved(ctx, st, buyer, domtre.NativeCurrency, offer.Amount); err != nil {
			return err
		}
		breakdown, err = s.payOut(ctx, st, offer.Amount, slot, seller, offer.Referrer)
		if err != nil {
			return err
		}
		if _, err := ledger.TransferOwnership(ctx, st, tokenID, buyer); err != nil {
			return err
		}
		if err := st.DeleteOffer(ctx, tokenID, buyer); err != nil {
			return err
		}
		return st.DeleteListing(ctx, tokenID)
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindOfferAccepted,
		Actor:   seller,
		TokenID: tokenID,
		Amount:  breakdown.Gross,
		Fields: map[string]string{
			"buyer":      buyer,
			"seller_net": fmt.Sprintf("%d", breakdown.SellerNet),
		},
	})
	s.log.WithField("token_id", tokenID).
		WithField("buyer", buyer).
		WithField("gross", breakdown.Gross).
		Info("offer accepted")
	return nil
}

// ListOffers returns the standing offers on a token.
func (s *Service) ListOffers(ctx context.Context, tokenID string) ([]market.Offer, error) {
	return s.db.ListOffersByToken(ctx, tokenID)
}

// GetListing returns the active listing for a token.
func (s *Service) GetListing(ctx context.Context, tokenID string) (market.Listing, error) {
	l, err := s.db.GetListing(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return market.Listing{}, fmt.Errorf("listing for token %s: %w", tokenID, ErrListingNotFound)
	}
	return l, err
}

// payOut splits a gross settlement amount and credits every party's free
// escrow: protocol fee to the treasury identity, royalty to the slot's
// receiver, referrer share when present, remainder to the seller. All cuts
// round down.
func (s *Service) payOut(ctx context.Context, st storage.Store, gross int64, slot token.Slot, seller, referrer string) (market.FeeBreakdown, error) {
	royaltyBps := slot.RoyaltyBps
	if slot.RoyaltyReceiver == "" {
		royaltyBps = 0
	}
	b := s.fees.Split(gross, royaltyBps, referrer != "")

	if b.Protocol > 0 {
		if _, err := treasury.CreditFree(ctx, st, s.fees.TreasuryIdentity, domtre.NativeCurrency, b.Protocol); err != nil {
			return market.FeeBreakdown{}, err
		}
	}
	if b.Royalty > 0 {
		if _, err := treasury.CreditFree(ctx, st, slot.RoyaltyReceiver, domtre.NativeCurrency, b.Royalty); err != nil {
			return market.FeeBreakdown{}, err
		}
	}
	if b.Referrer > 0 {
		if _, err := treasury.CreditFree(ctx, st, referrer, domtre.NativeCurrency, b.Referrer); err != nil {
			return market.FeeBreakdown{}, err
		}
	}
	if b.SellerNet > 0 {
		if _, err := treasury.CreditFree(ctx, st, seller, domtre.NativeCurrency, b.SellerNet); err != nil {
			return market.FeeBreakdown{}, err
		}
	}
	return b, nil
}

func (s *Service) getToken(ctx context.Context, st storage.Store, tokenID string) (token.Token, error) {
	tok, err := st.GetToken(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return token.Token{}, fmt.Errorf("token %s: %w", tokenID, ErrTokenNotFound)
	}
	return tok, err
}

func (s *Service) getSlot(ctx context.Context, st storage.Store, slotID string) (token.Slot, error) {
	return st.GetSlot(ctx, slotID)
}

func (s *Service) getActiveSlot(ctx context.Context, st storage.Store, slotID string) (token.Slot, error) {
	slot, err := st.GetSlot(ctx, slotID)
	if err != nil {
		return token.Slot{}, err
	}
	if !slot.MarketActive {
		return token.Slot{}, fmt.Errorf("slot %s: %w", slotID, ErrMarketInactive)
	}
	return slot, nil
}

func safeMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, fmt.Errorf("multiplying %d by %d: %w", a, b, ErrInvalidAmount)
	}
	return product, nil
}
