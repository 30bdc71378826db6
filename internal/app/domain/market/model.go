// Package market defines listings, peer offers and reserve auctions.
package market

import (
	"time"
)

// Listing is a fixed buy-price sale for a whole token. At most one listing is
// active per token.
type Listing struct {
	TokenID      string
	Seller       string
	SetBy        string
	Currency     string
	PricePerUnit int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Offer is a funded peer offer for a token. The amount is locked in the
// buyer's escrow for as long as the offer stands. At most one offer is active
// per (token, buyer) pair.
type Offer struct {
	ID        string
	TokenID   string
	Buyer     string
	Currency  string
	Amount    int64
	Referrer  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuctionStatus tracks the reserve-auction lifecycle.
type AuctionStatus string

const (
	// AuctionCreated means the auction exists but no qualifying bid has been
	// placed; the countdown has not started.
	AuctionCreated AuctionStatus = "created"
	// AuctionActive means a qualifying bid started the countdown; the auction
	// is binding and can no longer be canceled.
	AuctionActive    AuctionStatus = "active"
	AuctionFinalized AuctionStatus = "finalized"
	AuctionCanceled  AuctionStatus = "canceled"
)

// ReserveAuction is a time-boxed auction that becomes binding once a bid meets
// the reserve price. End and extension times are evaluated lazily against a
// caller-supplied now.
type ReserveAuction struct {
	ID                string
	TokenID           string
	Seller            string
	Currency          string
	ReservePrice      int64
	CurrentBid        int64
	CurrentBidder     string
	Duration          time.Duration
	ExtensionDuration time.Duration
	StartTime         time.Time
	EndTime           time.Time
	Status            AuctionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Started reports whether a qualifying bid has begun the countdown.
func (a ReserveAuction) Started() bool {
	return a.CurrentBidder != ""
}

// Ended reports whether the auction countdown has passed at the given time.
// An auction that never received a bid has no end time and never ends.
func (a ReserveAuction) Ended(now time.Time) bool {
	return a.Started() && !now.Before(a.EndTime)
}

// FeeSchedule is the pluggable fee-split policy applied to every settlement.
// All cuts are expressed in basis points of the gross amount and are rounded
// down; the remainder goes to the seller.
type FeeSchedule struct {
	ProtocolBps      int64
	ReferrerBps      int64
	TreasuryIdentity string
}

// FeeBreakdown is the result of applying a FeeSchedule to a gross amount.
type FeeBreakdown struct {
	Gross     int64
	Protocol  int64
	Royalty   int64
	Referrer  int64
	SellerNet int64
}

// Split computes the fee breakdown for a gross amount. Royalty basis points
// come from the slot configuration; the referrer cut applies only when a
// referrer is present.
func (f FeeSchedule) Split(gross, royaltyBps int64, hasReferrer bool) FeeBreakdown {
	b := FeeBreakdown{Gross: gross}
	b.Protocol = bpsOf(gross, f.ProtocolBps)
	b.Royalty = bpsOf(gross, royaltyBps)
	if hasReferrer {
		b.Referrer = bpsOf(gross, f.ReferrerBps)
	}
	b.SellerNet = gross - b.Protocol - b.Royalty - b.Referrer
	return b
}

// bpsOf returns floor(gross*bps/10_000) without an overflowing intermediate
// product. With gross = q*10_000 + r the cut is exactly q*bps + r*bps/10_000,
// and both terms stay within int64 for any bps in [0, 10_000].
func bpsOf(gross, bps int64) int64 {
	return gross/10_000*bps + gross%10_000*bps/10_000
}
