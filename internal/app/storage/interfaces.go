package storage

import (
	"context"
	"errors"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/domain/treasury"
)

// ErrNotFound is returned by every store when the requested record does not
// exist. Implementations wrap it with the record's identity.
var ErrNotFound = errors.New("not found")

// LedgerStore persists slots, tokens and approval state.
type LedgerStore interface {
	CreateSlot(ctx context.Context, s token.Slot) (token.Slot, error)
	UpdateSlot(ctx context.Context, s token.Slot) (token.Slot, error)
	GetSlot(ctx context.Context, id string) (token.Slot, error)
	ListSlots(ctx context.Context) ([]token.Slot, error)

	CreateToken(ctx context.Context, t token.Token) (token.Token, error)
	UpdateToken(ctx context.Context, t token.Token) (token.Token, error)
	GetToken(ctx context.Context, id string) (token.Token, error)
	DeleteToken(ctx context.Context, id string) error
	ListTokensByOwner(ctx context.Context, owner string) ([]token.Token, error)
	ListTokensBySlot(ctx context.Context, slotID string) ([]token.Token, error)

	SetBlanketApproval(ctx context.Context, owner, operator string, approved bool) error
	HasBlanketApproval(ctx context.Context, owner, operator string) (bool, error)

	SetValueAllowance(ctx context.Context, a token.ValueAllowance) error
	GetValueAllowance(ctx context.Context, tokenID, grantee string) (token.ValueAllowance, error)
	DeleteValueAllowance(ctx context.Context, tokenID, grantee string) error
	ClearValueAllowances(ctx context.Context, tokenID string) error
}

// MarketStore persists listings, offers and reserve auctions.
type MarketStore interface {
	PutListing(ctx context.Context, l market.Listing) (market.Listing, error)
	GetListing(ctx context.Context, tokenID string) (market.Listing, error)
	DeleteListing(ctx context.Context, tokenID string) error

	PutOffer(ctx context.Context, o market.Offer) (market.Offer, error)
	GetOffer(ctx context.Context, tokenID, buyer string) (market.Offer, error)
	DeleteOffer(ctx context.Context, tokenID, buyer string) error
	ListOffersByToken(ctx context.Context, tokenID string) ([]market.Offer, error)

	CreateAuction(ctx context.Context, a market.ReserveAuction) (market.ReserveAuction, error)
	UpdateAuction(ctx context.Context, a market.ReserveAuction) (market.ReserveAuction, error)
	GetAuction(ctx context.Context, id string) (market.ReserveAuction, error)
	GetOpenAuctionByToken(ctx context.Context, tokenID string) (market.ReserveAuction, error)
	ListAuctionsEndingBefore(ctx context.Context, cutoff time.Time) ([]market.ReserveAuction, error)
}

// TreasuryStore persists escrow accounts, exchange rates, vouchers and
// disbursement requests.
type TreasuryStore interface {
	GetEscrowAccount(ctx context.Context, identity, currency string) (treasury.EscrowAccount, error)
	PutEscrowAccount(ctx context.Context, acct treasury.EscrowAccount) (treasury.EscrowAccount, error)
	ListEscrowAccounts(ctx context.Context, identity string) ([]treasury.EscrowAccount, error)

	SetExchangeRate(ctx context.Context, rate treasury.ExchangeRate) (treasury.ExchangeRate, error)
	GetExchangeRate(ctx context.Context, currency string) (treasury.ExchangeRate, error)

	CreateVoucher(ctx context.Context, v treasury.Voucher) (treasury.Voucher, error)
	UpdateVoucher(ctx context.Context, v treasury.Voucher) (treasury.Voucher, error)
	GetVoucher(ctx context.Context, id string) (treasury.Voucher, error)

	CreateDisbursement(ctx context.Context, d treasury.Disbursement) (treasury.Disbursement, error)
	UpdateDisbursement(ctx context.Context, d treasury.Disbursement) (treasury.Disbursement, error)
	GetDisbursement(ctx context.Context, id string) (treasury.Disbursement, error)
	ListPendingDisbursements(ctx context.Context) ([]treasury.Disbursement, error)
}

// Store bundles every persistence concern of the engine.
type Store interface {
	LedgerStore
	MarketStore
	TreasuryStore
}

// Transactor executes a multi-step mutation as an all-or-nothing unit. The
// store passed to fn sees uncommitted writes; if fn returns an error nothing
// it wrote persists. Implementations also serialize transactions, so fn never
// observes another operation's partial effects.
type Transactor interface {
	Transact(ctx context.Context, fn func(Store) error) error
}

// DB is what services depend on: direct reads plus transactional writes.
type DB interface {
	Store
	Transactor
}
