// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Queries run
// against q, which is either the pooled handle or, inside Transact, an open
// transaction.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

var _ storage.Store = (*Store)(nil)
var _ storage.Transactor = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Transact runs fn inside a database transaction. The transaction commits only
// when fn returns nil.
func (s *Store) Transact(ctx context.Context, fn func(storage.Store) error) error {
	if s.db == nil {
		return errors.New("transact on transaction-scoped store")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

// --- LedgerStore ------------------------------------------------------------

type slotRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	MarketActive    bool      `db:"market_active"`
	RoyaltyReceiver string    `db:"royalty_receiver"`
	RoyaltyBps      int64     `db:"royalty_bps"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r slotRow) domain() token.Slot {
	return token.Slot(r)
}

func (s *Store) CreateSlot(ctx context.Context, sl token.Slot) (token.Slot, error) {
	if sl.ID == "" {
		sl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sl.CreatedAt = now
	sl.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_slots (id, name, market_active, royalty_receiver, royalty_bps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sl.ID, sl.Name, sl.MarketActive, sl.RoyaltyReceiver, sl.RoyaltyBps, sl.CreatedAt, sl.UpdatedAt)
	if err != nil {
		return token.Slot{}, err
	}
	return sl, nil
}

func (s *Store) UpdateSlot(ctx context.Context, sl token.Slot) (token.Slot, error) {
	sl.UpdatedAt = time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE ledger_slots
		SET name = $2, market_active = $3, royalty_receiver = $4, royalty_bps = $5, updated_at = $6
		WHERE id = $1
	`, sl.ID, sl.Name, sl.MarketActive, sl.RoyaltyReceiver, sl.RoyaltyBps, sl.UpdatedAt)
	if err != nil {
		return token.Slot{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return token.Slot{}, fmt.Errorf("slot %s: %w", sl.ID, storage.ErrNotFound)
	}
	return sl, nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (token.Slot, error) {
	var r slotRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT id, name, market_active, royalty_receiver, royalty_bps, created_at, updated_at
		FROM ledger_slots
		WHERE id = $1
	`, id)
	if err != nil {
		return token.Slot{}, notFound(err, fmt.Sprintf("slot %s", id))
	}
	return r.domain(), nil
}

func (s *Store) ListSlots(ctx context.Context) ([]token.Slot, error) {
	var rows []slotRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT id, name, market_active, royalty_receiver, royalty_bps, created_at, updated_at
		FROM ledger_slots
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	result := make([]token.Slot, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.domain())
	}
	return result, nil
}

type tokenRow struct {
	ID        string    `db:"id"`
	SlotID    string    `db:"slot_id"`
	Owner     string    `db:"owner"`
	Value     int64     `db:"value"`
	Operator  string    `db:"operator"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r tokenRow) domain() token.Token {
	return token.Token(r)
}

func (s *Store) CreateToken(ctx context.Context, t token.Token) (token.Token, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_tokens (id, slot_id, owner, value, operator, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.SlotID, t.Owner, t.Value, t.Operator, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return token.Token{}, err
	}
	return t, nil
}

func (s *Store) UpdateToken(ctx context.Context, t token.Token) (token.Token, error) {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE ledger_tokens
		SET slot_id = $2, owner = $3, value = $4, operator = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.SlotID, t.Owner, t.Value, t.Operator, t.UpdatedAt)
	if err != nil {
		return token.Token{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return token.Token{}, fmt.Errorf("token %s: %w", t.ID, storage.ErrNotFound)
	}
	return t, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (token.Token, error) {
	var r tokenRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT id, slot_id, owner, value, operator, created_at, updated_at
		FROM ledger_tokens
		WHERE id = $1
	`, id)
	if err != nil {
		return token.Token{}, notFound(err, fmt.Sprintf("token %s", id))
	}
	return r.domain(), nil
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM ledger_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	_, err = s.q.ExecContext(ctx, `DELETE FROM ledger_value_allowances WHERE token_id = $1`, id)
	return err
}

func (s *Store) listTokens(ctx context.Context, where string, arg any) ([]token.Token, error) {
	var rows []tokenRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT id, slot_id, owner, value, operator, created_at, updated_at
		FROM ledger_tokens
		WHERE `+where+`
		ORDER BY created_at
	`, arg)
	if err != nil {
		return nil, err
	}
	result := make([]token.Token, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.domain())
	}
	return result, nil
}

func (s *Store) ListTokensByOwner(ctx context.Context, owner string) ([]token.Token, error) {
	return s.listTokens(ctx, "owner = $1", owner)
}

func (s *Store) ListTokensBySlot(ctx context.Context, slotID string) ([]token.Token, error) {
	return s.listTokens(ctx, "slot_id = $1", slotID)
}

func (s *Store) SetBlanketApproval(ctx context.Context, owner, operator string, approved bool) error {
	if !approved {
		_, err := s.q.ExecContext(ctx, `
			DELETE FROM ledger_blanket_approvals WHERE owner = $1 AND operator = $2
		`, owner, operator)
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_blanket_approvals (owner, operator, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, operator) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, owner, operator, time.Now().UTC())
	return err
}

func (s *Store) HasBlanketApproval(ctx context.Context, owner, operator string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_blanket_approvals WHERE owner = $1 AND operator = $2
		)
	`, owner, operator)
	return exists, err
}

func (s *Store) SetValueAllowance(ctx context.Context, a token.ValueAllowance) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_value_allowances (token_id, grantee, remaining, unlimited, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id, grantee) DO UPDATE
		SET remaining = EXCLUDED.remaining, unlimited = EXCLUDED.unlimited, updated_at = EXCLUDED.updated_at
	`, a.TokenID, a.Grantee, a.Remaining, a.Unlimited, time.Now().UTC())
	return err
}

func (s *Store) GetValueAllowance(ctx context.Context, tokenID, grantee string) (token.ValueAllowance, error) {
	var r struct {
		TokenID   string    `db:"token_id"`
		Grantee   string    `db:"grantee"`
		Remaining int64     `db:"remaining"`
		Unlimited bool      `db:"unlimited"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT token_id, grantee, remaining, unlimited, updated_at
		FROM ledger_value_allowances
		WHERE token_id = $1 AND grantee = $2
	`, tokenID, grantee)
	if err != nil {
		return token.ValueAllowance{}, notFound(err, fmt.Sprintf("allowance for token %s grantee %s", tokenID, grantee))
	}
	return token.ValueAllowance(r), nil
}

func (s *Store) DeleteValueAllowance(ctx context.Context, tokenID, grantee string) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM ledger_value_allowances WHERE token_id = $1 AND grantee = $2
	`, tokenID, grantee)
	return err
}

func (s *Store) ClearValueAllowances(ctx context.Context, tokenID string) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM ledger_value_allowances WHERE token_id = $1
	`, tokenID)
	return err
}

// --- MarketStore ------------------------------------------------------------

type listingRow struct {
	TokenID      string    `db:"token_id"`
	Seller       string    `db:"seller"`
	SetBy        string    `db:"set_by"`
	Currency     string    `db:"currency"`
	PricePerUnit int64     `db:"price_per_unit"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r listingRow) domain() market.Listing {
	return market.Listing(r)
}

func (s *Store) PutListing(ctx context.Context, l market.Listing) (market.Listing, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO market_listings (token_id, seller, set_by, currency, price_per_unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token_id) DO UPDATE
		SET seller = EXCLUDED.seller, set_by = EXCLUDED.set_by, currency = EXCLUDED.currency,
		    price_per_unit = EXCLUDED.price_per_unit, updated_at = EXCLUDED.updated_at
	`, l.TokenID, l.Seller, l.SetBy, l.Currency, l.PricePerUnit, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return market.Listing{}, err
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, tokenID string) (market.Listing, error) {
	var r listingRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT token_id, seller, set_by, currency, price_per_unit, created_at, updated_at
		FROM market_listings
		WHERE token_id = $1
	`, tokenID)
	if err != nil {
		return market.Listing{}, notFound(err, fmt.Sprintf("listing for token %s", tokenID))
	}
	return r.domain(), nil
}

func (s *Store) DeleteListing(ctx context.Context, tokenID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM market_listings WHERE token_id = $1`, tokenID)
	return err
}

type offerRow struct {
	ID        string    `db:"id"`
	TokenID   string    `db:"token_id"`
	Buyer     string    `db:"buyer"`
	Currency  string    `db:"currency"`
	Amount    int64     `db:"amount"`
	Referrer  string    `db:"referrer"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r offerRow) domain() market.Offer {
	return market.Offer(r)
}

func (s *Store) PutOffer(ctx context.Context, o market.Offer) (market.Offer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO market_offers (id, token_id, buyer, currency, amount, referrer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_id, buyer) DO UPDATE
		SET currency = EXCLUDED.currency, amount = EXCLUDED.amount, referrer = EXCLUDED.referrer,
		    updated_at = EXCLUDED.updated_at
	`, o.ID, o.TokenID, o.Buyer, o.Currency, o.Amount, o.Referrer, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return market.Offer{}, err
	}
	return o, nil
}

func (s *Store) GetOffer(ctx context.Context, tokenID, buyer string) (market.Offer, error) {
	var r offerRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT id, token_id, buyer, currency, amount, referrer, created_at, updated_at
		FROM market_offers
		WHERE token_id = $1 AND buyer = $2
	`, tokenID, buyer)
	if err != nil {
		return market.Offer{}, notFound(err, fmt.Sprintf("offer on token %s by %s", tokenID, buyer))
	}
	return r.domain(), nil
}

func (s *Store) DeleteOffer(ctx context.Context, tokenID, buyer string) error {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM market_offers WHERE token_id = $1 AND buyer = $2
	`, tokenID, buyer)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("offer on token %s by %s: %w", tokenID, buyer, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListOffersByToken(ctx context.Context, tokenID string) ([]market.Offer, error) {
	var rows []offerRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT id, token_id, buyer, currency, amount, referrer, created_at, updated_at
		FROM market_offers
		WHERE token_id = $1
		ORDER BY created_at
	`, tokenID)
	if err != nil {
		return nil, err
	}
	result := make([]market.Offer, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.domain())
	}
	return result, nil
}

type auctionRow struct {
	ID            string       `db:"id"`
	TokenID       string       `db:"token_id"`
	Seller        string       `db:"seller"`
	Currency      string       `db:"currency"`
	ReservePrice  int64        `db:"reserve_price"`
	CurrentBid    int64        `db:"current_bid"`
	CurrentBidder string       `db:"current_bidder"`
	DurationNs    int64        `db:"duration_ns"`
	ExtensionNs   int64        `db:"extension_ns"`
	StartTime     sql.NullTime `db:"start_time"`
	EndTime       sql.NullTime `db:"end_time"`
	Status        string       `db:"status"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r auctionRow) domain() market.ReserveAuction {
	a := market.ReserveAuction{
		ID:                r.ID,
		TokenID:           r.TokenID,
		Seller:            r.Seller,
		Currency:          r.Currency,
		ReservePrice:      r.ReservePrice,
		CurrentBid:        r.CurrentBid,
		CurrentBidder:     r.CurrentBidder,
		Duration:          time.Duration(r.DurationNs),
		ExtensionDuration: time.Duration(r.ExtensionNs),
		Status:            market.AuctionStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.StartTime.Valid {
		a.StartTime = r.StartTime.Time
	}
	if r.EndTime.Valid {
		a.EndTime = r.EndTime.Time
	}
	return a
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *Store) CreateAuction(ctx context.Context, a market.ReserveAuction) (market.ReserveAuction, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO market_auctions (id, token_id, seller, currency, reserve_price, current_bid,
			current_bidder, duration_ns, extension_ns, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.TokenID, a.Seller, a.Currency, a.ReservePrice, a.CurrentBid, a.CurrentBidder,
		int64(a.Duration), int64(a.ExtensionDuration), nullTime(a.StartTime), nullTime(a.EndTime),
		string(a.Status), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return market.ReserveAuction{}, err
	}
	return a, nil
}

func (s *Store) UpdateAuction(ctx context.Context, a market.ReserveAuction) (market.ReserveAuction, error) {
	a.UpdatedAt = time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE market_auctions
		SET reserve_price = $2, current_bid = $3, current_bidder = $4, duration_ns = $5,
		    extension_ns = $6, start_time = $7, end_time = $8, status = $9, updated_at = $10
		WHERE id = $1
	`, a.ID, a.ReservePrice, a.CurrentBid, a.CurrentBidder, int64(a.Duration),
		int64(a.ExtensionDuration), nullTime(a.StartTime), nullTime(a.EndTime), string(a.Status), a.UpdatedAt)
	if err != nil {
		return market.ReserveAuction{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return market.ReserveAuction{}, fmt.Errorf("auction %s: %w", a.ID, storage.ErrNotFound)
	}
	return a, nil
}

const auctionColumns = `id, token_id, seller, currency, reserve_price, current_bid, current_bidder,
	duration_ns, extension_ns, start_time, end_time, status, created_at, updated_at`

func (s *Store) GetAuction(ctx context.Context, id string) (market.ReserveAuction, error) {
	var r auctionRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT `+auctionColumns+` FROM market_auctions WHERE id = $1
	`, id)
	if err != nil {
		return market.ReserveAuction{}, notFound(err, fmt.Sprintf("auction %s", id))
	}
	return r.domain(), nil
}

func (s *Store) GetOpenAuctionByToken(ctx context.Context, tokenID string) (market.ReserveAuction, error) {
	var r auctionRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT `+auctionColumns+` FROM market_auctions
		WHERE token_id = $1 AND status IN ('created', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, tokenID)
	if err != nil {
		return market.ReserveAuction{}, notFound(err, fmt.Sprintf("open auction for token %s", tokenID))
	}
	return r.domain(), nil
}

func (s *Store) ListAuctionsEndingBefore(ctx context.Context, cutoff time.Time) ([]market.ReserveAuction, error) {
	var rows []auctionRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT `+auctionColumns+` FROM market_auctions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time
	`, cutoff)
	if err != nil {
		return nil, err
	}
	result := make([]market.ReserveAuction, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.domain())
	}
	return result, nil
}

// --- TreasuryStore ----------------------------------------------------------

type escrowRow struct {
	Identity  string    `db:"identity"`
	Currency  string    `db:"currency"`
	Free      int64     `db:"free"`
	Reserved  int64     `db:"reserved"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r escrowRow) domain() treasury.EscrowAccount {
	return treasury.EscrowAccount(r)
}

func (s *Store) GetEscrowAccount(ctx context.Context, identity, currency string) (treasury.EscrowAccount, error) {
	var r escrowRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT identity, currency, free, reserved, updated_at
		FROM treasury_escrow_accounts
		WHERE identity = $1 AND currency = $2
	`, identity, currency)
	if err != nil {
		return treasury.EscrowAccount{}, notFound(err, fmt.Sprintf("escrow account %s/%s", identity, currency))
	}
	return r.domain(), nil
}

func (s *Store) PutEscrowAccount(ctx context.Context, acct treasury.EscrowAccount) (treasury.EscrowAccount, error) {
	acct.UpdatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO treasury_escrow_accounts (identity, currency, free, reserved, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity, currency) DO UPDATE
		SET free = EXCLUDED.free, reserved = EXCLUDED.reserved, updated_at = EXCLUDED.updated_at
	`, acct.Identity, acct.Currency, acct.Free, acct.Reserved, acct.UpdatedAt)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	return acct, nil
}

func (s *Store) ListEscrowAccounts(ctx context.Context, identity string) ([]treasury.EscrowAccount, error) {
	var rows []escrowRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT identity, currency, free, reserved, updated_at
		FROM treasury_escrow_accounts
		WHERE identity = $1
		ORDER BY currency
	`, identity)
	if err != nil {
		return nil, err
	}
	result := make([]treasury.EscrowAccount, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.domain())
	}
	return result, nil
}

func (s *Store) SetExchangeRate(ctx context.Context, rate treasury.ExchangeRate) (treasury.ExchangeRate, error) {
	rate.UpdatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO treasury_exchange_rates (currency, numerator, denominator, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (currency) DO UPDATE
		SET numerator = EXCLUDED.numerator, denominator = EXCLUDED.denominator, updated_at = EXCLUDED.updated_at
	`, rate.Currency, rate.Numerator, rate.Denominator, rate.UpdatedAt)
	if err != nil {
		return treasury.ExchangeRate{}, err
	}
	return rate, nil
}

func (s *Store) GetExchangeRate(ctx context.Context, currency string) (treasury.ExchangeRate, error) {
	var r struct {
		Currency    string    `db:"currency"`
		Numerator   int64     `db:"numerator"`
		Denominator int64     `db:"denominator"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT currency, numerator, denominator, updated_at
		FROM treasury_exchange_rates
		WHERE currency = $1
	`, currency)
	if err != nil {
		return treasury.ExchangeRate{}, notFound(err, fmt.Sprintf("exchange rate for %s", currency))
	}
	return treasury.ExchangeRate(r), nil
}

type voucherRow struct {
	ID         string       `db:"id"`
	Issuer     string       `db:"issuer"`
	Bearer     string       `db:"bearer"`
	FaceValue  int64        `db:"face_value"`
	Redeemed   bool         `db:"redeemed"`
	RedeemedAt sql.NullTime `db:"redeemed_at"`
	CreatedAt  time.Time    `db:"created_at"`
}

func (r voucherRow) domain() treasury.Voucher {
	v := treasury.Voucher{
		ID:        r.ID,
		Issuer:    r.Issuer,
		Bearer:    r.Bearer,
		FaceValue: r.FaceValue,
		Redeemed:  r.Redeemed,
		CreatedAt: r.CreatedAt,
	}
	if r.RedeemedAt.Valid {
		v.RedeemedAt = r.RedeemedAt.Time
	}
	return v
}

func (s *Store) CreateVoucher(ctx context.Context, v treasury.Voucher) (treasury.Voucher, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO treasury_vouchers (id, issuer, bearer, face_value, redeemed, redeemed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.Issuer, v.Bearer, v.FaceValue, v.Redeemed, nullTime(v.RedeemedAt), v.CreatedAt)
	if err != nil {
		return treasury.Voucher{}, err
	}
	return v, nil
}

func (s *Store) UpdateVoucher(ctx context.Context, v treasury.Voucher) (treasury.Voucher, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE treasury_vouchers
		SET bearer = $2, face_value = $3, redeemed = $4, redeemed_at = $5
		WHERE id = $1
	`, v.ID, v.Bearer, v.FaceValue, v.Redeemed, nullTime(v.RedeemedAt))
	if err != nil {
		return treasury.Voucher{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return treasury.Voucher{}, fmt.Errorf("voucher %s: %w", v.ID, storage.ErrNotFound)
	}
	return v, nil
}

func (s *Store) GetVoucher(ctx context.Context, id string) (treasury.Voucher, error) {
	var r voucherRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT id, issuer, bearer, face_value, redeemed, redeemed_at, created_at
		FROM treasury_vouchers
		WHERE id = $1
	`, id)
	if err != nil {
		return treasury.Voucher{}, notFound(err, fmt.Sprintf("voucher %s", id))
	}
	return r.domain(), nil
}

type disbursementRow struct {
	ID            string       `db:"id"`
	Amount        int64        `db:"amount"`
	Destination   string       `db:"destination"`
	ProposedBy    string       `db:"proposed_by"`
	Required      int          `db:"required"`
	Confirmations []byte       `db:"confirmations"`
	Status        string       `db:"status"`
	ExecutedAt    sql.NullTime `db:"executed_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r disbursementRow) domain() treasury.Disbursement {
	d := treasury.Disbursement{
		ID:          r.ID,
		Amount:      r.Amount,
		Destination: r.Destination,
		ProposedBy:  r.ProposedBy,
		Required:    r.Required,
		Status:      treasury.DisbursementStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Confirmations) > 0 {
		_ = json.Unmarshal(r.Confirmations, &d.Confirmations)
	}
	if r.ExecutedAt.Valid {
		d.ExecutedAt = r.ExecutedAt.Time
	}
	return d
}

func (s *Store) CreateDisbursement(ctx context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	confirmationsJSON, err := json.Marshal(d.Confirmations)
	if err != nil {
		return treasury.Disbursement{}, err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO treasury_disbursements (id, amount, destination, proposed_by, required,
			confirmations, status, executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.Amount, d.Destination, d.ProposedBy, d.Required, confirmationsJSON,
		string(d.Status), nullTime(d.ExecutedAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return treasury.Disbursement{}, err
	}
	return d, nil
}

func (s *Store) UpdateDisbursement(ctx context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	d.UpdatedAt = time.Now().UTC()

	confirmationsJSON, err := json.Marshal(d.Confirmations)
	if err != nil {
		return treasury.Disbursement{}, err
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE treasury_disbursements
		SET confirmations = $2, status = $3, executed_at = $4, updated_at = $5
		WHERE id = $1
	`, d.ID, confirmationsJSON, string(d.Status), nullTime(d.ExecutedAt), d.UpdatedAt)
	if err != nil {
		return treasury.Disbursement{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return treasury.Disbursement{}, fmt.Errorf("disbursement %s: %w", d.ID, storage.ErrNotFound)
	}
	return d, nil
}

const disbursementColumns = `id, amount, destination, proposed_by, required, confirmations,
	status, executed_at, created_at, updated_at`

func (s *Store) GetDisbursement(ctx context.Context, id string) (treasury.Disbursement, error) {
	var r disbursementRow
	err := sqlx.GetContext(ctx, s.q, &r, `
		SELECT `+disbursementColumns+` FROM treasury_disbursements WHERE id = $1
	`, id)
	if err != nil {
		return treasury.Disbursement{}, notFound(err, fmt.Sprintf("disbursement %s", id))
	}
	return r.domain(), nil
}

func (s *Store) ListPendingDisbursements(ctx context.Context) ([]treasury.Disbursement, error) {
	var rows []disbursementRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT `+disbursementColumns+` FROM treasury_disbursements
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	result := make([]treasury.Disbursement, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.domain())
	}
	return result, nil
}
