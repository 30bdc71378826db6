// Package memory implements the storage interfaces with mutex-guarded maps.
// It is the store used by tests and local development, and its single lock
// doubles as the engine's single-writer serialization point.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ storage.Store = (*Store)(nil)
var _ storage.Transactor = (*Store)(nil)

// state holds the raw maps. Its methods never lock; locking is the job of the
// Store wrapper or of Transact, which holds the lock for the whole unit.
type state struct {
	nextID        int64
	slots         map[string]token.Slot
	tokens        map[string]token.Token
	blanket       map[string]map[string]bool           // owner -> operator
	allowances    map[string]map[string]token.ValueAllowance // tokenID -> grantee
	listings      map[string]market.Listing            // tokenID
	offers        map[string]map[string]market.Offer   // tokenID -> buyer
	auctions      map[string]market.ReserveAuction     // auctionID
	escrow        map[string]map[string]treasury.EscrowAccount // identity -> currency
	rates         map[string]treasury.ExchangeRate
	vouchers      map[string]treasury.Voucher
	disbursements map[string]treasury.Disbursement
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		nextID:        1,
		slots:         make(map[string]token.Slot),
		tokens:        make(map[string]token.Token),
		blanket:       make(map[string]map[string]bool),
		allowances:    make(map[string]map[string]token.ValueAllowance),
		listings:      make(map[string]market.Listing),
		offers:        make(map[string]map[string]market.Offer),
		auctions:      make(map[string]market.ReserveAuction),
		escrow:        make(map[string]map[string]treasury.EscrowAccount),
		rates:         make(map[string]treasury.ExchangeRate),
		vouchers:      make(map[string]treasury.Voucher),
		disbursements: make(map[string]treasury.Disbursement),
	}
}

func (s *state) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for owner, ops := range s.blanket {
		inner := make(map[string]bool, len(ops))
		for k, v := range ops {
			inner[k] = v
		}
		c.blanket[owner] = inner
	}
	for tok, grants := range s.allowances {
		inner := make(map[string]token.ValueAllowance, len(grants))
		for k, v := range grants {
			inner[k] = v
		}
		c.allowances[tok] = inner
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for tok, buyers := range s.offers {
		inner := make(map[string]market.Offer, len(buyers))
		for k, v := range buyers {
			inner[k] = v
		}
		c.offers[tok] = inner
	}
	for k, v := range s.auctions {
		c.auctions[k] = v
	}
	for id, accts := range s.escrow {
		inner := make(map[string]treasury.EscrowAccount, len(accts))
		for k, v := range accts {
			inner[k] = v
		}
		c.escrow[id] = inner
	}
	for k, v := range s.rates {
		c.rates[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range s.disbursements {
		c.disbursements[k] = cloneDisbursement(v)
	}
	return c
}

func cloneDisbursement(d treasury.Disbursement) treasury.Disbursement {
	d.Confirmations = append([]string(nil), d.Confirmations...)
	return d
}

// Transact runs fn against a snapshot of the store. The snapshot replaces the
// live state only when fn succeeds, so a failing operation leaves no partial
// effects. The store lock is held for the whole call, which serializes all
// multi-step operations.
func (s *Store) Transact(_ context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txStore{st: snapshot}); err != nil {
		return err
	}
	s.st = snapshot
	return nil
}

// txStore exposes a state without locking for use inside Transact.
type txStore struct {
	st *state
}

var _ storage.Store = (*txStore)(nil)

// LedgerStore implementation -------------------------------------------------

func (s *state) createSlot(sl token.Slot) (token.Slot, error) {
	if sl.ID == "" {
		sl.ID = s.nextIDLocked()
	} else if _, exists := s.slots[sl.ID]; exists {
		return token.Slot{}, fmt.Errorf("slot %s already exists", sl.ID)
	}
	now := time.Now().UTC()
	sl.CreatedAt = now
	sl.UpdatedAt = now
	s.slots[sl.ID] = sl
	return sl, nil
}

func (s *state) updateSlot(sl token.Slot) (token.Slot, error) {
	original, ok := s.slots[sl.ID]
	if !ok {
		return token.Slot{}, fmt.Errorf("slot %s: %w", sl.ID, storage.ErrNotFound)
	}
	sl.CreatedAt = original.CreatedAt
	sl.UpdatedAt = time.Now().UTC()
	s.slots[sl.ID] = sl
	return sl, nil
}

func (s *state) getSlot(id string) (token.Slot, error) {
	sl, ok := s.slots[id]
	if !ok {
		return token.Slot{}, fmt.Errorf("slot %s: %w", id, storage.ErrNotFound)
	}
	return sl, nil
}

func (s *state) listSlots() ([]token.Slot, error) {
	result := make([]token.Slot, 0, len(s.slots))
	for _, sl := range s.slots {
		result = append(result, sl)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) createToken(t token.Token) (token.Token, error) {
	if t.ID == "" {
		t.ID = s.nextIDLocked()
	} else if _, exists := s.tokens[t.ID]; exists {
		return token.Token{}, fmt.Errorf("token %s already exists", t.ID)
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tokens[t.ID] = t
	return t, nil
}

func (s *state) updateToken(t token.Token) (token.Token, error) {
	original, ok := s.tokens[t.ID]
	if !ok {
		return token.Token{}, fmt.Errorf("token %s: %w", t.ID, storage.ErrNotFound)
	}
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tokens[t.ID] = t
	return t, nil
}

func (s *state) getToken(id string) (token.Token, error) {
	t, ok := s.tokens[id]
	if !ok {
		return token.Token{}, fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

func (s *state) deleteToken(id string) error {
	if _, ok := s.tokens[id]; !ok {
		return fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	delete(s.tokens, id)
	delete(s.allowances, id)
	return nil
}

func (s *state) listTokensByOwner(owner string) ([]token.Token, error) {
	result := make([]token.Token, 0)
	for _, t := range s.tokens {
		if t.Owner == owner {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) listTokensBySlot(slotID string) ([]token.Token, error) {
	result := make([]token.Token, 0)
	for _, t := range s.tokens {
		if t.SlotID == slotID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) setBlanketApproval(owner, operator string, approved bool) error {
	if !approved {
		delete(s.blanket[owner], operator)
		return nil
	}
	if s.blanket[owner] == nil {
		s.blanket[owner] = make(map[string]bool)
	}
	s.blanket[owner][operator] = true
	return nil
}

func (s *state) hasBlanketApproval(owner, operator string) (bool, error) {
	return s.blanket[owner][operator], nil
}

func (s *state) setValueAllowance(a token.ValueAllowance) error {
	a.UpdatedAt = time.Now().UTC()
	if s.allowances[a.TokenID] == nil {
		s.allowances[a.TokenID] = make(map[string]token.ValueAllowance)
	}
	s.allowances[a.TokenID][a.Grantee] = a
	return nil
}

func (s *state) getValueAllowance(tokenID, grantee string) (token.ValueAllowance, error) {
	a, ok := s.allowances[tokenID][grantee]
	if !ok {
		return token.ValueAllowance{}, fmt.Errorf("allowance for token %s grantee %s: %w", tokenID, grantee, storage.ErrNotFound)
	}
	return a, nil
}

func (s *state) deleteValueAllowance(tokenID, grantee string) error {
	delete(s.allowances[tokenID], grantee)
	return nil
}

func (s *state) clearValueAllowances(tokenID string) error {
	delete(s.allowances, tokenID)
	return nil
}

// MarketStore implementation -------------------------------------------------

func (s *state) putListing(l market.Listing) (market.Listing, error) {
	now := time.Now().UTC()
	if original, ok := s.listings[l.TokenID]; ok {
		l.CreatedAt = original.CreatedAt
	} else {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	s.listings[l.TokenID] = l
	return l, nil
}

func (s *state) getListing(tokenID string) (market.Listing, error) {
	l, ok := s.listings[tokenID]
	if !ok {
		return market.Listing{}, fmt.Errorf("listing for token %s: %w", tokenID, storage.ErrNotFound)
	}
	return l, nil
}

func (s *state) deleteListing(tokenID string) error {
	delete(s.listings, tokenID)
	return nil
}

func (s *state) putOffer(o market.Offer) (market.Offer, error) {
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = s.nextIDLocked()
	}
	if original, ok := s.offers[o.TokenID][o.Buyer]; ok {
		o.CreatedAt = original.CreatedAt
		o.ID = original.ID
	} else {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if s.offers[o.TokenID] == nil {
		s.offers[o.TokenID] = make(map[string]market.Offer)
	}
	s.offers[o.TokenID][o.Buyer] = o
	return o, nil
}

func (s *state) getOffer(tokenID, buyer string) (market.Offer, error) {
	o, ok := s.offers[tokenID][buyer]
	if !ok {
		return market.Offer{}, fmt.Errorf("offer on token %s by %s: %w", tokenID, buyer, storage.ErrNotFound)
	}
	return o, nil
}

func (s *state) deleteOffer(tokenID, buyer string) error {
	if _, ok := s.offers[tokenID][buyer]; !ok {
		return fmt.Errorf("offer on token %s by %s: %w", tokenID, buyer, storage.ErrNotFound)
	}
	delete(s.offers[tokenID], buyer)
	return nil
}

func (s *state) listOffersByToken(tokenID string) ([]market.Offer, error) {
	result := make([]market.Offer, 0, len(s.offers[tokenID]))
	for _, o := range s.offers[tokenID] {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) createAuction(a market.ReserveAuction) (market.ReserveAuction, error) {
	if a.ID == "" {
		a.ID = s.nextIDLocked()
	} else if _, exists := s.auctions[a.ID]; exists {
		return market.ReserveAuction{}, fmt.Errorf("auction %s already exists", a.ID)
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.auctions[a.ID] = a
	return a, nil
}

func (s *state) updateAuction(a market.ReserveAuction) (market.ReserveAuction, error) {
	original, ok := s.auctions[a.ID]
	if !ok {
		return market.ReserveAuction{}, fmt.Errorf("auction %s: %w", a.ID, storage.ErrNotFound)
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.auctions[a.ID] = a
	return a, nil
}

func (s *state) getAuction(id string) (market.ReserveAuction, error) {
	a, ok := s.auctions[id]
	if !ok {
		return market.ReserveAuction{}, fmt.Errorf("auction %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *state) getOpenAuctionByToken(tokenID string) (market.ReserveAuction, error) {
	for _, a := range s.auctions {
		if a.TokenID == tokenID && (a.Status == market.AuctionCreated || a.Status == market.AuctionActive) {
			return a, nil
		}
	}
	return market.ReserveAuction{}, fmt.Errorf("open auction for token %s: %w", tokenID, storage.ErrNotFound)
}

func (s *state) listAuctionsEndingBefore(cutoff time.Time) ([]market.ReserveAuction, error) {
	result := make([]market.ReserveAuction, 0)
	for _, a := range s.auctions {
		if a.Status == market.AuctionActive && !a.EndTime.After(cutoff) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// TreasuryStore implementation -----------------------------------------------

func (s *state) getEscrowAccount(identity, currency string) (treasury.EscrowAccount, error) {
	acct, ok := s.escrow[identity][currency]
	if !ok {
		return treasury.EscrowAccount{}, fmt.Errorf("escrow account %s/%s: %w", identity, currency, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *state) putEscrowAccount(acct treasury.EscrowAccount) (treasury.EscrowAccount, error) {
	acct.UpdatedAt = time.Now().UTC()
	if s.escrow[acct.Identity] == nil {
		s.escrow[acct.Identity] = make(map[string]treasury.EscrowAccount)
	}
	s.escrow[acct.Identity][acct.Currency] = acct
	return acct, nil
}

func (s *state) listEscrowAccounts(identity string) ([]treasury.EscrowAccount, error) {
	result := make([]treasury.EscrowAccount, 0, len(s.escrow[identity]))
	for _, acct := range s.escrow[identity] {
		result = append(result, acct)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

func (s *state) setExchangeRate(rate treasury.ExchangeRate) (treasury.ExchangeRate, error) {
	rate.UpdatedAt = time.Now().UTC()
	s.rates[rate.Currency] = rate
	return rate, nil
}

func (s *state) getExchangeRate(currency string) (treasury.ExchangeRate, error) {
	rate, ok := s.rates[currency]
	if !ok {
		return treasury.ExchangeRate{}, fmt.Errorf("exchange rate for %s: %w", currency, storage.ErrNotFound)
	}
	return rate, nil
}

func (s *state) createVoucher(v treasury.Voucher) (treasury.Voucher, error) {
	if v.ID == "" {
		v.ID = s.nextIDLocked()
	} else if _, exists := s.vouchers[v.ID]; exists {
		return treasury.Voucher{}, fmt.Errorf("voucher %s already exists", v.ID)
	}
	v.CreatedAt = time.Now().UTC()
	s.vouchers[v.ID] = v
	return v, nil
}

func (s *state) updateVoucher(v treasury.Voucher) (treasury.Voucher, error) {
	original, ok := s.vouchers[v.ID]
	if !ok {
		return treasury.Voucher{}, fmt.Errorf("voucher %s: %w", v.ID, storage.ErrNotFound)
	}
	v.CreatedAt = original.CreatedAt
	s.vouchers[v.ID] = v
	return v, nil
}

func (s *state) getVoucher(id string) (treasury.Voucher, error) {
	v, ok := s.vouchers[id]
	if !ok {
		return treasury.Voucher{}, fmt.Errorf("voucher %s: %w", id, storage.ErrNotFound)
	}
	return v, nil
}

func (s *state) createDisbursement(d treasury.Disbursement) (treasury.Disbursement, error) {
	if d.ID == "" {
		d.ID = s.nextIDLocked()
	} else if _, exists := s.disbursements[d.ID]; exists {
		return treasury.Disbursement{}, fmt.Errorf("disbursement %s already exists", d.ID)
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.disbursements[d.ID] = cloneDisbursement(d)
	return d, nil
}

func (s *state) updateDisbursement(d treasury.Disbursement) (treasury.Disbursement, error) {
	original, ok := s.disbursements[d.ID]
	if !ok {
		return treasury.Disbursement{}, fmt.Errorf("disbursement %s: %w", d.ID, storage.ErrNotFound)
	}
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.disbursements[d.ID] = cloneDisbursement(d)
	return d, nil
}

func (s *state) getDisbursement(id string) (treasury.Disbursement, error) {
	d, ok := s.disbursements[id]
	if !ok {
		return treasury.Disbursement{}, fmt.Errorf("disbursement %s: %w", id, storage.ErrNotFound)
	}
	return cloneDisbursement(d), nil
}

func (s *state) listPendingDisbursements() ([]treasury.Disbursement, error) {
	result := make([]treasury.Disbursement, 0)
	for _, d := range s.disbursements {
		if d.Status == treasury.DisbursementPending {
			result = append(result, cloneDisbursement(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
