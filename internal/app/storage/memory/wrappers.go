package memory

import (
	"context"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/domain/treasury"
)

// Store methods lock, then delegate to the state. txStore methods delegate
// directly; Transact already holds the lock.

func (s *Store) CreateSlot(_ context.Context, sl token.Slot) (token.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createSlot(sl)
}

func (s *Store) UpdateSlot(_ context.Context, sl token.Slot) (token.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateSlot(sl)
}

func (s *Store) GetSlot(_ context.Context, id string) (token.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getSlot(id)
}

func (s *Store) ListSlots(_ context.Context) ([]token.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listSlots()
}

func (s *Store) CreateToken(_ context.Context, t token.Token) (token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createToken(t)
}

func (s *Store) UpdateToken(_ context.Context, t token.Token) (token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateToken(t)
}

func (s *Store) GetToken(_ context.Context, id string) (token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getToken(id)
}

func (s *Store) DeleteToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteToken(id)
}

func (s *Store) ListTokensByOwner(_ context.Context, owner string) ([]token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listTokensByOwner(owner)
}

func (s *Store) ListTokensBySlot(_ context.Context, slotID string) ([]token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listTokensBySlot(slotID)
}

func (s *Store) SetBlanketApproval(_ context.Context, owner, operator string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setBlanketApproval(owner, operator, approved)
}

func (s *Store) HasBlanketApproval(_ context.Context, owner, operator string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.hasBlanketApproval(owner, operator)
}

func (s *Store) SetValueAllowance(_ context.Context, a token.ValueAllowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setValueAllowance(a)
}

func (s *Store) GetValueAllowance(_ context.Context, tokenID, grantee string) (token.ValueAllowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getValueAllowance(tokenID, grantee)
}

func (s *Store) DeleteValueAllowance(_ context.Context, tokenID, grantee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteValueAllowance(tokenID, grantee)
}

func (s *Store) ClearValueAllowances(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clearValueAllowances(tokenID)
}

func (s *Store) PutListing(_ context.Context, l market.Listing) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.putListing(l)
}

func (s *Store) GetListing(_ context.Context, tokenID string) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getListing(tokenID)
}

func (s *Store) DeleteListing(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteListing(tokenID)
}

func (s *Store) PutOffer(_ context.Context, o market.Offer) (market.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.putOffer(o)
}

func (s *Store) GetOffer(_ context.Context, tokenID, buyer string) (market.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getOffer(tokenID, buyer)
}

func (s *Store) DeleteOffer(_ context.Context, tokenID, buyer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteOffer(tokenID, buyer)
}

func (s *Store) ListOffersByToken(_ context.Context, tokenID string) ([]market.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listOffersByToken(tokenID)
}

func (s *Store) CreateAuction(_ context.Context, a market.ReserveAuction) (market.ReserveAuction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createAuction(a)
}

func (s *Store) UpdateAuction(_ context.Context, a market.ReserveAuction) (market.ReserveAuction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateAuction(a)
}

func (s *Store) GetAuction(_ context.Context, id string) (market.ReserveAuction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getAuction(id)
}

func (s *Store) GetOpenAuctionByToken(_ context.Context, tokenID string) (market.ReserveAuction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getOpenAuctionByToken(tokenID)
}

func (s *Store) ListAuctionsEndingBefore(_ context.Context, cutoff time.Time) ([]market.ReserveAuction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listAuctionsEndingBefore(cutoff)
}

func (s *Store) GetEscrowAccount(_ context.Context, identity, currency string) (treasury.EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getEscrowAccount(identity, currency)
}

func (s *Store) PutEscrowAccount(_ context.Context, acct treasury.EscrowAccount) (treasury.EscrowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.putEscrowAccount(acct)
}

func (s *Store) ListEscrowAccounts(_ context.Context, identity string) ([]treasury.EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listEscrowAccounts(identity)
}

func (s *Store) SetExchangeRate(_ context.Context, rate treasury.ExchangeRate) (treasury.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setExchangeRate(rate)
}

func (s *Store) GetExchangeRate(_ context.Context, currency string) (treasury.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getExchangeRate(currency)
}

func (s *Store) CreateVoucher(_ context.Context, v treasury.Voucher) (treasury.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createVoucher(v)
}

func (s *Store) UpdateVoucher(_ context.Context, v treasury.Voucher) (treasury.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateVoucher(v)
}

func (s *Store) GetVoucher(_ context.Context, id string) (treasury.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getVoucher(id)
}

func (s *Store) CreateDisbursement(_ context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createDisbursement(d)
}

func (s *Store) UpdateDisbursement(_ context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateDisbursement(d)
}

func (s *Store) GetDisbursement(_ context.Context, id string) (treasury.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getDisbursement(id)
}

func (s *Store) ListPendingDisbursements(_ context.Context) ([]treasury.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listPendingDisbursements()
}

func (s *txStore) CreateSlot(_ context.Context, sl token.Slot) (token.Slot, error) {
	return s.st.createSlot(sl)
}

func (s *txStore) UpdateSlot(_ context.Context, sl token.Slot) (token.Slot, error) {
	return s.st.updateSlot(sl)
}

func (s *txStore) GetSlot(_ context.Context, id string) (token.Slot, error) {
	return s.st.getSlot(id)
}

func (s *txStore) ListSlots(_ context.Context) ([]token.Slot, error) {
	return s.st.listSlots()
}

func (s *txStore) CreateToken(_ context.Context, t token.Token) (token.Token, error) {
	return s.st.createToken(t)
}

func (s *txStore) UpdateToken(_ context.Context, t token.Token) (token.Token, error) {
	return s.st.updateToken(t)
}

func (s *txStore) GetToken(_ context.Context, id string) (token.Token, error) {
	return s.st.getToken(id)
}

func (s *txStore) DeleteToken(_ context.Context, id string) error {
	return s.st.deleteToken(id)
}

func (s *txStore) ListTokensByOwner(_ context.Context, owner string) ([]token.Token, error) {
	return s.st.listTokensByOwner(owner)
}

func (s *txStore) ListTokensBySlot(_ context.Context, slotID string) ([]token.Token, error) {
	return s.st.listTokensBySlot(slotID)
}

func (s *txStore) SetBlanketApproval(_ context.Context, owner, operator string, approved bool) error {
	return s.st.setBlanketApproval(owner, operator, approved)
}

func (s *txStore) HasBlanketApproval(_ context.Context, owner, operator string) (bool, error) {
	return s.st.hasBlanketApproval(owner, operator)
}

func (s *txStore) SetValueAllowance(_ context.Context, a token.ValueAllowance) error {
	return s.st.setValueAllowance(a)
}

func (s *txStore) GetValueAllowance(_ context.Context, tokenID, grantee string) (token.ValueAllowance, error) {
	return s.st.getValueAllowance(tokenID, grantee)
}

func (s *txStore) DeleteValueAllowance(_ context.Context, tokenID, grantee string) error {
	return s.st.deleteValueAllowance(tokenID, grantee)
}

func (s *txStore) ClearValueAllowances(_ context.Context, tokenID string) error {
	return s.st.clearValueAllowances(tokenID)
}

func (s *txStore) PutListing(_ context.Context, l market.Listing) (market.Listing, error) {
	return s.st.putListing(l)
}

func (s *txStore) GetListing(_ context.Context, tokenID string) (market.Listing, error) {
	return s.st.getListing(tokenID)
}

func (s *txStore) DeleteListing(_ context.Context, tokenID string) error {
	return s.st.deleteListing(tokenID)
}

func (s *txStore) PutOffer(_ context.Context, o market.Offer) (market.Offer, error) {
	return s.st.putOffer(o)
}

func (s *txStore) GetOffer(_ context.Context, tokenID, buyer string) (market.Offer, error) {
	return s.st.getOffer(tokenID, buyer)
}

func (s *txStore) DeleteOffer(_ context.Context, tokenID, buyer string) error {
	return s.st.deleteOffer(tokenID, buyer)
}

func (s *txStore) ListOffersByToken(_ context.Context, tokenID string) ([]market.Offer, error) {
	return s.st.listOffersByToken(tokenID)
}

func (s *txStore) CreateAuction(_ context.Context, a market.ReserveAuction) (market.ReserveAuction, error) {
	return s.st.createAuction(a)
}

func (s *txStore) UpdateAuction(_ context.Context, a market.ReserveAuction) (market.ReserveAuction, error) {
	return s.st.updateAuction(a)
}

func (s *txStore) GetAuction(_ context.Context, id string) (market.ReserveAuction, error) {
	return s.st.getAuction(id)
}

func (s *txStore) GetOpenAuctionByToken(_ context.Context, tokenID string) (market.ReserveAuction, error) {
	return s.st.getOpenAuctionByToken(tokenID)
}

func (s *txStore) ListAuctionsEndingBefore(_ context.Context, cutoff time.Time) ([]market.ReserveAuction, error) {
	return s.st.listAuctionsEndingBefore(cutoff)
}

func (s *txStore) GetEscrowAccount(_ context.Context, identity, currency string) (treasury.EscrowAccount, error) {
	return s.st.getEscrowAccount(identity, currency)
}

func (s *txStore) PutEscrowAccount(_ context.Context, acct treasury.EscrowAccount) (treasury.EscrowAccount, error) {
	return s.st.putEscrowAccount(acct)
}

func (s *txStore) ListEscrowAccounts(_ context.Context, identity string) ([]treasury.EscrowAccount, error) {
	return s.st.listEscrowAccounts(identity)
}

func (s *txStore) SetExchangeRate(_ context.Context, rate treasury.ExchangeRate) (treasury.ExchangeRate, error) {
	return s.st.setExchangeRate(rate)
}

func (s *txStore) GetExchangeRate(_ context.Context, currency string) (treasury.ExchangeRate, error) {
	return s.st.getExchangeRate(currency)
}

func (s *txStore) CreateVoucher(_ context.Context, v treasury.Voucher) (treasury.Voucher, error) {
	return s.st.createVoucher(v)
}

func (s *txStore) UpdateVoucher(_ context.Context, v treasury.Voucher) (treasury.Voucher, error) {
	return s.st.updateVoucher(v)
}

func (s *txStore) GetVoucher(_ context.Context, id string) (treasury.Voucher, error) {
	return s.st.getVoucher(id)
}

func (s *txStore) CreateDisbursement(_ context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	return s.st.createDisbursement(d)
}

func (s *txStore) UpdateDisbursement(_ context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	return s.st.updateDisbursement(d)
}

func (s *txStore) GetDisbursement(_ context.Context, id string) (treasury.Disbursement, error) {
	return s.st.getDisbursement(id)
}

func (s *txStore) ListPendingDisbursements(_ context.Context) ([]treasury.Disbursement, error) {
	return s.st.listPendingDisbursements()
}
