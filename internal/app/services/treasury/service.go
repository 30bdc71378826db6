// Package treasury implements the escrow treasury: deposits, exchange rates,
// vouchers, escrow partitions and multi-signature disbursements.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/identity"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/pkg/logger"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidState         = errors.New("invalid state")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAmountOverflow       = errors.New("amount overflow")
	ErrRateNotFound         = errors.New("exchange rate not found")
	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrSlotNotFound         = errors.New("slot not found")
	ErrDisbursementNotFound = errors.New("disbursement not found")
	ErrDisbursementFailed   = errors.New("disbursement failed")
)

// Service manages escrow accounts, rates, vouchers and disbursements.
type Service struct {
	db         storage.DB
	auth       identity.Authorizer
	treasuryID string
	threshold  int
	sink       observe.Sink
	log        *logger.Logger
	now        func() time.Time
}

// New constructs a treasury service. treasuryID is the identity whose escrow
// account accumulates protocol fees and funds disbursements; threshold is the
// number of signer confirmations a disbursement needs.
func New(db storage.DB, auth identity.Authorizer, treasuryID string, threshold int, sink observe.Sink, log *logger.Logger) *Service {
	if sink == nil {
		sink = observe.Noop{}
	}
	if log == nil {
		log = logger.NewDefault("treasury")
	}
	if threshold < 1 {
		threshold = 1
	}
	return &Service{
		db:         db,
		auth:       auth,
		treasuryID: treasuryID,
		threshold:  threshold,
		sink:       sink,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// TreasuryIdentity returns the identity holding protocol funds.
func (s *Service) TreasuryIdentity() string {
	return s.treasuryID
}

// SetExchangeRate installs or replaces the conversion rate for a currency.
// Admin only.
func (s *Service) SetExchangeRate(ctx context.Context, caller, currency string, numerator, denominator int64) (treasury.ExchangeRate, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return treasury.ExchangeRate{}, fmt.Errorf("currency is required")
	}
	if currency == treasury.NativeCurrency {
		return treasury.ExchangeRate{}, fmt.Errorf("native currency converts 1:1: %w", ErrInvalidState)
	}
	if numerator <= 0 || denominator <= 0 {
		return treasury.ExchangeRate{}, fmt.Errorf("rate must be positive: %w", ErrInvalidAmount)
	}
	if !s.auth.IsAdmin(caller) {
		return treasury.ExchangeRate{}, fmt.Errorf("caller %s may not set rates: %w", caller, ErrUnauthorized)
	}

	rate, err := s.db.SetExchangeRate(ctx, treasury.ExchangeRate{
		Currency:    currency,
		Numerator:   numerator,
		Denominator: denominator,
	})
	if err != nil {
		return treasury.ExchangeRate{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:     observe.KindRateSet,
		Actor:    caller,
		Currency: currency,
		Fields: map[string]string{
			"numerator":   fmt.Sprintf("%d", numerator),
			"denominator": fmt.Sprintf("%d", denominator),
		},
	})
	s.log.WithField("currency", currency).
		WithField("numerator", numerator).
		WithField("denominator", denominator).
		Info("exchange rate set")
	return rate, nil
}

// Deposit credits an identity's escrow with funds received in the given
// currency. Non-native currencies convert into ledger units through the rate
// table, rounding down; the native unit converts 1:1.
func (s *Service) Deposit(ctx context.Context, depositor, currency string, amount int64) (treasury.EscrowAccount, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if depositor == "" {
		return treasury.EscrowAccount{}, fmt.Errorf("depositor is required")
	}
	if amount <= 0 {
		return treasury.EscrowAccount{}, fmt.Errorf("amount must be positive: %w", ErrInvalidAmount)
	}

	var (
		acct  treasury.EscrowAccount
		units int64
	)
	err := s.db.Transact(ctx, func(st storage.Store) error {
		var err error
		units, err = s.toUnits(ctx, st, currency, amount)
		if err != nil {
			return err
		}
		if units <= 0 {
			return fmt.Errorf("deposit of %d %s converts to zero units: %w", amount, currency, ErrInvalidAmount)
		}
		acct, err = CreditFree(ctx, st, depositor, treasury.NativeCurrency, units)
		return err
	})
	if err != nil {
		return treasury.EscrowAccount{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:     observe.KindEscrowDeposited,
		Actor:    depositor,
		Amount:   units,
		Currency: currency,
		Fields:   map[string]string{"paid": fmt.Sprintf("%d", amount)},
	})
	s.log.WithField("depositor", depositor).
		WithField("currency", currency).
		WithField("paid", amount).
		WithField("units", units).
		Info("escrow deposit")
	return acct, nil
}

// BuyValueWithExternalFunds converts an external payment straight into freshly
// minted token value in the given slot, without passing through the buyer's
// escrow balance.
func (s *Service) BuyValueWithExternalFunds(ctx context.Context, buyer, currency string, amount int64, slotID string) (token.Token, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if buyer == "" {
		return token.Token{}, fmt.Errorf("buyer is required")
	}
	if amount <= 0 {
		return token.Token{}, fmt.Errorf("amount must be positive: %w", ErrInvalidAmount)
	}

	var minted token.Token
	err := s.db.Transact(ctx, func(st storage.Store) error {
		if _, err := st.GetSlot(ctx, slotID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("slot %s: %w", slotID, ErrSlotNotFound)
			}
			return err
		}
		units, err := s.toUnits(ctx, st, currency, amount)
		if err != nil {
			return err
		}
		if units <= 0 {
			return fmt.Errorf("payment of %d %s converts to zero units: %w", amount, currency, ErrInvalidAmount)
		}
		minted, err = st.CreateToken(ctx, token.Token{SlotID: slotID, Owner: buyer, Value: units})
		return err
	})
	if err != nil {
		return token.Token{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:     observe.KindTokenMinted,
		Actor:    buyer,
		TokenID:  minted.ID,
		SlotID:   slotID,
		Amount:   minted.Value,
		Currency: currency,
		Fields:   map[string]string{"source": "external_purchase", "paid": fmt.Sprintf("%d", amount)},
	})
	s.log.WithField("buyer", buyer).
		WithField("token_id", minted.ID).
		WithField("units", minted.Value).
		Info("value bought with external funds")
	return minted, nil
}

// IssueVoucher creates a one-time voucher redeemable by bearer. Admin only.
func (s *Service) IssueVoucher(ctx context.Context, caller, bearer string, faceValue int64) (treasury.Voucher, error) {
	if bearer == "" {
		return treasury.Voucher{}, fmt.Errorf("bearer is required")
	}
	if faceValue <= 0 {
		return treasury.Voucher{}, fmt.Errorf("face value must be positive: %w", ErrInvalidAmount)
	}
	if !s.auth.IsAdmin(caller) {
		return treasury.Voucher{}, fmt.Errorf("caller %s may not issue vouchers: %w", caller, ErrUnauthorized)
	}

	v, err := s.db.CreateVoucher(ctx, treasury.Voucher{Issuer: caller, Bearer: bearer, FaceValue: faceValue})
	if err != nil {
		return treasury.Voucher{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:   observe.KindVoucherIssued,
		Actor:  caller,
		Amount: faceValue,
		Fields: map[string]string{"voucher_id": v.ID, "bearer": bearer},
	})
	s.log.WithField("voucher_id", v.ID).WithField("bearer", bearer).Info("voucher issued")
	return v, nil
}

// RedeemVoucher credits the voucher's face value to the bearer's escrow.
// Vouchers are bearer-bound and one-shot: a second redemption fails with
// ErrInvalidState and changes nothing.
func (s *Service) RedeemVoucher(ctx context.Context, caller, voucherID string) (treasury.EscrowAccount, error) {
	var acct treasury.EscrowAccount
	err := s.db.Transact(ctx, func(st storage.Store) error {
		v, err := st.GetVoucher(ctx, voucherID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("voucher %s: %w", voucherID, ErrVoucherNotFound)
			}
			return err
		}
		if v.Bearer != caller {
			return fmt.Errorf("voucher %s is not redeemable by %s: %w", voucherID, caller, ErrUnauthorized)
		}
		if v.Redeemed {
			return fmt.Errorf("voucher %s already redeemed: %w", voucherID, ErrInvalidState)
		}

		v.Redeemed = true
		v.RedeemedAt = s.now()
		if _, err := st.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		acct, err = CreditFree(ctx, st, caller, treasury.NativeCurrency, v.FaceValue)
		return err
	})
	if err != nil {
		return treasury.EscrowAccount{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:   observe.KindVoucherRedeemed,
		Actor:  caller,
		Fields: map[string]string{"voucher_id": voucherID},
	})
	s.log.WithField("voucher_id", voucherID).WithField("bearer", caller).Info("voucher redeemed")
	return acct, nil
}

// Balance returns the identity's native escrow account. A missing account
// reads as zero.
func (s *Service) Balance(ctx context.Context, id string) (treasury.EscrowAccount, error) {
	acct, err := s.db.GetEscrowAccount(ctx, id, treasury.NativeCurrency)
	if errors.Is(err, storage.ErrNotFound) {
		return treasury.EscrowAccount{Identity: id, Currency: treasury.NativeCurrency}, nil
	}
	return acct, err
}

// Balances returns all escrow accounts an identity holds.
func (s *Service) Balances(ctx context.Context, id string) ([]treasury.EscrowAccount, error) {
	return s.db.ListEscrowAccounts(ctx, id)
}

// toUnits converts an external amount into ledger units. The native currency
// converts 1:1; everything else requires a rate.
func (s *Service) toUnits(ctx context.Context, st storage.TreasuryStore, currency string, amount int64) (int64, error) {
	if currency == treasury.NativeCurrency {
		return amount, nil
	}
	rate, err := st.GetExchangeRate(ctx, currency)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("currency %s: %w", currency, ErrRateNotFound)
		}
		return 0, err
	}
	return Convert(amount, rate)
}
