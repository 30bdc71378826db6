package treasury

import (
	"context"
	"errors"
	"fmt"

	"github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
)

// Store-level escrow primitives. They operate on whichever store they are
// handed, so settlement flows can call them inside their own transaction.
// Amounts are always positive; balances never go negative.

func loadAccount(ctx context.Context, st storage.TreasuryStore, identity, currency string) (treasury.EscrowAccount, error) {
	acct, err := st.GetEscrowAccount(ctx, identity, currency)
	if errors.Is(err, storage.ErrNotFound) {
		return treasury.EscrowAccount{Identity: identity, Currency: currency}, nil
	}
	return acct, err
}

// CreditFree adds amount to the identity's spendable balance, creating the
// account if needed.
func CreditFree(ctx context.Context, st storage.TreasuryStore, identity, currency string, amount int64) (treasury.EscrowAccount, error) {
	if amount <= 0 {
		return treasury.EscrowAccount{}, fmt.Errorf("credit amount must be positive: %w", ErrInvalidAmount)
	}
	acct, err := loadAccount(ctx, st, identity, currency)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	free, err := safeAdd(acct.Free, amount)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	acct.Free = free
	return st.PutEscrowAccount(ctx, acct)
}

// DebitFree removes amount from the identity's spendable balance.
func DebitFree(ctx context.Context, st storage.TreasuryStore, identity, currency string, amount int64) (treasury.EscrowAccount, error) {
	if amount <= 0 {
		return treasury.EscrowAccount{}, fmt.Errorf("debit amount must be positive: %w", ErrInvalidAmount)
	}
	acct, err := loadAccount(ctx, st, identity, currency)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	if acct.Free < amount {
		return treasury.EscrowAccount{}, fmt.Errorf("%s has %d free %s, need %d: %w",
			identity, acct.Free, currency, amount, ErrInsufficientFunds)
	}
	acct.Free -= amount
	return st.PutEscrowAccount(ctx, acct)
}

// LockReserve moves amount from the free partition into the reserved
// partition, backing a pending offer or bid.
func LockReserve(ctx context.Context, st storage.TreasuryStore, identity, currency string, amount int64) (treasury.EscrowAccount, error) {
	if amount <= 0 {
		return treasury.EscrowAccount{}, fmt.Errorf("lock amount must be positive: %w", ErrInvalidAmount)
	}
	acct, err := loadAccount(ctx, st, identity, currency)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	if acct.Free < amount {
		return treasury.EscrowAccount{}, fmt.Errorf("%s has %d free %s, need %d: %w",
			identity, acct.Free, currency, amount, ErrInsufficientFunds)
	}
	reserved, err := safeAdd(acct.Reserved, amount)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	acct.Free -= amount
	acct.Reserved = reserved
	return st.PutEscrowAccount(ctx, acct)
}

// ReleaseReserve moves amount back from the reserved partition into the free
// partition, exactly undoing a lock.
func ReleaseReserve(ctx context.Context, st storage.TreasuryStore, identity, currency string, amount int64) (treasury.EscrowAccount, error) {
	if amount <= 0 {
		return treasury.EscrowAccount{}, fmt.Errorf("release amount must be positive: %w", ErrInvalidAmount)
	}
	acct, err := loadAccount(ctx, st, identity, currency)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	if acct.Reserved < amount {
		return treasury.EscrowAccount{}, fmt.Errorf("%s has %d reserved %s, need %d: %w",
			identity, acct.Reserved, currency, amount, ErrInsufficientFunds)
	}
	free, err := safeAdd(acct.Free, amount)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	acct.Reserved -= amount
	acct.Free = free
	return st.PutEscrowAccount(ctx, acct)
}

// DebitReserved spends amount out of the reserved partition, settling the
// obligation the lock was backing.
func DebitReserved(ctx context.Context, st storage.TreasuryStore, identity, currency string, amount int64) (treasury.EscrowAccount, error) {
	if amount <= 0 {
		return treasury.EscrowAccount{}, fmt.Errorf("debit amount must be positive: %w", ErrInvalidAmount)
	}
	acct, err := loadAccount(ctx, st, identity, currency)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	if acct.Reserved < amount {
		return treasury.EscrowAccount{}, fmt.Errorf("%s has %d reserved %s, need %d: %w",
			identity, acct.Reserved, currency, amount, ErrInsufficientFunds)
	}
	acct.Reserved -= amount
	_, err = st.PutEscrowAccount(ctx, acct)
	if err != nil {
		return treasury.EscrowAccount{}, err
	}
	return acct, nil
}

func safeAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("adding %d and %d: %w", a, b, ErrAmountOverflow)
	}
	return sum, nil
}

func safeMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, fmt.Errorf("multiplying %d by %d: %w", a, b, ErrAmountOverflow)
	}
	return product, nil
}

// Convert turns an external-currency amount into ledger value units using the
// rate, rounding down.
func Convert(amount int64, rate treasury.ExchangeRate) (int64, error) {
	if rate.Numerator <= 0 || rate.Denominator <= 0 {
		return 0, fmt.Errorf("rate for %s is not positive: %w", rate.Currency, ErrInvalidAmount)
	}
	product, err := safeMul(amount, rate.Numerator)
	if err != nil {
		return 0, err
	}
	return product / rate.Denominator, nil
}
