// Package treasury defines escrow accounts, exchange rates, vouchers and
// multi-signature disbursements.
package treasury

import "time"

// NativeCurrency is the ledger's own value unit. Deposits in other currencies
// are converted into it on entry.
const NativeCurrency = "SLOT"

// EscrowAccount holds an identity's balance for one asset kind, split into a
// spendable partition and a partition reserved against pending offers/bids.
type EscrowAccount struct {
	Identity  string
	Currency  string
	Free      int64
	Reserved  int64
	UpdatedAt time.Time
}

// ExchangeRate converts one unit of a currency into ledger value units as
// Numerator/Denominator.
type ExchangeRate struct {
	Currency    string
	Numerator   int64
	Denominator int64
	UpdatedAt   time.Time
}

// Voucher is a one-time certificate redeemable by its bearer for ledger value.
type Voucher struct {
	ID         string
	Issuer     string
	Bearer     string
	FaceValue  int64
	Redeemed   bool
	RedeemedAt time.Time
	CreatedAt  time.Time
}

// DisbursementStatus tracks a multi-signature treasury payout.
type DisbursementStatus string

const (
	DisbursementPending  DisbursementStatus = "pending"
	DisbursementExecuted DisbursementStatus = "executed"
)

// Disbursement is a treasury payout awaiting N-of-M signer confirmation. The
// confirmation set is idempotent: re-confirming is a no-op. A disbursement
// whose execution fails for lack of funds stays pending so a later
// confirmation can retry it.
type Disbursement struct {
	ID            string
	Amount        int64
	Destination   string
	ProposedBy    string
	Required      int
	Confirmations []string
	Status        DisbursementStatus
	ExecutedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Confirmed reports whether the signer has already confirmed.
func (d Disbursement) Confirmed(signer string) bool {
	for _, s := range d.Confirmations {
		if s == signer {
			return true
		}
	}
	return false
}
