// Package identity answers authorization questions about caller identities.
// Identities are opaque strings; who holds which role comes from operator
// policy, not from the ledger itself.
package identity

// Authorizer reports the roles an identity holds.
type Authorizer interface {
	// IsAdmin reports whether the identity may perform administrative
	// operations such as registering slots, setting exchange rates and
	// issuing vouchers.
	IsAdmin(id string) bool

	// IsTreasurySigner reports whether the identity belongs to the treasury
	// multi-signature signer set.
	IsTreasurySigner(id string) bool

	// CanMint reports whether the identity may mint tokens into the slot.
	CanMint(id, slotID string) bool
}

// WildcardSlot grants minting across every slot when used as a minter policy
// key.
const WildcardSlot = "*"

// Static is an Authorizer backed by fixed role sets loaded from configuration.
type Static struct {
	admins  map[string]bool
	signers map[string]bool
	minters map[string]map[string]bool // slotID -> identity
}

var _ Authorizer = (*Static)(nil)

// NewStatic builds a Static authorizer. minters maps a slot ID (or
// WildcardSlot) to the identities allowed to mint into it.
func NewStatic(admins, signers []string, minters map[string][]string) *Static {
	s := &Static{
		admins:  make(map[string]bool, len(admins)),
		signers: make(map[string]bool, len(signers)),
		minters: make(map[string]map[string]bool, len(minters)),
	}
	for _, id := range admins {
		s.admins[id] = true
	}
	for _, id := range signers {
		s.signers[id] = true
	}
	for slotID, ids := range minters {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		s.minters[slotID] = set
	}
	return s
}

func (s *Static) IsAdmin(id string) bool {
	return s.admins[id]
}

func (s *Static) IsTreasurySigner(id string) bool {
	return s.signers[id]
}

// CanMint allows admins, slot-specific minters and wildcard minters.
func (s *Static) CanMint(id, slotID string) bool {
	if s.admins[id] {
		return true
	}
	if s.minters[slotID][id] {
		return true
	}
	return s.minters[WildcardSlot][id]
}
