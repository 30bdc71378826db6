// Package ledger implements the value-accounting core: slots, tokens,
// approvals and the value-movement rules between them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/identity"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/pkg/logger"
)

var (
	ErrSlotNotFound          = errors.New("slot not found")
	ErrTokenNotFound         = errors.New("token not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrSlotMismatch          = errors.New("slot mismatch")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrRecipientRejected     = errors.New("recipient rejected")
	ErrValueOverflow         = errors.New("value overflow")
	ErrInvalidValue          = errors.New("invalid value")
)

// AcceptancePolicy decides whether a recipient identity can accept value in a
// slot. Identities without special handling always accept.
type AcceptancePolicy interface {
	CanAccept(ctx context.Context, recipient, slotID string) (bool, error)
}

// AcceptAll is the default policy: every recipient accepts.
type AcceptAll struct{}

func (AcceptAll) CanAccept(context.Context, string, string) (bool, error) { return true, nil }

// Service manages slots, tokens and value movement between them.
type Service struct {
	db     storage.DB
	auth   identity.Authorizer
	policy AcceptancePolicy
	sink   observe.Sink
	log    *logger.Logger
}

// New constructs a ledger service.
func New(db storage.DB, auth identity.Authorizer, sink observe.Sink, log *logger.Logger) *Service {
	if sink == nil {
		sink = observe.Noop{}
	}
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{
		db:     db,
		auth:   auth,
		policy: AcceptAll{},
		sink:   sink,
		log:    log,
	}
}

// WithAcceptancePolicy replaces the recipient acceptance policy.
func (s *Service) WithAcceptancePolicy(p AcceptancePolicy) *Service {
	if p != nil {
		s.policy = p
	}
	return s
}

// RegisterSlot creates a new fungibility category. Admin only.
func (s *Service) RegisterSlot(ctx context.Context, caller, name string, marketActive bool, royaltyReceiver string, royaltyBps int64) (token.Slot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return token.Slot{}, fmt.Errorf("name is required")
	}
	if royaltyBps < 0 || royaltyBps > 10_000 {
		return token.Slot{}, fmt.Errorf("royalty_bps must be between 0 and 10000")
	}
	if !s.auth.IsAdmin(caller) {
		return token.Slot{}, fmt.Errorf("caller %s may not register slots: %w", caller, ErrUnauthorized)
	}

	slot, err := s.db.CreateSlot(ctx, token.Slot{
		Name:            name,
		MarketActive:    marketActive,
		RoyaltyReceiver: royaltyReceiver,
		RoyaltyBps:      royaltyBps,
	})
	if err != nil {
		return token.Slot{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:   observe.KindSlotRegistered,
		Actor:  caller,
		SlotID: slot.ID,
		Fields: map[string]string{"name": slot.Name},
	})
	s.log.WithField("slot_id", slot.ID).WithField("name", slot.Name).Info("slot registered")
	return slot, nil
}

// SetSlotMarketActive toggles whether the slot's tokens may be traded. Admin
// only.
func (s *Service) SetSlotMarketActive(ctx context.Context, caller, slotID string, active bool) (token.Slot, error) {
	if !s.auth.IsAdmin(caller) {
		return token.Slot{}, fmt.Errorf("caller %s may not update slots: %w", caller, ErrUnauthorized)
	}
	slot, err := s.db.GetSlot(ctx, slotID)
	if err != nil {
		return token.Slot{}, slotErr(slotID, err)
	}
	slot.MarketActive = active
	slot, err = s.db.UpdateSlot(ctx, slot)
	if err != nil {
		return token.Slot{}, slotErr(slotID, err)
	}
	s.log.WithField("slot_id", slotID).WithField("market_active", active).Info("slot market flag updated")
	return slot, nil
}

// Mint creates a token with the given value for owner. The caller must be an
// authorized minter for the slot, and the owner must accept value in it.
func (s *Service) Mint(ctx context.Context, caller, slotID, owner string, value int64) (token.Token, error) {
	if owner == "" {
		return token.Token{}, fmt.Errorf("owner is required")
	}
	if value < 0 {
		return token.Token{}, fmt.Errorf("value must not be negative: %w", ErrInvalidValue)
	}
	if !s.auth.CanMint(caller, slotID) {
		return token.Token{}, fmt.Errorf("caller %s may not mint into slot %s: %w", caller, slotID, ErrUnauthorized)
	}
	if err := s.checkAcceptance(ctx, owner, slotID); err != nil {
		return token.Token{}, err
	}

	var minted token.Token
	err := s.db.Transact(ctx, func(st storage.Store) error {
		if _, err := st.GetSlot(ctx, slotID); err != nil {
			return slotErr(slotID, err)
		}
		var err error
		minted, err = st.CreateToken(ctx, token.Token{SlotID: slotID, Owner: owner, Value: value})
		return err
	})
	if err != nil {
		return token.Token{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindTokenMinted,
		Actor:   caller,
		TokenID: minted.ID,
		SlotID:  slotID,
		Amount:  value,
		Fields:  map[string]string{"owner": owner},
	})
	s.log.WithField("token_id", minted.ID).
		WithField("slot_id", slotID).
		WithField("owner", owner).
		WithField("value", value).
		Info("token minted")
	return minted, nil
}

// Burn destroys a token together with its remaining value. Only the owner or
// an approved operator may burn.
func (s *Service) Burn(ctx context.Context, caller, tokenID string) error {
	var burned token.Token
	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := st.GetToken(ctx, tokenID)
		if err != nil {
			return tokenErr(tokenID, err)
		}
		ok, err := s.isOperator(ctx, st, caller, tok)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("caller %s may not burn token %s: %w", caller, tokenID, ErrUnauthorized)
		}
		burned = tok
		return st.DeleteToken(ctx, tokenID)
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindTokenBurned,
		Actor:   caller,
		TokenID: tokenID,
		SlotID:  burned.SlotID,
		Amount:  burned.Value,
	})
	s.log.WithField("token_id", tokenID).WithField("value", burned.Value).Info("token burned")
	return nil
}

// TransferValue moves amount from one token to another token in the same
// slot. The caller must be authorized over the source token.
func (s *Service) TransferValue(ctx context.Context, caller, fromTokenID, toTokenID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrInvalidValue)
	}
	if fromTokenID == toTokenID {
		return fmt.Errorf("source and destination tokens are the same: %w", ErrInvalidValue)
	}

	var slotID string
	err := s.db.Transact(ctx, func(st storage.Store) error {
		from, err := st.GetToken(ctx, fromTokenID)
		if err != nil {
			return tokenErr(fromTokenID, err)
		}
		to, err := st.GetToken(ctx, toTokenID)
		if err != nil {
			return tokenErr(toTokenID, err)
		}
		if from.SlotID != to.SlotID {
			return fmt.Errorf("token %s is in slot %s, token %s in slot %s: %w",
				fromTokenID, from.SlotID, toTokenID, to.SlotID, ErrSlotMismatch)
		}
		if err := s.authorizeValueMove(ctx, st, caller, from, amount); err != nil {
			return err
		}
		if from.Value < amount {
			return fmt.Errorf("token %s holds %d, need %d: %w", fromTokenID, from.Value, amount, ErrInsufficientBalance)
		}
		newValue, err := safeAdd(to.Value, amount)
		if err != nil {
			return err
		}

		from.Value -= amount
		to.Value = newValue
		if _, err := st.UpdateToken(ctx, from); err != nil {
			return err
		}
		if _, err := st.UpdateToken(ctx, to); err != nil {
			return err
		}
		slotID = from.SlotID
		return nil
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindValueMoved,
		Actor:   caller,
		TokenID: fromTokenID,
		SlotID:  slotID,
		Amount:  amount,
		Fields:  map[string]string{"to_token": toTokenID},
	})
	s.log.WithField("from", fromTokenID).
		WithField("to", toTokenID).
		WithField("amount", amount).
		Info("value transferred")
	return nil
}

// TransferValueToIdentity moves amount out of a token into a freshly minted
// token owned by the recipient. The recipient must accept value in the slot.
func (s *Service) TransferValueToIdentity(ctx context.Context, caller, fromTokenID, recipient string, amount int64) (token.Token, error) {
	if amount <= 0 {
		return token.Token{}, fmt.Errorf("amount must be positive: %w", ErrInvalidValue)
	}
	if recipient == "" {
		return token.Token{}, fmt.Errorf("recipient is required")
	}

	var minted token.Token
	err := s.db.Transact(ctx, func(st storage.Store) error {
		from, err := st.GetToken(ctx, fromTokenID)
		if err != nil {
			return tokenErr(fromTokenID, err)
		}
		if err := s.authorizeValueMove(ctx, st, caller, from, amount); err != nil {
			return err
		}
		if from.Value < amount {
			return fmt.Errorf("token %s holds %d, need %d: %w", fromTokenID, from.Value, amount, ErrInsufficientBalance)
		}
		if err := s.checkAcceptance(ctx, recipient, from.SlotID); err != nil {
			return err
		}

		from.Value -= amount
		if _, err := st.UpdateToken(ctx, from); err != nil {
			return err
		}
		minted, err = st.CreateToken(ctx, token.Token{SlotID: from.SlotID, Owner: recipient, Value: amount})
		return err
	})
	if err != nil {
		return token.Token{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindValueMoved,
		Actor:   caller,
		TokenID: fromTokenID,
		SlotID:  minted.SlotID,
		Amount:  amount,
		Fields:  map[string]string{"to_token": minted.ID, "recipient": recipient},
	})
	s.log.WithField("from", fromTokenID).
		WithField("recipient", recipient).
		WithField("new_token", minted.ID).
		WithField("amount", amount).
		Info("value transferred to identity")
	return minted, nil
}

// Approve sets (or clears, with an empty operator) the single approved
// operator for a token.
func (s *Service) Approve(ctx context.Context, caller, tokenID, operator string) error {
	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := st.GetToken(ctx, tokenID)
		if err != nil {
			return tokenErr(tokenID, err)
		}
		if caller != tok.Owner {
			blanket, err := st.HasBlanketApproval(ctx, tok.Owner, caller)
			if err != nil {
				return err
			}
			if !blanket {
				return fmt.Errorf("caller %s may not approve token %s: %w", caller, tokenID, ErrUnauthorized)
			}
		}
		tok.Operator = operator
		_, err = st.UpdateToken(ctx, tok)
		return err
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindApprovalSet,
		Actor:   caller,
		TokenID: tokenID,
		Fields:  map[string]string{"operator": operator, "scope": "token"},
	})
	return nil
}

// SetApprovalForAll grants or revokes an operator over every token the caller
// owns, now and in the future.
func (s *Service) SetApprovalForAll(ctx context.Context, caller, operator string, approved bool) error {
	if operator == "" {
		return fmt.Errorf("operator is required")
	}
	if operator == caller {
		return fmt.Errorf("cannot approve self: %w", ErrInvalidValue)
	}
	if err := s.db.SetBlanketApproval(ctx, caller, operator, approved); err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:  observe.KindApprovalSet,
		Actor: caller,
		Fields: map[string]string{
			"operator": operator,
			"scope":    "all",
			"approved": fmt.Sprintf("%t", approved),
		},
	})
	return nil
}

// ApproveValue grants a value allowance on a token. A zero amount with
// unlimited=false revokes the allowance.
func (s *Service) ApproveValue(ctx context.Context, caller, tokenID, grantee string, amount int64, unlimited bool) error {
	if grantee == "" {
		return fmt.Errorf("grantee is required")
	}
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %w", ErrInvalidValue)
	}

	err := s.db.Transact(ctx, func(st storage.Store) error {
		tok, err := st.GetToken(ctx, tokenID)
		if err != nil {
			return tokenErr(tokenID, err)
		}
		ok, err := s.isOperator(ctx, st, caller, tok)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("caller %s may not approve value on token %s: %w", caller, tokenID, ErrUnauthorized)
		}
		if amount == 0 && !unlimited {
			return st.DeleteValueAllowance(ctx, tokenID, grantee)
		}
		return st.SetValueAllowance(ctx, token.ValueAllowance{
			TokenID:   tokenID,
			Grantee:   grantee,
			Remaining: amount,
			Unlimited: unlimited,
		})
	})
	if err != nil {
		return err
	}

	s.sink.Emit(observe.Observation{
		Kind:    observe.KindApprovalSet,
		Actor:   caller,
		TokenID: tokenID,
		Amount:  amount,
		Fields: map[string]string{
			"grantee":   grantee,
			"scope":     "value",
			"unlimited": fmt.Sprintf("%t", unlimited),
		},
	})
	return nil
}

// BalanceOf returns the value units a token holds.
func (s *Service) BalanceOf(ctx context.Context, tokenID string) (int64, error) {
	tok, err := s.db.GetToken(ctx, tokenID)
	if err != nil {
		return 0, tokenErr(tokenID, err)
	}
	return tok.Value, nil
}

// SlotOf returns the slot a token belongs to.
func (s *Service) SlotOf(ctx context.Context, tokenID string) (string, error) {
	tok, err := s.db.GetToken(ctx, tokenID)
	if err != nil {
		return "", tokenErr(tokenID, err)
	}
	return tok.SlotID, nil
}

// TokenCount returns the number of tokens an identity owns.
func (s *Service) TokenCount(ctx context.Context, owner string) (int, error) {
	tokens, err := s.db.ListTokensByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// GetToken returns a token by ID.
func (s *Service) GetToken(ctx context.Context, tokenID string) (token.Token, error) {
	tok, err := s.db.GetToken(ctx, tokenID)
	if err != nil {
		return token.Token{}, tokenErr(tokenID, err)
	}
	return tok, nil
}

// GetSlot returns a slot by ID.
func (s *Service) GetSlot(ctx context.Context, slotID string) (token.Slot, error) {
	slot, err := s.db.GetSlot(ctx, slotID)
	if err != nil {
		return token.Slot{}, slotErr(slotID, err)
	}
	return slot, nil
}

// ListSlots returns all registered slots.
func (s *Service) ListSlots(ctx context.Context) ([]token.Slot, error) {
	return s.db.ListSlots(ctx)
}

// ListTokensByOwner returns the tokens an identity owns.
func (s *Service) ListTokensByOwner(ctx context.Context, owner string) ([]token.Token, error) {
	return s.db.ListTokensByOwner(ctx, owner)
}

// Allowance returns the value allowance a grantee holds on a token, or a zero
// allowance when none exists.
func (s *Service) Allowance(ctx context.Context, tokenID, grantee string) (token.ValueAllowance, error) {
	a, err := s.db.GetValueAllowance(ctx, tokenID, grantee)
	if errors.Is(err, storage.ErrNotFound) {
		return token.ValueAllowance{TokenID: tokenID, Grantee: grantee}, nil
	}
	return a, err
}

// isOperator reports whether caller is the owner, the token operator or a
// blanket operator of the token's owner.
func (s *Service) isOperator(ctx context.Context, st storage.Store, caller string, tok token.Token) (bool, error) {
	if caller == tok.Owner {
		return true, nil
	}
	if tok.Operator != "" && tok.Operator == caller {
		return true, nil
	}
	return st.HasBlanketApproval(ctx, tok.Owner, caller)
}

// authorizeValueMove checks caller authority over the source token, in order:
// owner, token operator, blanket operator, then value allowance. Using an
// allowance decrements it unless it is unlimited.
func (s *Service) authorizeValueMove(ctx context.Context, st storage.Store, caller string, tok token.Token, amount int64) error {
	ok, err := s.isOperator(ctx, st, caller, tok)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	allowance, err := st.GetValueAllowance(ctx, tok.ID, caller)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("caller %s may not move value from token %s: %w", caller, tok.ID, ErrUnauthorized)
	}
	if err != nil {
		return err
	}
	if allowance.Unlimited {
		return nil
	}
	if allowance.Remaining < amount {
		return fmt.Errorf("allowance %d, need %d: %w", allowance.Remaining, amount, ErrInsufficientAllowance)
	}
	allowance.Remaining -= amount
	if allowance.Remaining == 0 {
		return st.DeleteValueAllowance(ctx, tok.ID, caller)
	}
	return st.SetValueAllowance(ctx, allowance)
}

func (s *Service) checkAcceptance(ctx context.Context, recipient, slotID string) error {
	ok, err := s.policy.CanAccept(ctx, recipient, slotID)
	if err != nil {
		return fmt.Errorf("acceptance check for %s: %w", recipient, err)
	}
	if !ok {
		return fmt.Errorf("recipient %s does not accept slot %s value: %w", recipient, slotID, ErrRecipientRejected)
	}
	return nil
}

func safeAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("adding %d and %d: %w", a, b, ErrValueOverflow)
	}
	return sum, nil
}

func tokenErr(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("token %s: %w", id, ErrTokenNotFound)
	}
	return err
}

func slotErr(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("slot %s: %w", id, ErrSlotNotFound)
	}
	return err
}
