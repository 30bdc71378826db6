package treasury

import (
	"context"
	"errors"
	"fmt"

	"github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/storage"
)

// ProposeDisbursement opens a treasury payout request. The proposer must be a
// signer and counts as the first confirmation.
func (s *Service) ProposeDisbursement(ctx context.Context, proposer, destination string, amount int64) (treasury.Disbursement, error) {
	if destination == "" {
		return treasury.Disbursement{}, fmt.Errorf("destination is required")
	}
	if amount <= 0 {
		return treasury.Disbursement{}, fmt.Errorf("amount must be positive: %w", ErrInvalidAmount)
	}
	if !s.auth.IsTreasurySigner(proposer) {
		return treasury.Disbursement{}, fmt.Errorf("caller %s is not a treasury signer: %w", proposer, ErrUnauthorized)
	}

	d, err := s.db.CreateDisbursement(ctx, treasury.Disbursement{
		Amount:        amount,
		Destination:   destination,
		ProposedBy:    proposer,
		Required:      s.threshold,
		Confirmations: []string{proposer},
		Status:        treasury.DisbursementPending,
	})
	if err != nil {
		return treasury.Disbursement{}, err
	}

	s.sink.Emit(observe.Observation{
		Kind:   observe.KindDisbursementProposed,
		Actor:  proposer,
		Amount: amount,
		Fields: map[string]string{"disbursement_id": d.ID, "destination": destination},
	})
	s.log.WithField("disbursement_id", d.ID).
		WithField("amount", amount).
		WithField("destination", destination).
		Info("disbursement proposed")

	return s.maybeExecute(ctx, d)
}

// ConfirmDisbursement records a signer's confirmation. Re-confirming is a
// no-op, including on an already-executed request. When the confirmation set
// reaches the threshold the payout executes; if the treasury cannot cover it
// the request stays pending with all confirmations intact so a later attempt
// can retry.
func (s *Service) ConfirmDisbursement(ctx context.Context, signer, id string) (treasury.Disbursement, error) {
	if !s.auth.IsTreasurySigner(signer) {
		return treasury.Disbursement{}, fmt.Errorf("caller %s is not a treasury signer: %w", signer, ErrUnauthorized)
	}

	var (
		d     treasury.Disbursement
		added bool
	)
	err := s.db.Transact(ctx, func(st storage.Store) error {
		var err error
		d, err = st.GetDisbursement(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("disbursement %s: %w", id, ErrDisbursementNotFound)
			}
			return err
		}
		if d.Status == treasury.DisbursementExecuted || d.Confirmed(signer) {
			return nil
		}
		d.Confirmations = append(d.Confirmations, signer)
		added = true
		d, err = st.UpdateDisbursement(ctx, d)
		return err
	})
	if err != nil {
		return treasury.Disbursement{}, err
	}
	if d.Status == treasury.DisbursementExecuted {
		return d, nil
	}

	// a repeated confirmation changes nothing and is not observed
	if added {
		s.sink.Emit(observe.Observation{
			Kind:   observe.KindDisbursementConfirmed,
			Actor:  signer,
			Fields: map[string]string{
				"disbursement_id": d.ID,
				"confirmations":   fmt.Sprintf("%d/%d", len(d.Confirmations), d.Required),
			},
		})
	}

	return s.maybeExecute(ctx, d)
}

// GetDisbursement returns a disbursement request by ID.
func (s *Service) GetDisbursement(ctx context.Context, id string) (treasury.Disbursement, error) {
	d, err := s.db.GetDisbursement(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return treasury.Disbursement{}, fmt.Errorf("disbursement %s: %w", id, ErrDisbursementNotFound)
	}
	return d, err
}

// ListPendingDisbursements returns requests awaiting confirmation or retry.
func (s *Service) ListPendingDisbursements(ctx context.Context) ([]treasury.Disbursement, error) {
	return s.db.ListPendingDisbursements(ctx)
}

// maybeExecute pays out a disbursement once its threshold is met. It runs in
// its own transaction, after the confirmation has committed: a failed payout
// must not roll back the confirmation that triggered it.
func (s *Service) maybeExecute(ctx context.Context, d treasury.Disbursement) (treasury.Disbursement, error) {
	if d.Status != treasury.DisbursementPending || len(d.Confirmations) < d.Required {
		return d, nil
	}

	err := s.db.Transact(ctx, func(st storage.Store) error {
		current, err := st.GetDisbursement(ctx, d.ID)
		if err != nil {
			return err
		}
		if current.Status != treasury.DisbursementPending {
			d = current
			return nil
		}
		if _, err := DebitFree(ctx, st, s.treasuryID, treasury.NativeCurrency, current.Amount); err != nil {
			return err
		}
		if _, err := CreditFree(ctx, st, current.Destination, treasury.NativeCurrency, current.Amount); err != nil {
			return err
		}
		current.Status = treasury.DisbursementExecuted
		current.ExecutedAt = s.now()
		d, err = st.UpdateDisbursement(ctx, current)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			s.log.WithField("disbursement_id", d.ID).
				WithField("amount", d.Amount).
				Warn("disbursement execution failed, request stays pending")
			return d, fmt.Errorf("disbursement %s: %w: %w", d.ID, ErrDisbursementFailed, err)
		}
		return treasury.Disbursement{}, err
	}

	if d.Status == treasury.DisbursementExecuted {
		s.sink.Emit(observe.Observation{
			Kind:   observe.KindDisbursementExecuted,
			Amount: d.Amount,
			Fields: map[string]string{"disbursement_id": d.ID, "destination": d.Destination},
		})
		s.log.WithField("disbursement_id", d.ID).
			WithField("amount", d.Amount).
			WithField("destination", d.Destination).
			Info("disbursement executed")
	}
	return d, nil
}
