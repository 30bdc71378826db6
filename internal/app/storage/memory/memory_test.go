package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/domain/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
)

func TestTransactCommit(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Transact(ctx, func(tx storage.Store) error {
		if _, err := tx.CreateSlot(ctx, token.Slot{Name: "gold"}); err != nil {
			return err
		}
		_, err := tx.CreateToken(ctx, token.Token{SlotID: "1", Owner: "alice", Value: 100})
		return err
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}

	tok, err := s.GetToken(ctx, "2")
	if err != nil {
		t.Fatalf("get token after commit: %v", err)
	}
	if tok.Owner != "alice" || tok.Value != 100 {
		t.Fatalf("unexpected token %+v", tok)
	}
}

func TestTransactRollback(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateToken(ctx, token.Token{SlotID: "s", Owner: "alice", Value: 50}); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	boom := errors.New("boom")
	err := s.Transact(ctx, func(tx storage.Store) error {
		tok, err := tx.GetToken(ctx, "1")
		if err != nil {
			return err
		}
		tok.Value = 0
		if _, err := tx.UpdateToken(ctx, tok); err != nil {
			return err
		}
		if err := tx.DeleteToken(ctx, "1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	tok, err := s.GetToken(ctx, "1")
	if err != nil {
		t.Fatalf("token should survive rollback: %v", err)
	}
	if tok.Value != 50 {
		t.Fatalf("value changed across rollback: %d", tok.Value)
	}
}

func TestNotFoundWrapping(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetToken(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetVoucher(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetOffer(ctx, "tok", "bob"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisbursementConfirmationsIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()

	d, err := s.CreateDisbursement(ctx, treasury.Disbursement{
		Amount:        10,
		Destination:   "ops",
		Required:      2,
		Confirmations: []string{"s1"},
		Status:        treasury.DisbursementPending,
	})
	if err != nil {
		t.Fatalf("create disbursement: %v", err)
	}

	d.Confirmations = append(d.Confirmations, "s2")

	stored, err := s.GetDisbursement(ctx, d.ID)
	if err != nil {
		t.Fatalf("get disbursement: %v", err)
	}
	if len(stored.Confirmations) != 1 {
		t.Fatalf("stored confirmations mutated by caller: %v", stored.Confirmations)
	}
}
