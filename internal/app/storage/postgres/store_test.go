package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/slotledger/market_layer/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetTokenNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM ledger_tokens").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetToken(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetToken(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "slot_id", "owner", "value", "operator", "created_at", "updated_at"}).
		AddRow("tok-1", "slot-1", "alice", int64(250), "", now, now)
	mock.ExpectQuery("SELECT .+ FROM ledger_tokens").
		WithArgs("tok-1").
		WillReturnRows(rows)

	tok, err := store.GetToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if tok.Owner != "alice" || tok.Value != 250 || tok.SlotID != "slot-1" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateTokenNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE ledger_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateToken(context.Background(), tokenFixture())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_slots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.Transact(context.Background(), func(tx storage.Store) error {
		if _, err := tx.CreateSlot(context.Background(), slotFixture()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransactCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_slots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Transact(context.Background(), func(tx storage.Store) error {
		_, err := tx.CreateSlot(context.Background(), slotFixture())
		return err
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
