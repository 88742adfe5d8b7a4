package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"carpool/internal/repository"
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db *sql.DB
	q  Querier
}

// NewStore creates a store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Users() repository.UserRepository               { return &UserRepository{q: s.q} }
func (s *Store) Wallets() repository.WalletRepository           { return &WalletRepository{q: s.q} }
func (s *Store) Transactions() repository.TransactionRepository { return &TransactionRepository{q: s.q} }
func (s *Store) Rides() repository.RideRepository               { return &RideRepository{q: s.q} }
func (s *Store) Bookings() repository.BookingRepository         { return &BookingRepository{q: s.q} }
func (s *Store) Vehicles() repository.VehicleRepository         { return &VehicleRepository{q: s.q} }

// WithinTx runs fn inside a READ COMMITTED transaction. Concurrent writers
// are serialised by the row locks the repositories take (FOR UPDATE), not
// by the isolation level.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &Store{db: s.db, q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)
