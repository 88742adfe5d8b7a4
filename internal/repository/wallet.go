package repository

import (
	"context"

	"carpool/internal/domain"
)

// WalletRepository defines the persistence operations for wallets.
type WalletRepository interface {
	// Create persists a new wallet. Returns ErrConflict if the user already has one.
	Create(ctx context.Context, wallet *domain.Wallet) error

	// GetByUserID retrieves a user's wallet.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// GetForUpdate retrieves a user's wallet and locks its row for the rest
	// of the transaction.
	GetForUpdate(ctx context.Context, userID string) (*domain.Wallet, error)

	// UpdateBalances writes both balances of the wallet.
	UpdateBalances(ctx context.Context, wallet *domain.Wallet) error
}

// TransactionRepository defines the persistence operations for the wallet
// transaction log. Entries are never updated or deleted.
type TransactionRepository interface {
	// Create appends an entry. Returns ErrConflict if an idempotency-guarded
	// entry with the same correlation key and purpose already exists.
	Create(ctx context.Context, txn *domain.WalletTransaction) error

	// FindByBooking retrieves the entry for a booking and purpose.
	// Returns nil if none exists.
	FindByBooking(ctx context.Context, rideBookID string, purpose domain.TransactionPurpose) (*domain.WalletTransaction, error)

	// FindByRide retrieves the ride-scoped entry (no booking) for a ride and purpose.
	// Returns nil if none exists.
	FindByRide(ctx context.Context, rideID string, purpose domain.TransactionPurpose) (*domain.WalletTransaction, error)

	// ListByWallet lists a wallet's entries, newest first.
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.WalletTransaction, error)
}
