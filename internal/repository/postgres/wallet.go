package postgres

import (
	"context"
	"database/sql"
	"errors"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// WalletRepository implements repository.WalletRepository using PostgreSQL.
type WalletRepository struct {
	q Querier
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{q: db}
}

const walletColumns = `id, user_id, spendable_balance, reserved_balance, created_at, updated_at`

// Create persists a new wallet.
func (r *WalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, spendable_balance, reserved_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.ExecContext(ctx, query,
		wallet.ID,
		wallet.UserID,
		wallet.SpendableBalance,
		wallet.ReservedBalance,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByUserID retrieves a user's wallet.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.q.QueryRowContext(ctx, query, userID))
}

// GetForUpdate retrieves a user's wallet and locks its row.
func (r *WalletRepository) GetForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	return scanWallet(r.q.QueryRowContext(ctx, query, userID))
}

// UpdateBalances writes both balances of the wallet.
func (r *WalletRepository) UpdateBalances(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		UPDATE wallets
		SET spendable_balance = $1, reserved_balance = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.q.ExecContext(ctx, query,
		wallet.SpendableBalance,
		wallet.ReservedBalance,
		wallet.UpdatedAt,
		wallet.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanWallet(row rowScanner) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.SpendableBalance, &w.ReservedBalance, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// TransactionRepository implements repository.TransactionRepository using PostgreSQL.
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

const transactionColumns = `id, wallet_id, amount, direction, purpose, ride_id, ride_book_id, description, created_at`

// Create appends a ledger entry. The partial unique indexes on
// (ride_book_id, purpose) and (ride_id, purpose) reject duplicates.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (id, wallet_id, amount, direction, purpose, ride_id, ride_book_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		txn.ID,
		txn.WalletID,
		txn.Amount,
		txn.Direction,
		txn.Purpose,
		nullString(txn.RideID),
		nullString(txn.RideBookID),
		txn.Description,
		txn.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// FindByBooking retrieves the entry for a booking and purpose, or nil.
func (r *TransactionRepository) FindByBooking(ctx context.Context, rideBookID string, purpose domain.TransactionPurpose) (*domain.WalletTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE ride_book_id = $1 AND purpose = $2
		LIMIT 1
	`
	return r.findOne(ctx, query, rideBookID, purpose)
}

// FindByRide retrieves the ride-scoped entry for a ride and purpose, or nil.
func (r *TransactionRepository) FindByRide(ctx context.Context, rideID string, purpose domain.TransactionPurpose) (*domain.WalletTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE ride_id = $1 AND purpose = $2 AND ride_book_id IS NULL
		LIMIT 1
	`
	return r.findOne(ctx, query, rideID, purpose)
}

// ListByWallet lists a wallet's entries, newest first.
func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.WalletTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.QueryContext(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.WalletTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

func (r *TransactionRepository) findOne(ctx context.Context, query string, args ...any) (*domain.WalletTransaction, error) {
	txn, err := scanTransaction(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return txn, err
}

func scanTransaction(row rowScanner) (*domain.WalletTransaction, error) {
	var t domain.WalletTransaction
	var rideID, rideBookID sql.NullString

	err := row.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Direction, &t.Purpose, &rideID, &rideBookID, &t.Description, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.RideID = rideID.String
	t.RideBookID = rideBookID.String
	return &t, nil
}

var (
	_ repository.WalletRepository      = (*WalletRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
)
