package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
	"carpool/internal/logger"
	"carpool/internal/metrics"
	"carpool/internal/repository"
)

// LedgerService applies balance mutations to wallets. Every operation runs
// inside the caller's transaction, locks exactly one wallet, and appends
// exactly one wallet transaction.
//
// All operations except Hold are idempotent: if an entry with the same
// correlation key and purpose already exists they return false and leave
// balances untouched.
type LedgerService struct {
	now func() time.Time
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService() *LedgerService {
	return &LedgerService{now: time.Now}
}

// ledgerEntry describes the log entry an operation writes.
type ledgerEntry struct {
	purpose     domain.TransactionPurpose
	direction   domain.TransactionDirection
	rideID      string
	rideBookID  string
	amount      decimal.Decimal // always positive
	description string
}

// signedAmount is what gets logged: positive for credits, negative for
// debits, zero for entries that only move value between balances.
func (e ledgerEntry) signedAmount() decimal.Decimal {
	switch e.direction {
	case domain.DirectionCredit:
		return e.amount
	case domain.DirectionDebit:
		return e.amount.Neg()
	}
	return decimal.Zero
}

// Hold moves amount from spendable to reserved when a booking is created.
// It is not idempotency-guarded; one hold per booking follows from booking
// uniqueness.
func (s *LedgerService) Hold(ctx context.Context, tx repository.Tx, userID, rideID, rideBookID string, amount decimal.Decimal) error {
	entry := ledgerEntry{
		purpose:     domain.PurposeBookingReserve,
		direction:   domain.DirectionNeutral,
		rideID:      rideID,
		rideBookID:  rideBookID,
		amount:      amount,
		description: fmt.Sprintf("reserved %s points for booking %s", amount, rideBookID),
	}

	_, err := s.apply(ctx, tx, userID, entry, func(w *domain.Wallet) error {
		if !w.SpendableBalance.GreaterThan(amount) {
			return ErrInsufficientBalance
		}
		w.SpendableBalance = w.SpendableBalance.Sub(amount)
		w.ReservedBalance = w.ReservedBalance.Add(amount)
		return nil
	})
	return err
}

// Unhold returns a booking's reserved amount to spendable.
func (s *LedgerService) Unhold(ctx context.Context, tx repository.Tx, userID, rideID, rideBookID string, amount decimal.Decimal) (bool, error) {
	entry := ledgerEntry{
		purpose:     domain.PurposeBookingRelease,
		direction:   domain.DirectionNeutral,
		rideID:      rideID,
		rideBookID:  rideBookID,
		amount:      amount,
		description: fmt.Sprintf("released %s points for booking %s", amount, rideBookID),
	}

	return s.apply(ctx, tx, userID, entry, func(w *domain.Wallet) error {
		if w.ReservedBalance.LessThan(amount) {
			return ErrReservedBalanceTooLow
		}
		w.SpendableBalance = w.SpendableBalance.Add(amount)
		w.ReservedBalance = w.ReservedBalance.Sub(amount)
		return nil
	})
}

// Settle debits a booking's reserved amount when the ride completes.
func (s *LedgerService) Settle(ctx context.Context, tx repository.Tx, userID, rideID, rideBookID string, amount decimal.Decimal) (bool, error) {
	entry := ledgerEntry{
		purpose:     domain.PurposeBookingSettle,
		direction:   domain.DirectionDebit,
		rideID:      rideID,
		rideBookID:  rideBookID,
		amount:      amount,
		description: fmt.Sprintf("settled booking %s", rideBookID),
	}

	return s.apply(ctx, tx, userID, entry, func(w *domain.Wallet) error {
		if w.ReservedBalance.LessThan(amount) {
			return ErrReservedBalanceTooLow
		}
		w.ReservedBalance = w.ReservedBalance.Sub(amount)
		return nil
	})
}

// CreditPayout credits the driver for a completed booking.
func (s *LedgerService) CreditPayout(ctx context.Context, tx repository.Tx, userID, rideID, rideBookID string, amount decimal.Decimal) (bool, error) {
	entry := ledgerEntry{
		purpose:     domain.PurposePayout,
		direction:   domain.DirectionCredit,
		rideID:      rideID,
		rideBookID:  rideBookID,
		amount:      amount,
		description: fmt.Sprintf("payout for booking %s", rideBookID),
	}

	return s.apply(ctx, tx, userID, entry, func(w *domain.Wallet) error {
		w.SpendableBalance = w.SpendableBalance.Add(amount)
		return nil
	})
}

// ApplyFineChargeRideBooking fines userID in connection with one booking.
// Spendable may go negative.
func (s *LedgerService) ApplyFineChargeRideBooking(ctx context.Context, tx repository.Tx, userID, rideID, rideBookID string, amount decimal.Decimal) (bool, error) {
	entry := ledgerEntry{
		purpose:     domain.PurposeFineCharge,
		direction:   domain.DirectionDebit,
		rideID:      rideID,
		rideBookID:  rideBookID,
		amount:      amount,
		description: fmt.Sprintf("fine for booking %s", rideBookID),
	}

	return s.apply(ctx, tx, userID, entry, debitSpendable(amount))
}

// ApplyFineChargeRide fines userID once for a whole ride.
func (s *LedgerService) ApplyFineChargeRide(ctx context.Context, tx repository.Tx, userID, rideID string, amount decimal.Decimal) (bool, error) {
	entry := ledgerEntry{
		purpose:     domain.PurposeFineCharge,
		direction:   domain.DirectionDebit,
		rideID:      rideID,
		amount:      amount,
		description: fmt.Sprintf("fine for cancelling ride %s", rideID),
	}

	return s.apply(ctx, tx, userID, entry, debitSpendable(amount))
}

// TopUp credits points bought or granted outside the ride flow.
func (s *LedgerService) TopUp(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal, description string) error {
	if description == "" {
		description = "wallet top-up"
	}
	entry := ledgerEntry{
		purpose:     domain.PurposeTopUp,
		direction:   domain.DirectionCredit,
		amount:      amount,
		description: description,
	}

	_, err := s.apply(ctx, tx, userID, entry, func(w *domain.Wallet) error {
		w.SpendableBalance = w.SpendableBalance.Add(amount)
		return nil
	})
	return err
}

func debitSpendable(amount decimal.Decimal) func(*domain.Wallet) error {
	return func(w *domain.Wallet) error {
		w.SpendableBalance = w.SpendableBalance.Sub(amount)
		return nil
	}
}

// apply locks the wallet, checks the idempotency key, mutates the balances
// and appends the log entry. The lookup runs after the lock so two callers
// racing on the same key serialise on the wallet row.
func (s *LedgerService) apply(ctx context.Context, tx repository.Tx, userID string, entry ledgerEntry, mutate func(*domain.Wallet) error) (bool, error) {
	if !entry.amount.IsPositive() {
		return false, ErrInvalidAmount
	}

	wallet, err := tx.Wallets().GetForUpdate(ctx, userID)
	if err != nil {
		return false, notFound(err, ErrWalletNotFound, "lock wallet")
	}

	if entry.purpose.IsGuarded() {
		existing, err := s.findApplied(ctx, tx, entry)
		if err != nil {
			return false, fmt.Errorf("look up %s entry: %w", entry.purpose, err)
		}
		if existing != nil {
			metrics.RecordLedgerOperation(string(entry.purpose), metrics.OutcomeSkipped, 0)
			logger.Log.Debugw("ledger operation already applied",
				"purpose", entry.purpose,
				"ride_id", entry.rideID,
				"booking_id", entry.rideBookID,
				"transaction_id", existing.ID,
			)
			return false, nil
		}
	}

	if err := mutate(wallet); err != nil {
		metrics.RecordLedgerOperation(string(entry.purpose), metrics.OutcomeFailed, 0)
		return false, err
	}

	now := s.now()
	txn := &domain.WalletTransaction{
		ID:          uuid.New().String(),
		WalletID:    wallet.ID,
		Amount:      entry.signedAmount(),
		Direction:   entry.direction,
		Purpose:     entry.purpose,
		RideID:      entry.rideID,
		RideBookID:  entry.rideBookID,
		Description: entry.description,
		CreatedAt:   now,
	}

	if err := tx.Transactions().Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrAlreadyApplied
		}
		return false, fmt.Errorf("append wallet transaction: %w", err)
	}

	wallet.UpdatedAt = now
	if err := tx.Wallets().UpdateBalances(ctx, wallet); err != nil {
		return false, fmt.Errorf("update wallet balances: %w", err)
	}

	metrics.RecordLedgerOperation(string(entry.purpose), metrics.OutcomeApplied, entry.amount.InexactFloat64())
	logger.Log.Debugw("ledger operation applied",
		"purpose", entry.purpose,
		"user_id", userID,
		"ride_id", entry.rideID,
		"booking_id", entry.rideBookID,
		"amount", entry.amount.String(),
	)

	return true, nil
}

func (s *LedgerService) findApplied(ctx context.Context, tx repository.Tx, entry ledgerEntry) (*domain.WalletTransaction, error) {
	if entry.rideBookID != "" {
		return tx.Transactions().FindByBooking(ctx, entry.rideBookID, entry.purpose)
	}
	return tx.Transactions().FindByRide(ctx, entry.rideID, entry.purpose)
}
