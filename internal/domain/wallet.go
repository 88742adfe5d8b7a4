package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's carbon points.
type Wallet struct {
	ID               string
	UserID           string
	SpendableBalance decimal.Decimal
	ReservedBalance  decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Total returns spendable plus reserved.
func (w *Wallet) Total() decimal.Decimal {
	return w.SpendableBalance.Add(w.ReservedBalance)
}

// TransactionDirection describes how an entry moved value.
type TransactionDirection string

const (
	DirectionCredit  TransactionDirection = "CREDIT"
	DirectionDebit   TransactionDirection = "DEBIT"
	DirectionNeutral TransactionDirection = "NEUTRAL"
)

// TransactionPurpose classifies a wallet transaction.
type TransactionPurpose string

const (
	PurposeTopUp          TransactionPurpose = "TOPUP"
	PurposeBookingReserve TransactionPurpose = "BOOKING_RESERVE"
	PurposeBookingRelease TransactionPurpose = "BOOKING_RELEASE"
	PurposeBookingSettle  TransactionPurpose = "BOOKING_SETTLE"
	PurposePayout         TransactionPurpose = "PAYOUT"
	PurposeFineCharge     TransactionPurpose = "FINE_CHARGE"
	PurposeRefund         TransactionPurpose = "REFUND"
	PurposePromotion      TransactionPurpose = "PROMOTION"
	PurposeAdjustment     TransactionPurpose = "ADJUSTMENT"
	PurposeOrderPurchase  TransactionPurpose = "ORDER_PURCHASE"
	PurposeOrderRefund    TransactionPurpose = "ORDER_REFUND"
)

// IsGuarded reports whether at most one entry may exist per correlation key
// (booking, or ride when no booking is set) for this purpose.
func (p TransactionPurpose) IsGuarded() bool {
	switch p {
	case PurposeBookingRelease, PurposeBookingSettle, PurposePayout, PurposeFineCharge:
		return true
	}
	return false
}

// WalletTransaction is an immutable ledger entry.
type WalletTransaction struct {
	ID          string
	WalletID    string
	Amount      decimal.Decimal // signed; zero for NEUTRAL entries
	Direction   TransactionDirection
	Purpose     TransactionPurpose
	RideID      string // optional
	RideBookID  string // optional
	Description string
	CreatedAt   time.Time
}
