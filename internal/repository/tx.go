package repository

import "context"

// Tx is a unit of work. Every repository it hands out shares one
// transaction, so all writes made through it commit or roll back together.
type Tx interface {
	Users() UserRepository
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Rides() RideRepository
	Bookings() BookingRepository
	Vehicles() VehicleRepository
}

// Transactor scopes a Tx. WithinTx commits when fn returns nil and rolls
// back on error or panic.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store gives non-transactional access to the repositories and opens
// transactions on demand.
type Store interface {
	Tx
	Transactor
}
