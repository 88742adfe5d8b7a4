package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

type userRepo struct{ v view }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.users[user.ID]; ok {
			return repository.ErrConflict
		}
		for _, u := range st.users {
			if u.Phone == user.Phone {
				return repository.ErrConflict
			}
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var out *domain.User
	err := r.v.do(func(st *state) error {
		for _, u := range st.users {
			if u.Phone == phone {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

type walletRepo struct{ v view }

func (r *walletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.wallets[wallet.UserID]; ok {
			return repository.ErrConflict
		}
		st.wallets[wallet.UserID] = *wallet
		return nil
	})
}

func (r *walletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := r.v.do(func(st *state) error {
		w, ok := st.wallets[userID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: a transaction already owns the whole store.
func (r *walletRepo) GetForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *walletRepo) UpdateBalances(ctx context.Context, wallet *domain.Wallet) error {
	return r.v.do(func(st *state) error {
		w, ok := st.wallets[wallet.UserID]
		if !ok || w.ID != wallet.ID {
			return repository.ErrNotFound
		}
		w.SpendableBalance = wallet.SpendableBalance
		w.ReservedBalance = wallet.ReservedBalance
		w.UpdatedAt = wallet.UpdatedAt
		st.wallets[wallet.UserID] = w
		return nil
	})
}

type txnRepo struct{ v view }

func (r *txnRepo) Create(ctx context.Context, txn *domain.WalletTransaction) error {
	return r.v.do(func(st *state) error {
		if txn.Purpose.IsGuarded() {
			for _, t := range st.txns {
				if t.Purpose != txn.Purpose {
					continue
				}
				if txn.RideBookID != "" && t.RideBookID == txn.RideBookID {
					return repository.ErrConflict
				}
				if txn.RideBookID == "" && txn.RideID != "" && t.RideBookID == "" && t.RideID == txn.RideID {
					return repository.ErrConflict
				}
			}
		}
		st.txns = append(st.txns, *txn)
		return nil
	})
}

func (r *txnRepo) FindByBooking(ctx context.Context, rideBookID string, purpose domain.TransactionPurpose) (*domain.WalletTransaction, error) {
	return r.find(func(t domain.WalletTransaction) bool {
		return t.RideBookID == rideBookID && t.Purpose == purpose
	})
}

func (r *txnRepo) FindByRide(ctx context.Context, rideID string, purpose domain.TransactionPurpose) (*domain.WalletTransaction, error) {
	return r.find(func(t domain.WalletTransaction) bool {
		return t.RideID == rideID && t.RideBookID == "" && t.Purpose == purpose
	})
}

func (r *txnRepo) find(match func(domain.WalletTransaction) bool) (*domain.WalletTransaction, error) {
	var out *domain.WalletTransaction
	err := r.v.do(func(st *state) error {
		for _, t := range st.txns {
			if match(t) {
				t := t
				out = &t
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *txnRepo) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.WalletTransaction, error) {
	var out []*domain.WalletTransaction
	err := r.v.do(func(st *state) error {
		// newest first; the log is append-only so reverse order is creation order
		for i := len(st.txns) - 1; i >= 0; i-- {
			if st.txns[i].WalletID != walletID {
				continue
			}
			if offset > 0 {
				offset--
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			t := st.txns[i]
			out = append(out, &t)
		}
		return nil
	})
	return out, err
}

type rideRepo struct{ v view }

func (r *rideRepo) Create(ctx context.Context, ride *domain.Ride) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.rides[ride.ID]; ok {
			return repository.ErrConflict
		}
		st.rides[ride.ID] = *ride
		return nil
	})
}

func (r *rideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	var out *domain.Ride
	err := r.v.do(func(st *state) error {
		ride, ok := st.rides[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &ride
		return nil
	})
	return out, err
}

func (r *rideRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *rideRepo) Update(ctx context.Context, ride *domain.Ride) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.rides[ride.ID]; !ok {
			return repository.ErrNotFound
		}
		st.rides[ride.ID] = *ride
		return nil
	})
}

func (r *rideRepo) GetOpenByDriverID(ctx context.Context, driverID string) (*domain.Ride, error) {
	var out *domain.Ride
	err := r.v.do(func(st *state) error {
		for _, ride := range st.rides {
			if ride.DriverID == driverID && !ride.Status.IsTerminal() {
				ride := ride
				out = &ride
				return nil
			}
		}
		return nil
	})
	return out, err
}

type bookingRepo struct{ v view }

func (r *bookingRepo) Create(ctx context.Context, booking *domain.RideBooking) error {
	return r.v.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.ID == booking.ID || (b.RideID == booking.RideID && b.UserID == booking.UserID) {
				return repository.ErrConflict
			}
		}
		st.bookings[booking.ID] = *booking
		return nil
	})
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*domain.RideBooking, error) {
	var out *domain.RideBooking
	err := r.v.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id string) (*domain.RideBooking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) GetByRideAndUser(ctx context.Context, rideID, userID string) (*domain.RideBooking, error) {
	var out *domain.RideBooking
	err := r.v.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.RideID == rideID && b.UserID == userID {
				b := b
				out = &b
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	return r.v.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		b.Status = status
		b.UpdatedAt = time.Now()
		st.bookings[id] = b
		return nil
	})
}

func (r *bookingRepo) ListByRide(ctx context.Context, rideID string, statuses ...domain.BookingStatus) ([]*domain.RideBooking, error) {
	return r.filter(func(b domain.RideBooking) bool {
		return b.RideID == rideID && hasStatus(b.Status, statuses)
	}, false)
}

func (r *bookingRepo) CountByRide(ctx context.Context, rideID string, statuses ...domain.BookingStatus) (int, error) {
	list, err := r.ListByRide(ctx, rideID, statuses...)
	return len(list), err
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID string) ([]*domain.RideBooking, error) {
	return r.filter(func(b domain.RideBooking) bool {
		return b.UserID == userID
	}, true)
}

func (r *bookingRepo) HasSeatOnActiveRide(ctx context.Context, userID, excludeRideID string) (bool, error) {
	found := false
	err := r.v.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.UserID != userID || b.RideID == excludeRideID || !b.Status.HoldsSeat() {
				continue
			}
			if ride, ok := st.rides[b.RideID]; ok && ride.Status == domain.RideStatusActive {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *bookingRepo) filter(match func(domain.RideBooking) bool, newestFirst bool) ([]*domain.RideBooking, error) {
	var out []*domain.RideBooking
	err := r.v.do(func(st *state) error {
		for _, b := range st.bookings {
			if match(b) {
				b := b
				out = append(out, &b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func hasStatus(status domain.BookingStatus, statuses []domain.BookingStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type vehicleRepo struct{ v view }

func (r *vehicleRepo) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	var out *domain.Vehicle
	err := r.v.do(func(st *state) error {
		v, ok := st.vehicles[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}
