package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
	"carpool/internal/logger"
	"carpool/internal/repository"
)

const (
	defaultTransactionPageSize = 50
	maxTransactionPageSize     = 200
)

// WalletCache caches wallet snapshots for reads. Cache errors never fail a
// request; the store stays authoritative.
//
// GetWallet returns the cached snapshot (nil on a miss) and the wallet's
// current cache generation. A snapshot loaded from the store after a miss
// is stored with SetWallet under that generation. InvalidateWallets moves
// each wallet to a new generation, so a snapshot read before a mutation
// committed and stored after its invalidation is never served.
type WalletCache interface {
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, int64, error)
	SetWallet(ctx context.Context, wallet *domain.Wallet, generation int64) error
	InvalidateWallets(ctx context.Context, userIDs ...string) error
}

type noopWalletCache struct{}

func (noopWalletCache) GetWallet(context.Context, string) (*domain.Wallet, int64, error) {
	return nil, 0, nil
}
func (noopWalletCache) SetWallet(context.Context, *domain.Wallet, int64) error { return nil }
func (noopWalletCache) InvalidateWallets(context.Context, ...string) error     { return nil }

func invalidateWallets(ctx context.Context, cache WalletCache, userIDs ...string) {
	if err := cache.InvalidateWallets(ctx, userIDs...); err != nil {
		logger.Log.Warnw("wallet cache invalidation failed", "user_ids", userIDs, "error", err)
	}
}

// WalletService handles registration and wallet reads and top-ups.
type WalletService struct {
	store  repository.Store
	ledger *LedgerService
	cache  WalletCache
	now    func() time.Time
}

// NewWalletService creates a new WalletService. cache may be nil.
func NewWalletService(store repository.Store, ledger *LedgerService, cache WalletCache) *WalletService {
	if cache == nil {
		cache = noopWalletCache{}
	}
	return &WalletService{
		store:  store,
		ledger: ledger,
		cache:  cache,
		now:    time.Now,
	}
}

// RegisterUserRequest contains the parameters for registering a user.
type RegisterUserRequest struct {
	Name  string
	Phone string
}

// RegisterUser creates a user and their empty wallet in one transaction.
func (s *WalletService) RegisterUser(ctx context.Context, req RegisterUserRequest) (*domain.User, *domain.Wallet, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || phone == "" {
		return nil, nil, ErrInvalidUser
	}

	now := s.now()
	user := &domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Phone:     phone,
		CreatedAt: now,
	}
	wallet := &domain.Wallet{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		SpendableBalance: decimal.Zero,
		ReservedBalance:  decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrPhoneTaken
			}
			return fmt.Errorf("create user: %w", err)
		}
		if err := tx.Wallets().Create(ctx, wallet); err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Log.Infow("user registered", "user_id", user.ID)
	return user, wallet, nil
}

// GetWallet returns the caller's wallet, from cache when possible.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	// The generation is read before the store load; without it the
	// snapshot is not cached.
	cached, generation, cacheErr := s.cache.GetWallet(ctx, userID)
	if cacheErr != nil {
		logger.Log.Warnw("wallet cache read failed", "user_id", userID, "error", cacheErr)
	} else if cached != nil {
		return cached, nil
	}

	wallet, err := s.store.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound, "get wallet")
	}

	if cacheErr == nil {
		if err := s.cache.SetWallet(ctx, wallet, generation); err != nil {
			logger.Log.Warnw("wallet cache write failed", "user_id", userID, "error", err)
		}
	}
	return wallet, nil
}

// ListTransactions pages through the caller's ledger entries, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.WalletTransaction, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultTransactionPageSize
	}
	if limit > maxTransactionPageSize {
		limit = maxTransactionPageSize
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.store.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound, "get wallet")
	}

	return s.store.Transactions().ListByWallet(ctx, wallet.ID, limit, offset)
}

// TopUp credits userID's wallet. It is an operator action; callers never
// reach it for their own wallet.
func (s *WalletService) TopUp(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, ErrWalletNotFound
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var wallet *domain.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := s.ledger.TopUp(ctx, tx, userID, amount, description); err != nil {
			return err
		}
		var err error
		wallet, err = tx.Wallets().GetByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	invalidateWallets(ctx, s.cache, userID)
	logger.Log.Infow("wallet topped up", "user_id", userID, "amount", amount.String())

	return wallet, nil
}
