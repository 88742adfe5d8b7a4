package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// WalletCacheTTL bounds how stale a cached balance can get if an
// invalidation is lost.
const WalletCacheTTL = 30 * time.Second

// walletGenerationTTL must outlive every snapshot so an expired counter
// cannot restart at a generation that still has a snapshot.
const walletGenerationTTL = 24 * time.Hour

const (
	walletCachePrefix      = "cache:wallet:"
	walletGenerationPrefix = "cache:wallet-gen:"
)

func walletSnapshotKey(userID string, generation int64) string {
	return walletCachePrefix + userID + ":" + strconv.FormatInt(generation, 10)
}

// WalletCache caches wallet snapshots in Redis. Snapshots are keyed by the
// wallet's generation counter; invalidation bumps the counter.
type WalletCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWalletCache creates a new WalletCache.
func NewWalletCache(client *redis.Client) *WalletCache {
	return &WalletCache{client: client, ttl: WalletCacheTTL}
}

// CachedWallet is the cached form of a wallet. Balances are kept as
// strings so no precision is lost.
type CachedWallet struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	SpendableBalance decimal.Decimal `json:"spendable_balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// GetWallet retrieves a wallet from cache with its current generation. A
// miss returns a nil wallet.
func (s *WalletCache) GetWallet(ctx context.Context, userID string) (*domain.Wallet, int64, error) {
	generation, err := s.client.Get(ctx, walletGenerationPrefix+userID).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	data, err := s.client.Get(ctx, walletSnapshotKey(userID, generation)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, generation, nil
		}
		return nil, 0, err
	}

	var cached CachedWallet
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, 0, err
	}

	return &domain.Wallet{
		ID:               cached.ID,
		UserID:           cached.UserID,
		SpendableBalance: cached.SpendableBalance,
		ReservedBalance:  cached.ReservedBalance,
		UpdatedAt:        cached.UpdatedAt,
	}, generation, nil
}

// SetWallet stores a wallet snapshot under the given generation.
func (s *WalletCache) SetWallet(ctx context.Context, wallet *domain.Wallet, generation int64) error {
	data, err := json.Marshal(CachedWallet{
		ID:               wallet.ID,
		UserID:           wallet.UserID,
		SpendableBalance: wallet.SpendableBalance,
		ReservedBalance:  wallet.ReservedBalance,
		UpdatedAt:        wallet.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, walletSnapshotKey(wallet.UserID, generation), data, s.ttl).Err()
}

// InvalidateWallets moves each wallet to a new generation. Old snapshots
// are left to expire.
func (s *WalletCache) InvalidateWallets(ctx context.Context, userIDs ...string) error {
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		key := walletGenerationPrefix + id
		if err := s.client.Incr(ctx, key).Err(); err != nil {
			return err
		}
		if err := s.client.Expire(ctx, key, walletGenerationTTL).Err(); err != nil {
			return err
		}
	}
	return nil
}

var _ service.WalletCache = (*WalletCache)(nil)
