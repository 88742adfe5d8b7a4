package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
	"carpool/internal/repository"
	"carpool/internal/repository/memory"
)

// MemorySeed is the fixture loaded into the memory driver at startup.
// Vehicle management lives outside this service, so without a seed no
// ride can be offered.
type MemorySeed struct {
	Users []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"users"`
	Vehicles []struct {
		ID      string             `json:"id"`
		OwnerID string             `json:"owner_id"`
		Type    domain.VehicleType `json:"type"`
	} `json:"vehicles"`
}

// LoadMemorySeed reads a MemorySeed from a JSON file.
func LoadMemorySeed(path string) (*MemorySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read memory seed: %w", err)
	}

	var seed MemorySeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse memory seed %s: %w", path, err)
	}
	return &seed, nil
}

// ApplyMemorySeed creates the seeded users with empty wallets and
// registers the seeded vehicles.
func ApplyMemorySeed(ctx context.Context, store *memory.Store, seed *MemorySeed) error {
	now := time.Now()

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, u := range seed.Users {
			if u.ID == "" {
				return fmt.Errorf("seed user %q has no id", u.Name)
			}
			user := &domain.User{ID: u.ID, Name: u.Name, Phone: u.Phone, CreatedAt: now}
			if err := tx.Users().Create(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
			wallet := &domain.Wallet{
				ID:               uuid.New().String(),
				UserID:           u.ID,
				SpendableBalance: decimal.Zero,
				ReservedBalance:  decimal.Zero,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.Wallets().Create(ctx, wallet); err != nil {
				return fmt.Errorf("seed wallet %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, v := range seed.Vehicles {
		switch v.Type {
		case domain.VehicleTypeTwoWheeler, domain.VehicleTypeFourWheeler:
		default:
			return fmt.Errorf("seed vehicle %s: unknown type %q", v.ID, v.Type)
		}
		store.AddVehicle(domain.Vehicle{ID: v.ID, OwnerID: v.OwnerID, Type: v.Type})
	}
	return nil
}
