package handlers

import (
	"context"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

type WalletService interface {
	Balance(ctx context.Context, userID int64) (entities.Cents, error)
	Credit(ctx context.Context, userID int64, amount entities.Cents, reason, dedupKey string) error
	Debit(ctx context.Context, userID int64, amount entities.Cents, reason string) error
}
