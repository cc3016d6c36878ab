package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

type WalletsRepository interface {
	GetBalance(ctx context.Context, userID int64) (entities.Cents, error)
	ApplyCredit(ctx context.Context, entry *entities.WalletEntry) (bool, error)
	ApplyDebit(ctx context.Context, entry *entities.WalletEntry) error
}

// WalletService holds per-user USD balances. Credits carry a caller-supplied
// dedup key tied to a gateway reference or order event; debits mint their own.
type WalletService struct {
	repo WalletsRepository
}

func NewWalletService(repo WalletsRepository) *WalletService {
	return &WalletService{repo: repo}
}

func (ws *WalletService) Balance(ctx context.Context, userID int64) (entities.Cents, error) {
	return ws.repo.GetBalance(ctx, userID)
}

// Credit increases the balance. A repeated dedup key is a no-op success.
func (ws *WalletService) Credit(ctx context.Context, userID int64, amount entities.Cents, reason, dedupKey string) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit amount must not be negative", entities.ErrValidation)
	}
	if dedupKey == "" {
		return fmt.Errorf("%w: credit requires a dedup key", entities.ErrValidation)
	}

	_, err := ws.repo.ApplyCredit(ctx, &entities.WalletEntry{
		DedupKey:  dedupKey,
		UserID:    userID,
		AmountUSD: amount,
		Reason:    reason,
	})
	return err
}

// Debit decreases the balance, failing with ErrInsufficientFunds when the
// balance cannot cover the amount.
func (ws *WalletService) Debit(ctx context.Context, userID int64, amount entities.Cents, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit amount must be positive", entities.ErrValidation)
	}

	return ws.repo.ApplyDebit(ctx, &entities.WalletEntry{
		DedupKey:  "debit:" + uuid.NewString(),
		UserID:    userID,
		AmountUSD: amount,
		Reason:    reason,
	})
}
