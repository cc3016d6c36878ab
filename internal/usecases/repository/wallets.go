package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/pkg/database"
)

// WalletsRepository stores per-user USD balances. Every mutation is a keyed
// wallet entry so a replayed credit or debit is a no-op.
type WalletsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewWalletsRepository(logger *slog.Logger, pg *database.Postgres) *WalletsRepository {
	return &WalletsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

// GetBalance returns the user's balance, zero for users without a wallet row.
func (r *WalletsRepository) GetBalance(ctx context.Context, userID int64) (entities.Cents, error) {
	var balance entities.Cents

	err := r.db(ctx).QueryRow(ctx,
		"SELECT balance_usd FROM wallet_balances WHERE user_id = $1", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query wallet balance: %w", err)
	}

	return balance, nil
}

// ApplyCredit increases the balance. Returns false without touching anything
// when the dedup key was already applied; this is what makes reconciliation
// retries safe.
func (r *WalletsRepository) ApplyCredit(ctx context.Context, entry *entities.WalletEntry) (bool, error) {
	if entry.AmountUSD < 0 {
		return false, fmt.Errorf("%w: credit amount must not be negative", entities.ErrValidation)
	}

	return r.applyEntry(ctx, entry)
}

// ApplyDebit decreases the balance, failing with ErrInsufficientFunds and
// leaving the balance untouched when coverage is short.
func (r *WalletsRepository) ApplyDebit(ctx context.Context, entry *entities.WalletEntry) error {
	if entry.AmountUSD < 0 {
		return fmt.Errorf("%w: debit amount must not be negative", entities.ErrValidation)
	}

	return r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.db(ctx).Exec(ctx,
			"UPDATE wallet_balances SET balance_usd = balance_usd - $2, updated_at = NOW() WHERE user_id = $1 AND balance_usd >= $2",
			entry.UserID, entry.AmountUSD)
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return entities.ErrInsufficientFunds
		}

		_, err = r.db(ctx).Exec(ctx,
			"INSERT INTO wallet_entries (dedup_key, user_id, amount_usd, reason, created_at) VALUES ($1, $2, $3, $4, NOW())",
			entry.DedupKey, entry.UserID, -entry.AmountUSD, entry.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert debit entry: %w", err)
		}

		r.logger.Info("Wallet debited", "user_id", entry.UserID,
			"amount", entry.AmountUSD.String(), "reason", entry.Reason)

		return nil
	})
}

func (r *WalletsRepository) applyEntry(ctx context.Context, entry *entities.WalletEntry) (bool, error) {
	var applied bool

	err := r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.db(ctx).Exec(ctx,
			`INSERT INTO wallet_entries (dedup_key, user_id, amount_usd, reason, created_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (dedup_key) DO NOTHING`,
			entry.DedupKey, entry.UserID, entry.AmountUSD, entry.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert wallet entry: %w", err)
		}

		if tag.RowsAffected() == 0 {
			r.logger.Info("Wallet entry already applied", "dedup_key", entry.DedupKey)
			return nil
		}

		_, err = r.db(ctx).Exec(ctx,
			`INSERT INTO wallet_balances (user_id, balance_usd, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (user_id)
			 DO UPDATE SET balance_usd = wallet_balances.balance_usd + EXCLUDED.balance_usd, updated_at = NOW()`,
			entry.UserID, entry.AmountUSD)
		if err != nil {
			return fmt.Errorf("failed to apply wallet balance change: %w", err)
		}

		applied = true
		r.logger.Info("Wallet credited", "user_id", entry.UserID,
			"amount", entry.AmountUSD.String(), "reason", entry.Reason, "dedup_key", entry.DedupKey)

		return nil
	})

	return applied, err
}
