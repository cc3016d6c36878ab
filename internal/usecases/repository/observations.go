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

// ObservationsRepository records every payment the gateway reports, confirmed
// or not, keyed by gateway reference.
type ObservationsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewObservationsRepository(logger *slog.Logger, pg *database.Postgres) *ObservationsRepository {
	return &ObservationsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

// UpsertObservation records the sighting, bumping confirmations on repeat
// polls. Returns true when the reference was seen for the first time.
func (r *ObservationsRepository) UpsertObservation(ctx context.Context, obs *entities.PaymentObservation) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM payment_observations WHERE gateway_reference = $1)",
		obs.GatewayReference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if observation exists: %w", err)
	}

	if exists {
		_, err = r.db(ctx).Exec(ctx,
			"UPDATE payment_observations SET confirmations = GREATEST(confirmations, $2) WHERE gateway_reference = $1",
			obs.GatewayReference, obs.Confirmations)
		if err != nil {
			return false, fmt.Errorf("failed to update observation confirmations: %w", err)
		}
		return false, nil
	}

	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_observations (gateway_reference, address, currency, amount_crypto, confirmations, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (gateway_reference) DO NOTHING`,
		obs.GatewayReference, obs.Address, obs.Currency, obs.AmountCrypto, obs.Confirmations, obs.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert observation: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// FindByAddress returns every observation recorded for the address.
func (r *ObservationsRepository) FindByAddress(ctx context.Context, address string) ([]entities.PaymentObservation, error) {
	query := `SELECT id, gateway_reference, address, currency, amount_crypto, confirmations, observed_at
                FROM payment_observations
               WHERE address = $1
               ORDER BY id`

	rows, err := r.db(ctx).Query(ctx, query, address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}

	observations, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.PaymentObservation])
	if err != nil {
		r.logger.Error("failed to collect observations rows", "error", err)
		return nil, err
	}

	return observations, nil
}
