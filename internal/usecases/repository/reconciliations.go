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

// ReconciliationsRepository stores one decision row per gateway reference.
// The primary key on gateway_reference is the claim that serializes
// concurrent duplicate deliveries of the same payment.
type ReconciliationsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewReconciliationsRepository(logger *slog.Logger, pg *database.Postgres) *ReconciliationsRepository {
	return &ReconciliationsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

// InsertDecision claims the gateway reference and records the decision.
// Returns false when another reconciliation already claimed it; the caller
// should read back the stored decision instead.
func (r *ReconciliationsRepository) InsertDecision(ctx context.Context, d *entities.Decision) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO reconciliations
		     (gateway_reference, order_id, address, class, received_usd, cumulative_usd,
		      shortfall_usd, credited_usd, rate_source, low_confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 ON CONFLICT (gateway_reference) DO NOTHING`,
		d.GatewayReference, d.OrderID, d.Address, d.Class, d.ReceivedUSD, d.CumulativeUSD,
		d.ShortfallUSD, d.CreditedUSD, d.RateSource, d.LowConfidence)
	if err != nil {
		return false, fmt.Errorf("failed to insert decision: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// FindByReference returns the recorded decision for a gateway reference.
func (r *ReconciliationsRepository) FindByReference(ctx context.Context, gatewayReference string) (*entities.Decision, error) {
	query := `SELECT gateway_reference, order_id, address, class, received_usd, cumulative_usd,
                     shortfall_usd, credited_usd, rate_source, low_confidence, fulfillment_error, created_at
                FROM reconciliations
               WHERE gateway_reference = $1`

	rows, err := r.db(ctx).Query(ctx, query, gatewayReference)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision: %w", err)
	}

	decision, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.Decision])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect decision row: %w", err)
	}

	return &decision, nil
}

// FindLatestForOrder returns the most recent decision made for an order.
func (r *ReconciliationsRepository) FindLatestForOrder(ctx context.Context, orderID string) (*entities.Decision, error) {
	query := `SELECT gateway_reference, order_id, address, class, received_usd, cumulative_usd,
                     shortfall_usd, credited_usd, rate_source, low_confidence, fulfillment_error, created_at
                FROM reconciliations
               WHERE order_id = $1
               ORDER BY created_at DESC
               LIMIT 1`

	rows, err := r.db(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest decision: %w", err)
	}

	decision, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.Decision])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect latest decision row: %w", err)
	}

	return &decision, nil
}

// SumReceivedForOrder totals the USD already reconciled for the order across
// all prior gateway references. Partial payments classify against this sum.
func (r *ReconciliationsRepository) SumReceivedForOrder(ctx context.Context, orderID string) (entities.Cents, error) {
	var sum entities.Cents

	err := r.db(ctx).QueryRow(ctx,
		"SELECT COALESCE(SUM(received_usd), 0) FROM reconciliations WHERE order_id = $1", orderID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum received amounts: %w", err)
	}

	return sum, nil
}

// SetFulfillmentError records a provisioning failure on the decision that
// triggered the dispatch, for operator follow-up.
func (r *ReconciliationsRepository) SetFulfillmentError(ctx context.Context, gatewayReference, message string) error {
	_, err := r.db(ctx).Exec(ctx,
		"UPDATE reconciliations SET fulfillment_error = $2 WHERE gateway_reference = $1",
		gatewayReference, message)
	if err != nil {
		return fmt.Errorf("failed to record fulfillment error: %w", err)
	}

	return nil
}
