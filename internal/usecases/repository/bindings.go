package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/pkg/database"
)

// BindingsRepository owns payment bindings: the address-to-order expectations
// the monitor polls against.
type BindingsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewBindingsRepository(logger *slog.Logger, pg *database.Postgres) *BindingsRepository {
	return &BindingsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

// InsertBinding persists a fresh binding. Any previous active binding for the
// same order is retired in the same transaction, so an order has at most one
// live address at a time.
func (r *BindingsRepository) InsertBinding(ctx context.Context, binding *entities.PaymentBinding) error {
	return r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := r.db(ctx).Exec(ctx,
			"UPDATE payment_bindings SET retired = TRUE, retired_at = NOW() WHERE order_id = $1 AND retired = FALSE",
			binding.OrderID)
		if err != nil {
			return fmt.Errorf("failed to retire previous bindings: %w", err)
		}

		err = r.db(ctx).QueryRow(ctx,
			`INSERT INTO payment_bindings (address, currency, order_id, expected_usd, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			binding.Address, binding.Currency, binding.OrderID, binding.ExpectedUSD, binding.CreatedAt,
		).Scan(&binding.ID)
		if err != nil {
			return fmt.Errorf("failed to insert binding: %w", err)
		}

		r.logger.Info("Payment binding created", "order_id", binding.OrderID,
			"address", binding.Address, "currency", binding.Currency,
			"expected", binding.ExpectedUSD.String())

		return nil
	})
}

// RetireByAddress marks the active binding on the address inactive. The
// monitor keeps polling it for a grace window in case a payment was already
// in flight.
func (r *BindingsRepository) RetireByAddress(ctx context.Context, address string) error {
	tag, err := r.db(ctx).Exec(ctx,
		"UPDATE payment_bindings SET retired = TRUE, retired_at = NOW() WHERE address = $1 AND retired = FALSE",
		address)
	if err != nil {
		return fmt.Errorf("failed to retire binding: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return entities.ErrBindingNotFound
	}

	r.logger.Info("Payment binding retired", "address", address)
	return nil
}

// FindActive returns bindings the monitor should poll: every non-retired
// binding plus retired ones still inside the grace window.
func (r *BindingsRepository) FindActive(ctx context.Context, retiredGrace time.Duration) ([]entities.PaymentBinding, error) {
	query := `SELECT id, address, currency, order_id, expected_usd, retired, retired_at, created_at
                FROM payment_bindings
               WHERE retired = FALSE
                  OR retired_at > NOW() - $1::interval
               ORDER BY id`

	rows, err := r.db(ctx).Query(ctx, query, fmt.Sprintf("%d seconds", int(retiredGrace.Seconds())))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active bindings: %w", err)
	}

	bindings, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.PaymentBinding])
	if err != nil {
		r.logger.Error("failed to collect bindings rows", "error", err)
		return nil, err
	}

	return bindings, nil
}

// RetireForTerminalOrders deactivates bindings whose orders closed long
// enough ago that no in-flight payment can still be expected.
func (r *BindingsRepository) RetireForTerminalOrders(ctx context.Context, closedFor time.Duration) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_bindings pb
		    SET retired = TRUE, retired_at = NOW()
		   FROM orders o
		  WHERE o.id = pb.order_id
		    AND pb.retired = FALSE
		    AND o.status = ANY($1)
		    AND o.completed_at < NOW() - $2::interval`,
		[]string{entities.OrderStatusFulfilled, entities.OrderStatusInsufficientCredited, entities.OrderStatusExpired},
		fmt.Sprintf("%d seconds", int(closedFor.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to retire bindings for closed orders: %w", err)
	}

	return tag.RowsAffected(), nil
}

// FindByOrder returns the most recent binding for the order, active or not.
func (r *BindingsRepository) FindByOrder(ctx context.Context, orderID string) (*entities.PaymentBinding, error) {
	query := `SELECT id, address, currency, order_id, expected_usd, retired, retired_at, created_at
                FROM payment_bindings
               WHERE order_id = $1
               ORDER BY retired ASC, id DESC
               LIMIT 1`

	rows, err := r.db(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query binding by order: %w", err)
	}

	binding, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.PaymentBinding])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect binding row: %w", err)
	}

	return &binding, nil
}
