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

type OrdersRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewOrdersRepository(logger *slog.Logger, pg *database.Postgres) *OrdersRepository {
	return &OrdersRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

func (r *OrdersRepository) InsertOrder(ctx context.Context, order *entities.Order) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO orders (id, user_id, service_type, service_details, amount_usd, payment_method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.UserID, order.ServiceType, order.ServiceDetails,
		order.AmountUSD, order.PaymentMethod, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	r.logger.Info("Order created", "order_id", order.ID, "user_id", order.UserID,
		"amount", order.AmountUSD.String(), "method", order.PaymentMethod)

	return nil
}

func (r *OrdersRepository) FindOrderByID(ctx context.Context, orderID string) (*entities.Order, error) {
	query := `SELECT id, user_id, service_type, service_details, amount_usd, payment_method, status, created_at, completed_at
                FROM orders
               WHERE id = $1`

	rows, err := r.db(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	order, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.Order])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect order row: %w", err)
	}

	return &order, nil
}

// FindOrderForUpdate locks the order row for the rest of the surrounding
// transaction, serializing concurrent reconciliation of the same order.
func (r *OrdersRepository) FindOrderForUpdate(ctx context.Context, orderID string) (*entities.Order, error) {
	query := `SELECT id, user_id, service_type, service_details, amount_usd, payment_method, status, created_at, completed_at
                FROM orders
               WHERE id = $1
                 FOR UPDATE`

	rows, err := r.db(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order for update: %w", err)
	}

	order, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.Order])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect order row: %w", err)
	}

	return &order, nil
}

func (r *OrdersRepository) FindUserOrders(ctx context.Context, userID int64) ([]entities.Order, error) {
	query := `SELECT id, user_id, service_type, service_details, amount_usd, payment_method, status, created_at, completed_at
                FROM orders
               WHERE user_id = $1
               ORDER BY created_at DESC`

	rows, err := r.db(ctx).Query(ctx, query, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	orders, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Order])
	if err != nil {
		r.logger.Error("failed to collect orders rows", "error", err)
		return nil, err
	}

	return orders, nil
}

// UpdateStatusGuarded moves the order to the target status only when it is
// currently in one of the allowed source states. Returns false when no row
// matched, which means the transition is not permitted from the current state.
func (r *OrdersRepository) UpdateStatusGuarded(ctx context.Context, orderID, to string, from ...string) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		"UPDATE orders SET status = $2 WHERE id = $1 AND status = ANY($3)",
		orderID, to, from)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkCompleted sets the terminal status and stamps completed_at in one
// guarded update.
func (r *OrdersRepository) MarkCompleted(ctx context.Context, orderID, to string, from ...string) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		"UPDATE orders SET status = $2, completed_at = NOW() WHERE id = $1 AND status = ANY($3)",
		orderID, to, from)
	if err != nil {
		return false, fmt.Errorf("failed to complete order: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ExpireStale closes orders that never saw a payment within the TTL.
func (r *OrdersRepository) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		"UPDATE orders SET status = $1, completed_at = NOW() WHERE status = ANY($2) AND created_at < NOW() - $3::interval",
		entities.OrderStatusExpired,
		[]string{entities.OrderStatusCreated, entities.OrderStatusAwaitingPayment},
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale orders: %w", err)
	}

	return tag.RowsAffected(), nil
}
