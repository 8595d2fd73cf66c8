package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// OrderRepository stores payment orders.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository constructs a repository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `order_id, application_id, amount, currency, status, transaction_id, checkout_url, created_at, updated_at`

func scanOrder(row rowScanner) (model.PaymentOrder, error) {
	var (
		o        model.PaymentOrder
		txID     sql.NullString
		checkout sql.NullString
	)
	if err := row.Scan(&o.OrderID, &o.ApplicationID, &o.Amount, &o.Currency, &o.Status, &txID, &checkout, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PaymentOrder{}, ErrNotFound
		}
		return model.PaymentOrder{}, fmt.Errorf("select order: %w", err)
	}
	o.TransactionID = txID.String
	o.CheckoutURL = checkout.String
	return o, nil
}

// Latest returns the most recent order of an application.
func (r *OrderRepository) Latest(ctx context.Context, applicationID string) (model.PaymentOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM payment_orders
		WHERE application_id=$1 ORDER BY created_at DESC LIMIT 1
	`, applicationID))
}

// Pending returns the pending order of an application, creating one with
// newID when none is pending. created reports which happened. A pending
// order with another amount or currency is cancelled and replaced.
func (r *OrderRepository) Pending(ctx context.Context, applicationID string, amount int64, currency, newID string) (order model.PaymentOrder, created bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.PaymentOrder{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.ApplicationStatus
	err = tx.QueryRow(ctx, `SELECT status FROM applications WHERE id=$1 FOR UPDATE`, applicationID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PaymentOrder{}, false, fmt.Errorf("application %s: %w", applicationID, ErrNotFound)
	}
	if err != nil {
		return model.PaymentOrder{}, false, fmt.Errorf("lock application: %w", err)
	}
	if status == model.StatusSubmitted {
		return model.PaymentOrder{}, false, ErrSubmitted
	}

	now := time.Now().UTC()
	existing, err := scanOrder(tx.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM payment_orders WHERE application_id=$1 AND status=$2
	`, applicationID, model.OrderCreated))
	switch {
	case err == nil && existing.Amount == amount && existing.Currency == currency:
		return existing, false, tx.Commit(ctx)
	case err == nil:
		_, err = tx.Exec(ctx, `UPDATE payment_orders SET status=$1, updated_at=$2 WHERE order_id=$3`, model.OrderCancelled, now, existing.OrderID)
		if err != nil {
			return model.PaymentOrder{}, false, fmt.Errorf("cancel stale order: %w", err)
		}
	case !errors.Is(err, ErrNotFound):
		return model.PaymentOrder{}, false, err
	}

	order = model.PaymentOrder{
		OrderID:       newID,
		ApplicationID: applicationID,
		Amount:        amount,
		Currency:      currency,
		Status:        model.OrderCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payment_orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6,$7)
	`, order.OrderID, order.ApplicationID, order.Amount, order.Currency, order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return model.PaymentOrder{}, false, fmt.Errorf("insert order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.PaymentOrder{}, false, fmt.Errorf("commit: %w", err)
	}
	return order, true, nil
}

// SetCheckoutURL records where the gateway's hosted page lives.
func (r *OrderRepository) SetCheckoutURL(ctx context.Context, orderID, url string) error {
	_, err := r.pool.Exec(ctx, `UPDATE payment_orders SET checkout_url=$1, updated_at=$2 WHERE order_id=$3`, url, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("update checkout url: %w", err)
	}
	return nil
}

// Resolve locks the order row, lets decide compute its next state and
// stores it. A transition to success submits the application in the same
// transaction. decide is not called for an unknown order.
func (r *OrderRepository) Resolve(ctx context.Context, orderID string, decide func(model.PaymentOrder) (model.PaymentOrder, error)) (model.PaymentOrder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.PaymentOrder{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE order_id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return model.PaymentOrder{}, err
	}
	next, err := decide(current)
	if err != nil {
		return current, err
	}
	if next.Status == current.Status && next.TransactionID == current.TransactionID {
		return current, tx.Commit(ctx)
	}

	next.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE payment_orders SET status=$1, transaction_id=NULLIF($2, ''), updated_at=$3 WHERE order_id=$4
	`, next.Status, next.TransactionID, next.UpdatedAt, orderID)
	if err != nil {
		return current, fmt.Errorf("update order: %w", err)
	}
	if next.Status == model.OrderSuccess {
		_, err = tx.Exec(ctx, `
			UPDATE applications SET status=$1, stage=$2, updated_at=$3 WHERE id=$4
		`, model.StatusSubmitted, model.StageSubmitted, next.UpdatedAt, current.ApplicationID)
		if err != nil {
			return current, fmt.Errorf("submit application: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return current, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}
