package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Store {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id string) (*Order, error) {
	const q = `
		SELECT id, number, customer_id, total_amount, currency, status,
		       payment_method, stock_reduced, billing_address, shipping_address,
		       paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var (
		o          Order
		customerID sql.NullString
		billing    []byte
		shipping   []byte
		paidAt     sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&o.ID, &o.Number, &customerID, &o.TotalAmount, &o.Currency, &o.Status,
		&o.PaymentMethod, &o.StockReduced, &billing, &shipping,
		&paidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.CustomerID = customerID.String
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if err := decodeAddress(billing, &o.Billing); err != nil {
		return nil, fmt.Errorf("decode billing address: %w", err)
	}
	if err := decodeAddress(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}

	items, err := r.getItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *repository) getItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) MarkPaid(ctx context.Context, id string) (Transition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Transition{}, err
	}
	defer tx.Rollback()

	// 1. Lock the row; concurrent confirmations for the same order wait here.
	prev, stockReduced, err := lockStatus(ctx, tx, id)
	if err != nil {
		return Transition{}, err
	}

	if prev.IsTerminal() {
		return Transition{OrderID: id, Previous: prev, Current: prev}, nil
	}

	// 2. Reduce stock once per order.
	if !stockReduced {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products p
			SET stock = p.stock - oi.quantity
			FROM order_items oi
			WHERE oi.order_id = $1 AND oi.product_id = p.id
		`, id); err != nil {
			return Transition{}, fmt.Errorf("reduce stock: %w", err)
		}
	}

	// 3. Complete the order.
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, stock_reduced = TRUE, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, StatusCompleted); err != nil {
		return Transition{}, err
	}

	if err := tx.Commit(); err != nil {
		return Transition{}, err
	}

	return Transition{OrderID: id, Previous: prev, Current: StatusCompleted}, nil
}

func (r *repository) MarkFailed(ctx context.Context, id, reason string) (Transition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Transition{}, err
	}
	defer tx.Rollback()

	prev, _, err := lockStatus(ctx, tx, id)
	if err != nil {
		return Transition{}, err
	}

	if prev.IsTerminal() || prev == StatusFailed {
		return Transition{OrderID: id, Previous: prev, Current: prev}, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, StatusFailed); err != nil {
		return Transition{}, err
	}

	if reason != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_notes (order_id, note) VALUES ($1, $2)
		`, id, reason); err != nil {
			return Transition{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Transition{}, err
	}

	return Transition{OrderID: id, Previous: prev, Current: StatusFailed}, nil
}

func (r *repository) AddNote(ctx context.Context, id, note string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_notes (order_id, note) VALUES ($1, $2)
	`, id, note)
	return err
}

func lockStatus(ctx context.Context, tx *sql.Tx, id string) (Status, bool, error) {
	var (
		status       Status
		stockReduced bool
	)
	err := tx.QueryRowContext(ctx, `
		SELECT status, stock_reduced FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &stockReduced)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrOrderNotFound
	}
	if err != nil {
		return "", false, err
	}
	if !status.Valid() {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return status, stockReduced, nil
}

func decodeAddress(raw []byte, dst *Address) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
