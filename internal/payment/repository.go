package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repository records confirmation deliveries and stores gateway settings.
type Repository interface {
	SaveConfirmation(ctx context.Context, gateway, orderID string, payload json.RawMessage) (int64, error)
	MarkConfirmationProcessed(ctx context.Context, id int64, result string) error
	MarkConfirmationFailed(ctx context.Context, id int64, reason string) error

	// LoadGatewaySettings returns nil when nothing is stored for gateway.
	LoadGatewaySettings(ctx context.Context, gateway string) (map[string]string, error)
	SaveGatewaySettings(ctx context.Context, gateway string, form map[string]string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveConfirmation(
	ctx context.Context,
	gateway string,
	orderID string,
	payload json.RawMessage,
) (int64, error) {

	const q = `
	INSERT INTO payment_confirmations (
		gateway,
		order_id,
		payload
	)
	VALUES ($1, $2, $3)
	RETURNING id;
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, q, gateway, orderID, payload).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) MarkConfirmationProcessed(
	ctx context.Context,
	id int64,
	result string,
) error {

	const q = `
	UPDATE payment_confirmations
	SET processed_at = now(), result = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, id, result)
	return err
}

func (r *repository) MarkConfirmationFailed(
	ctx context.Context,
	id int64,
	reason string,
) error {

	const q = `
	UPDATE payment_confirmations
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, id, reason)
	return err
}

func (r *repository) LoadGatewaySettings(ctx context.Context, gateway string) (map[string]string, error) {
	const q = `SELECT options FROM gateway_settings WHERE gateway = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, q, gateway).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var form map[string]string
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("decode gateway settings: %w", err)
	}
	return form, nil
}

func (r *repository) SaveGatewaySettings(ctx context.Context, gateway string, form map[string]string) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return err
	}

	const q = `
	INSERT INTO gateway_settings (gateway, options, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (gateway)
	DO UPDATE SET options = EXCLUDED.options, updated_at = now();
	`

	_, err = r.db.ExecContext(ctx, q, gateway, raw)
	return err
}
