package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"gopay-be/internal/logger"
	"gopay-be/internal/order"
)

// Confirmation is an inbound payment notification from the processor.
type Confirmation struct {
	OrderID       string
	ClaimedAmount int64
	Signature     string
	Declined      bool
	Reason        string
}

// ParseConfirmation reads a confirmation from query or form values.
// total and hash are accepted as aliases for amount and signature.
func ParseConfirmation(v url.Values) (Confirmation, error) {
	c := Confirmation{
		OrderID:   strings.TrimPrefix(strings.TrimSpace(v.Get("order_id")), "#"),
		Signature: strings.TrimSpace(firstOf(v, "signature", "hash")),
		Reason:    strings.TrimSpace(v.Get("reason")),
	}

	if c.OrderID == "" {
		return c, fmt.Errorf("%w: missing order_id", ErrMalformedConfirmation)
	}
	if c.Signature == "" {
		return c, fmt.Errorf("%w: missing signature", ErrMalformedConfirmation)
	}

	raw := strings.TrimSpace(firstOf(v, "amount", "total"))
	if raw == "" {
		return c, fmt.Errorf("%w: missing amount", ErrMalformedConfirmation)
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount < 0 {
		return c, fmt.Errorf("%w: amount %q is not a non-negative integer", ErrMalformedConfirmation, raw)
	}
	c.ClaimedAmount = amount

	switch strings.ToLower(strings.TrimSpace(v.Get("status"))) {
	case "", "paid", "success", "completed", "approved":
	case "failed", "declined":
		c.Declined = true
	default:
		return c, fmt.Errorf("%w: unknown status %q", ErrMalformedConfirmation, v.Get("status"))
	}

	return c, nil
}

func firstOf(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}

type Result struct {
	Accepted bool
	Reason   string
	OrderID  string
	Previous order.Status
	Current  order.Status
}

// ConfirmationHandler applies confirmations to orders. It is safe for
// concurrent use; per-order atomicity comes from the order store.
type ConfirmationHandler struct {
	store  order.Store
	config func() *Config
	log    *zap.Logger
}

func NewConfirmationHandler(store order.Store, config func() *Config, log *zap.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{store: store, config: config, log: log}
}

func (h *ConfirmationHandler) Handle(ctx context.Context, c Confirmation) (Result, error) {
	log := logger.FromCtx(ctx, h.log).With(
		zap.String("order_id", c.OrderID),
		zap.Int64("claimed_amount", c.ClaimedAmount),
	)

	if c.OrderID == "" || c.Signature == "" || c.ClaimedAmount < 0 {
		return Result{}, fmt.Errorf("%w: incomplete confirmation", ErrMalformedConfirmation)
	}

	o, err := h.store.Get(ctx, c.OrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		log.Warn("confirmation for unknown order")
		return Result{}, fmt.Errorf("%w: %s", ErrOrderNotFound, c.OrderID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("load order: %w", err)
	}

	if o.Status.IsTerminal() {
		log.Info("duplicate confirmation ignored", zap.String("status", string(o.Status)))
		return duplicate(o.ID, o.Status), nil
	}

	cfg := h.config()
	if !cfg.HasKey() {
		log.Error("confirmation rejected: no transaction key configured")
		return Result{}, fmt.Errorf("%w: no transaction key", ErrConfig)
	}
	if !cfg.Verify(o.ID, c.ClaimedAmount, c.Signature) {
		log.Warn("confirmation rejected: signature mismatch")
		h.note(ctx, log, o.ID, "GOPay confirmation rejected: signature mismatch.")
		return Result{}, ErrSignatureMismatch
	}

	if c.ClaimedAmount != o.TotalAmount {
		log.Warn("confirmation rejected: amount mismatch", zap.Int64("order_total", o.TotalAmount))
		h.note(ctx, log, o.ID, fmt.Sprintf(
			"GOPay confirmation rejected: amount %d does not match order total %d.",
			c.ClaimedAmount, o.TotalAmount))
		return Result{}, fmt.Errorf("%w: confirmation=%d order=%d", ErrAmountMismatch, c.ClaimedAmount, o.TotalAmount)
	}

	if c.Declined {
		reason := "GOPay payment declined."
		if c.Reason != "" {
			reason = "GOPay payment declined: " + c.Reason
		}
		tr, err := h.store.MarkFailed(ctx, o.ID, reason)
		if err != nil {
			return Result{}, fmt.Errorf("mark failed: %w", err)
		}
		if !tr.Applied() {
			return duplicate(o.ID, tr.Current), nil
		}
		log.Info("order marked failed")
		return Result{Accepted: true, Reason: ReasonDeclined, OrderID: o.ID, Previous: tr.Previous, Current: tr.Current}, nil
	}

	tr, err := h.store.MarkPaid(ctx, o.ID)
	if err != nil {
		return Result{}, fmt.Errorf("mark paid: %w", err)
	}
	if !tr.Applied() {
		// another delivery won the race
		log.Info("duplicate confirmation ignored", zap.String("status", string(tr.Current)))
		return duplicate(o.ID, tr.Current), nil
	}

	log.Info("order paid", zap.String("previous_status", string(tr.Previous)))
	return Result{Accepted: true, Reason: ReasonPaid, OrderID: o.ID, Previous: tr.Previous, Current: tr.Current}, nil
}

func (h *ConfirmationHandler) note(ctx context.Context, log *zap.Logger, orderID, note string) {
	if err := h.store.AddNote(ctx, orderID, note); err != nil {
		log.Error("failed to add order note", zap.Error(err))
	}
}

func duplicate(orderID string, status order.Status) Result {
	return Result{Accepted: true, Reason: ReasonDuplicate, OrderID: orderID, Previous: status, Current: status}
}
