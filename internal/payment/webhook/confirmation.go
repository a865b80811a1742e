package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gopay-be/internal/cache"
	"gopay-be/internal/logger"
	"gopay-be/internal/metrics"
	"gopay-be/internal/order"
	"gopay-be/internal/payment"
	"gopay-be/internal/utils"
)

const maxBodyBytes = 64 << 10

type Response struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status,omitempty"`
}

// Handler receives processor confirmations for every registered gateway.
type Handler struct {
	gateways *payment.Registry
	repo     payment.Repository
	receipts cache.ReceiptStore
	stats    *metrics.PaymentStats
	log      *zap.Logger
}

// NewWebhookHandler wires the confirmation endpoint. repo, receipts and
// stats are optional.
func NewWebhookHandler(
	gateways *payment.Registry,
	repo payment.Repository,
	receipts cache.ReceiptStore,
	stats *metrics.PaymentStats,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{gateways: gateways, repo: repo, receipts: receipts, stats: stats, log: log}
}

// ConfirmationHandler serves GET|POST /webhook/{gateway}.
func (h *Handler) ConfirmationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gatewayID := chi.URLParam(r, "gateway")
	log := logger.FromCtx(ctx, h.log).With(zap.String("gateway", gatewayID))

	gw, err := h.gateways.Get(gatewayID)
	if err != nil {
		utils.WriteJSONError(w, "unknown payment gateway", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		log.Warn("unreadable confirmation", zap.Error(err))
		utils.WriteJSONError(w, "invalid confirmation body", http.StatusBadRequest)
		return
	}

	// 1. Audit the raw delivery
	auditID, err := h.audit(r)
	if err != nil {
		log.Error("failed to save confirmation", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	// 2. Parse
	c, err := payment.ParseConfirmation(r.Form)
	if err != nil {
		log.Warn("malformed confirmation", zap.Error(err))
		h.stats.RecordConfirmation("", err)
		h.fail(r, log, auditID, err)
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log = log.With(zap.String("order_id", c.OrderID))

	// 3. Fast path for orders already confirmed
	if h.receipts != nil && !c.Declined {
		done, err := h.receipts.CheckCompleted(ctx, gatewayID, c.OrderID)
		if err != nil {
			log.Warn("receipt lookup failed", zap.Error(err))
		} else if done {
			log.Info("duplicate confirmation answered from receipt cache")
			h.stats.RecordConfirmation(payment.ReasonDuplicate, nil)
			h.processed(r, log, auditID, payment.ReasonDuplicate)
			utils.WriteJSON(w, http.StatusOK, Response{
				Accepted: true,
				Reason:   payment.ReasonDuplicate,
				OrderID:  c.OrderID,
				Status:   string(order.StatusCompleted),
			})
			return
		}
	}

	// 4. Apply
	res, err := gw.HandleConfirmation(ctx, c)
	h.stats.RecordConfirmation(res.Reason, err)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("confirmation failed", zap.Error(err))
		} else {
			log.Warn("confirmation rejected", zap.Error(err))
		}
		h.fail(r, log, auditID, err)
		utils.WriteJSONError(w, publicMessage(err), status)
		return
	}

	if res.Current == order.StatusCompleted && h.receipts != nil {
		if err := h.receipts.SetCompleted(ctx, gatewayID, res.OrderID); err != nil {
			log.Warn("failed to store receipt", zap.Error(err))
		}
	}

	h.processed(r, log, auditID, res.Reason)
	utils.WriteJSON(w, http.StatusOK, Response{
		Accepted: res.Accepted,
		Reason:   res.Reason,
		OrderID:  res.OrderID,
		Status:   string(res.Current),
	})
}

func (h *Handler) audit(r *http.Request) (int64, error) {
	if h.repo == nil {
		return 0, nil
	}

	fields := make(map[string]string, len(r.Form))
	for k := range r.Form {
		fields[k] = r.Form.Get(k)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return 0, err
	}

	return h.repo.SaveConfirmation(r.Context(), chi.URLParam(r, "gateway"), r.Form.Get("order_id"), payload)
}

func (h *Handler) processed(r *http.Request, log *zap.Logger, id int64, result string) {
	if h.repo == nil {
		return
	}
	if err := h.repo.MarkConfirmationProcessed(r.Context(), id, result); err != nil {
		log.Error("failed to mark confirmation processed", zap.Int64("confirmation_id", id), zap.Error(err))
	}
}

func (h *Handler) fail(r *http.Request, log *zap.Logger, id int64, cause error) {
	if h.repo == nil {
		return
	}
	if err := h.repo.MarkConfirmationFailed(r.Context(), id, cause.Error()); err != nil {
		log.Error("failed to mark confirmation failed", zap.Int64("confirmation_id", id), zap.Error(err))
	}
}

// StatusFor maps confirmation errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrMalformedConfirmation), errors.Is(err, payment.ErrAmountMismatch):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrSignatureMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrOrderNotFound), errors.Is(err, payment.ErrUnknownGateway):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns only the sentinel text; wrapped details such as the
// order total stay in the logs.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		payment.ErrMalformedConfirmation,
		payment.ErrAmountMismatch,
		payment.ErrSignatureMismatch,
		payment.ErrOrderNotFound,
		payment.ErrUnknownGateway,
		payment.ErrGatewayUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
