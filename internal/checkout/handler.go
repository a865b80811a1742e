package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gopay-be/internal/logger"
	"gopay-be/internal/metrics"
	"gopay-be/internal/order"
	"gopay-be/internal/payment"
	"gopay-be/internal/utils"
)

type GatewayInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ThankYou struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	ThankYou string `json:"thank_you"`
	Receipt  string `json:"receipt"`
}

// Handler serves the customer facing checkout routes.
type Handler struct {
	gateways *payment.Registry
	orders   order.Store
	stats    *metrics.PaymentStats
	log      *zap.Logger
}

func NewHandler(gateways *payment.Registry, orders order.Store, stats *metrics.PaymentStats, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{gateways: gateways, orders: orders, stats: stats, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/gateways", h.ListGateways)
	r.Post("/checkout/{gateway}/orders/{orderID}", h.Pay)
	r.Get("/checkout/{gateway}/orders/{orderID}/thankyou", h.ThankYou)
}

// ListGateways serves GET /gateways.
func (h *Handler) ListGateways(w http.ResponseWriter, r *http.Request) {
	available := h.gateways.Available()
	out := make([]GatewayInfo, 0, len(available))
	for _, g := range available {
		out = append(out, GatewayInfo{ID: g.ID(), Title: g.Title(), Description: g.Description()})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// Pay serves POST /checkout/{gateway}/orders/{orderID}.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gatewayID := chi.URLParam(r, "gateway")
	orderID := chi.URLParam(r, "orderID")
	log := logger.FromCtx(ctx, h.log).With(
		zap.String("gateway", gatewayID),
		zap.String("order_id", orderID),
	)

	gw, o, ok := h.lookup(w, r, gatewayID, orderID)
	if !ok {
		return
	}

	res, err := gw.ProcessPayment(ctx, o, utils.ClientIP(r))
	h.stats.RecordCheckout(err)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("checkout failed", zap.Error(err))
		} else {
			log.Warn("checkout rejected", zap.Error(err))
		}
		utils.WriteJSONError(w, publicMessage(err, status), status)
		return
	}

	log.Info("checkout started")
	utils.WriteJSON(w, http.StatusOK, res)
}

// ThankYou serves GET /checkout/{gateway}/orders/{orderID}/thankyou?key=...
// The key is the order_key returned by Pay.
func (h *Handler) ThankYou(w http.ResponseWriter, r *http.Request) {
	gatewayID := chi.URLParam(r, "gateway")
	orderID := chi.URLParam(r, "orderID")

	gw, err := h.gateways.Get(gatewayID)
	if err != nil {
		utils.WriteJSONError(w, "unknown payment gateway", http.StatusNotFound)
		return
	}
	// unknown orders and bad keys look the same
	if !gw.VerifyOrderKey(orderID, r.URL.Query().Get("key")) {
		utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		return
	}

	_, o, ok := h.lookup(w, r, gatewayID, orderID)
	if !ok {
		return
	}

	utils.WriteJSON(w, http.StatusOK, ThankYou{
		OrderID:  o.ID,
		Status:   string(o.Status),
		ThankYou: gw.ThankYouText(o),
		Receipt:  gw.ReceiptText(),
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, gatewayID, orderID string) (payment.Gateway, *order.Order, bool) {
	gw, err := h.gateways.Get(gatewayID)
	if err != nil {
		utils.WriteJSONError(w, "unknown payment gateway", http.StatusNotFound)
		return nil, nil, false
	}

	o, err := h.orders.Get(r.Context(), orderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		logger.FromCtx(r.Context(), h.log).Error("failed to load order", zap.String("order_id", orderID), zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return nil, nil, false
	}
	return gw, o, true
}

// StatusFor maps checkout errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidOrder),
		errors.Is(err, payment.ErrConfig),
		errors.Is(err, payment.ErrPaymentDeclined):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrOrderNotFound), errors.Is(err, payment.ErrUnknownGateway):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, status int) string {
	switch {
	case errors.Is(err, payment.ErrConfig):
		return "payment method is not available"
	case status == http.StatusServiceUnavailable:
		return payment.ErrGatewayUnavailable.Error()
	case status == http.StatusInternalServerError:
		return "internal error"
	}
	return err.Error()
}
