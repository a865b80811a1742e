package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"gopay-be/internal/logger"
	"gopay-be/internal/order"
)

const GOPayID = "gopay"

const receiptText = "Thank you for your order, please click the button below to pay with GOPay."

// GOPay is the hosted GOPay gateway. Its config is swapped atomically on
// Reload; in-flight requests keep the config they started with.
type GOPay struct {
	cfg           atomic.Pointer[Config]
	store         order.Store
	processor     *ProcessorClient
	confirmations *ConfirmationHandler
	log           *zap.Logger
}

func NewGOPay(cfg *Config, store order.Store, processor *ProcessorClient, log *zap.Logger) *GOPay {
	if log == nil {
		log = zap.NewNop()
	}
	g := &GOPay{
		store:     store,
		processor: processor,
		log:       log.With(zap.String("gateway", GOPayID)),
	}
	g.cfg.Store(cfg)
	g.confirmations = NewConfirmationHandler(store, g.Config, g.log)
	return g
}

func (g *GOPay) Config() *Config { return g.cfg.Load() }

func (g *GOPay) ID() string              { return GOPayID }
func (g *GOPay) Title() string           { return g.Config().Title() }
func (g *GOPay) Description() string     { return g.Config().Description() }
func (g *GOPay) Enabled() bool           { return g.Config().Enabled() }
func (g *GOPay) FormFields() []FormField { return FormFields() }
func (g *GOPay) Options() Options        { return g.Config().Options() }

func (g *GOPay) Reload(opts Options) error {
	cfg, err := Load(opts)
	if err != nil {
		g.log.Warn("rejected settings update", zap.Error(err))
		return err
	}
	g.cfg.Store(cfg)
	g.log.Info("gateway settings reloaded", zap.Object("config", cfg))
	return nil
}

func (g *GOPay) ProcessPayment(ctx context.Context, o *order.Order, customerIP string) (*CheckoutResult, error) {
	cfg := g.Config()
	log := logger.FromCtx(ctx, g.log)

	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: gateway is disabled", ErrConfig)
	}

	if o != nil && o.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidOrder, o.Status)
	}

	req, err := Build(o, cfg, customerIP)
	if err != nil {
		log.Warn("cannot build payment request", zap.Error(err))
		return nil, err
	}
	log = log.With(zap.String("order_id", req.OrderID), zap.Int64("amount", req.Amount))

	endpoint, err := RedirectURL(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.DirectPost() {
		redirect, err := signedURL(endpoint, req, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("redirecting customer to processor", zap.String("mode", string(cfg.Mode())))
		return &CheckoutResult{Result: "success", Redirect: redirect, OrderKey: cfg.OrderKey(req.OrderID)}, nil
	}

	return g.directPost(ctx, log, endpoint, req, cfg)
}

func (g *GOPay) directPost(ctx context.Context, log *zap.Logger, endpoint string, req *Request, cfg *Config) (*CheckoutResult, error) {
	if g.processor == nil {
		return nil, fmt.Errorf("%w: direct post is not available", ErrConfig)
	}

	form := req.Values()
	form.Set("signature", cfg.SignRequest(req.OrderID, req.Amount))

	resp, err := g.processor.Submit(ctx, endpoint, cfg.apiKey(), form, cfg.Timeout())
	if err != nil {
		return nil, err
	}

	if !resp.Approved() {
		reason := resp.ReasonText
		if reason == "" {
			reason = "code " + resp.Code
		}
		if err := g.store.AddNote(ctx, req.OrderID, "Error: "+reason); err != nil {
			log.Error("failed to add order note", zap.Error(err))
		}
		log.Info("payment declined", zap.String("reason_code", resp.ReasonCode))
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, reason)
	}

	tr, err := g.store.MarkPaid(ctx, req.OrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, req.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	log.Info("direct post approved", zap.Bool("transitioned", tr.Applied()))

	ret, err := url.Parse(cfg.ReturnURL())
	if err != nil {
		return nil, fmt.Errorf("%w: return url: %v", ErrConfig, err)
	}
	key := cfg.OrderKey(req.OrderID)
	q := ret.Query()
	q.Set("order_id", req.OrderID)
	q.Set("key", key)
	ret.RawQuery = q.Encode()

	return &CheckoutResult{Result: "success", Redirect: ret.String(), OrderKey: key}, nil
}

func (g *GOPay) HandleConfirmation(ctx context.Context, c Confirmation) (Result, error) {
	return g.confirmations.Handle(ctx, c)
}

func (g *GOPay) VerifyOrderKey(orderID, key string) bool {
	return g.Config().VerifyOrderKey(orderID, key)
}

func (g *GOPay) ThankYouText(o *order.Order) string {
	return InjectVariables(g.Config().Instructions(), orderVars(o))
}

func (g *GOPay) ReceiptText() string { return receiptText }

// EmailInstructions returns instructions for customer mails of on-hold
// orders paid with this gateway.
func (g *GOPay) EmailInstructions(o *order.Order, sentToAdmin bool) string {
	instructions := g.Config().Instructions()
	if instructions == "" || sentToAdmin || o == nil {
		return ""
	}
	if o.PaymentMethod != GOPayID || o.Status != order.StatusOnHold {
		return ""
	}
	return InjectVariables(instructions, orderVars(o))
}
