package payment

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"gopay-be/internal/order"
)

const transactionType = "AUTH_CAPTURE"

type Billing struct {
	FirstName string `form:"first_name" validate:"required"`
	LastName  string `form:"last_name" validate:"required"`
	Address   string `form:"address" validate:"required"`
	City      string `form:"city" validate:"required"`
	State     string `form:"state"`
	Zip       string `form:"zip" validate:"required"`
	Country   string `form:"country" validate:"required,iso3166_1_alpha2"`
	Phone     string `form:"phone"`
	Email     string `form:"email" validate:"required,email"`
}

type Shipping struct {
	FirstName string
	LastName  string
	Company   string
	Address   string
	City      string
	State     string
	Zip       string
	Country   string
}

// Request is the payload handed to the processor for one order.
type Request struct {
	OrderID       string
	InvoiceNumber string
	Amount        int64 // minor units
	Currency      string `form:"currency" validate:"required,iso4217"`
	MerchantID    string
	Mode          Mode
	Type          string
	Billing       Billing
	Shipping      Shipping
	CustomerID    string
	CustomerIP    string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Build assembles the processor payload from an order.
func Build(o *order.Order, cfg *Config, customerIP string) (*Request, error) {
	if o == nil || o.ID == "" {
		return nil, fmt.Errorf("%w: missing order", ErrInvalidOrder)
	}
	if o.TotalAmount < 0 {
		return nil, fmt.Errorf("%w: negative total %d", ErrInvalidOrder, o.TotalAmount)
	}

	req := &Request{
		OrderID:       o.ID,
		InvoiceNumber: strings.TrimPrefix(o.Number, "#"),
		Amount:        o.TotalAmount,
		Currency:      strings.ToUpper(o.Currency),
		MerchantID:    cfg.MerchantID(),
		Mode:          cfg.Mode(),
		Type:          transactionType,
		Billing: Billing{
			FirstName: o.Billing.FirstName,
			LastName:  o.Billing.LastName,
			Address:   joinLines(o.Billing.Address1, o.Billing.Address2),
			City:      o.Billing.City,
			State:     o.Billing.State,
			Zip:       o.Billing.Postcode,
			Country:   o.Billing.Country,
			Phone:     o.Billing.Phone,
			Email:     o.Billing.Email,
		},
		Shipping: Shipping{
			FirstName: o.Shipping.FirstName,
			LastName:  o.Shipping.LastName,
			Company:   o.Shipping.Company,
			Address:   joinLines(o.Shipping.Address1, o.Shipping.Address2),
			City:      o.Shipping.City,
			State:     o.Shipping.State,
			Zip:       o.Shipping.Postcode,
			Country:   o.Shipping.Country,
		},
		CustomerID: o.CustomerID,
		CustomerIP: customerIP,
	}
	if req.InvoiceNumber == "" {
		req.InvoiceNumber = o.ID
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, fmt.Errorf("%w: missing or invalid fields: %s", ErrInvalidOrder, strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	return req, nil
}

func joinLines(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}

// Values renders the payload as processor form fields. The transaction key
// is never part of it; callers append the signature separately.
func (r *Request) Values() url.Values {
	v := url.Values{}
	v.Set("order_id", r.OrderID)
	v.Set("invoice_num", r.InvoiceNumber)
	v.Set("amount", strconv.FormatInt(r.Amount, 10))
	v.Set("currency", r.Currency)
	v.Set("merchant_id", r.MerchantID)
	v.Set("type", r.Type)
	v.Set("test_request", strconv.FormatBool(r.Mode == ModeTest))

	v.Set("first_name", r.Billing.FirstName)
	v.Set("last_name", r.Billing.LastName)
	v.Set("address", r.Billing.Address)
	v.Set("city", r.Billing.City)
	v.Set("state", r.Billing.State)
	v.Set("zip", r.Billing.Zip)
	v.Set("country", r.Billing.Country)
	v.Set("phone", r.Billing.Phone)
	v.Set("email", r.Billing.Email)

	v.Set("ship_to_first_name", r.Shipping.FirstName)
	v.Set("ship_to_last_name", r.Shipping.LastName)
	v.Set("ship_to_company", r.Shipping.Company)
	v.Set("ship_to_address", r.Shipping.Address)
	v.Set("ship_to_city", r.Shipping.City)
	v.Set("ship_to_state", r.Shipping.State)
	v.Set("ship_to_zip", r.Shipping.Zip)
	v.Set("ship_to_country", r.Shipping.Country)

	if r.CustomerID != "" {
		v.Set("cust_id", r.CustomerID)
	}
	if r.CustomerIP != "" {
		v.Set("customer_ip", r.CustomerIP)
	}
	return v
}

// RedirectURL is the processor endpoint for the configured mode.
func RedirectURL(cfg *Config) (string, error) {
	u := cfg.Endpoint()
	if u == "" {
		return "", fmt.Errorf("%w: no %s endpoint configured", ErrConfig, cfg.Mode())
	}
	return u, nil
}

// signedURL appends the payload, return urls, and signature to the endpoint.
func signedURL(endpoint string, req *Request, cfg *Config) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}

	q := u.Query()
	for k, vs := range req.Values() {
		q[k] = vs
	}
	if cfg.ReturnURL() != "" {
		q.Set("return_url", cfg.ReturnURL())
	}
	if cfg.CallbackURL() != "" {
		q.Set("callback_url", cfg.CallbackURL())
	}
	q.Set("signature", cfg.SignRequest(req.OrderID, req.Amount))

	u.RawQuery = q.Encode()
	return u.String(), nil
}
