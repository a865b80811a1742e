package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopay-be/internal/order"
)

const redacted = "********"

const (
	FieldCheckbox = "checkbox"
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldPassword = "password"
	FieldSelect   = "select"
)

type FormField struct {
	Key         string   `json:"key"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Label       string   `json:"label,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default"`
	Choices     []string `json:"choices,omitempty"`
	Secret      bool     `json:"secret,omitempty"`
}

var formFields = []FormField{
	{Key: "enabled", Type: FieldCheckbox, Title: "Enable/Disable", Label: "Enable GOPay Payment Module.", Default: "yes"},
	{Key: "title", Type: FieldText, Title: "Title", Description: "Title the customer sees during checkout.", Default: defaultTitle},
	{Key: "description", Type: FieldTextarea, Title: "Description", Description: "Payment method description the customer sees during checkout."},
	{Key: "instructions", Type: FieldTextarea, Title: "Instructions", Description: "Added to the thank-you page and order emails. Supports {{order_number}} and {{amount}}."},
	{Key: "merchant_id", Type: FieldText, Title: "Merchant ID", Description: "Merchant identifier issued by GOPay."},
	{Key: "api_key", Type: FieldPassword, Title: "API Key", Description: "API key used for direct post.", Secret: true},
	{Key: "trans_key", Type: FieldPassword, Title: "Transaction Key", Description: "Key used to sign payment requests and confirmations.", Secret: true},
	{Key: "test_mode", Type: FieldCheckbox, Title: "Test Mode", Label: "Place the payment gateway in test mode.", Default: "yes"},
	{Key: "test_url", Type: FieldText, Title: "Test URL"},
	{Key: "live_url", Type: FieldText, Title: "Live URL"},
	{Key: "return_url", Type: FieldText, Title: "Return URL"},
	{Key: "callback_url", Type: FieldText, Title: "Callback URL"},
	{Key: "signature_scheme", Type: FieldSelect, Title: "Signature Scheme", Default: string(SchemeHMACSHA256),
		Choices: []string{string(SchemeHMACSHA256), string(SchemeBlake2b)}},
	{Key: "direct_post", Type: FieldCheckbox, Title: "Direct Post", Label: "Post payments server to server instead of redirecting.", Default: "no"},
	{Key: "timeout", Type: FieldText, Title: "Timeout", Description: "Direct post timeout, e.g. 30s.", Default: defaultTimeout.String()},
}

// FormFields returns a copy of the admin settings form.
func FormFields() []FormField {
	out := make([]FormField, len(formFields))
	copy(out, formFields)
	return out
}

// OptionsFromForm parses admin form values. Keys that are absent take the
// field default.
func OptionsFromForm(form map[string]string) (Options, error) {
	get := func(key string) string {
		if v, ok := form[key]; ok {
			return strings.TrimSpace(v)
		}
		for _, f := range formFields {
			if f.Key == key {
				return f.Default
			}
		}
		return ""
	}

	var (
		opts Options
		err  error
	)
	if opts.Enabled, err = parseCheckbox("enabled", get("enabled")); err != nil {
		return Options{}, err
	}
	if opts.TestMode, err = parseCheckbox("test_mode", get("test_mode")); err != nil {
		return Options{}, err
	}
	if opts.DirectPost, err = parseCheckbox("direct_post", get("direct_post")); err != nil {
		return Options{}, err
	}

	opts.Title = get("title")
	opts.Description = get("description")
	opts.Instructions = get("instructions")
	if opts.Instructions == "" {
		opts.Instructions = opts.Description
	}
	opts.MerchantID = get("merchant_id")
	opts.APIKey = get("api_key")
	opts.TransKey = get("trans_key")
	opts.TestURL = get("test_url")
	opts.LiveURL = get("live_url")
	opts.ReturnURL = get("return_url")
	opts.CallbackURL = get("callback_url")
	opts.SignatureScheme = SignatureScheme(strings.ToLower(get("signature_scheme")))

	if raw := get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Options{}, fmt.Errorf("%w: timeout: %v", ErrConfig, err)
		}
		opts.Timeout = d
	}

	return opts, nil
}

func parseCheckbox(key, v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "true", "1", "on":
		return true, nil
	case "no", "false", "0", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s: invalid checkbox value %q", ErrConfig, key, v)
}

// Form renders options back into admin form values, secrets included.
func (o Options) Form() map[string]string {
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	form := map[string]string{
		"enabled":          yesNo(o.Enabled),
		"title":            o.Title,
		"description":      o.Description,
		"instructions":     o.Instructions,
		"merchant_id":      o.MerchantID,
		"api_key":          o.APIKey,
		"trans_key":        o.TransKey,
		"test_mode":        yesNo(o.TestMode),
		"test_url":         o.TestURL,
		"live_url":         o.LiveURL,
		"return_url":       o.ReturnURL,
		"callback_url":     o.CallbackURL,
		"signature_scheme": string(o.SignatureScheme),
		"direct_post":      yesNo(o.DirectPost),
		"timeout":          "",
	}
	if o.Timeout > 0 {
		form["timeout"] = o.Timeout.String()
	}
	return form
}

// RedactForm masks secret values that are set.
func RedactForm(form map[string]string) map[string]string {
	out := make(map[string]string, len(form))
	for k, v := range form {
		out[k] = v
	}
	for _, f := range formFields {
		if f.Secret && out[f.Key] != "" {
			out[f.Key] = redacted
		}
	}
	return out
}

// MergeSecrets keeps the current secret for fields submitted as the
// redaction placeholder or left out, so a redacted form can be saved back.
func MergeSecrets(form map[string]string, current Options) map[string]string {
	existing := current.Form()
	out := make(map[string]string, len(form))
	for k, v := range form {
		out[k] = v
	}
	for _, f := range formFields {
		if !f.Secret {
			continue
		}
		if v, ok := out[f.Key]; !ok || v == redacted {
			out[f.Key] = existing[f.Key]
		}
	}
	return out
}

type InstructionVars map[string]string

// InjectVariables replaces {{key}} placeholders in text.
func InjectVariables(text string, vars InstructionVars) string {
	for key, value := range vars {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}
	return text
}

func orderVars(o *order.Order) InstructionVars {
	if o == nil {
		return InstructionVars{}
	}
	return InstructionVars{
		"order_number": strings.TrimPrefix(o.Number, "#"),
		"amount":       FormatAmount(o.TotalAmount, o.Currency),
	}
}

// FormatAmount renders minor units with two decimals.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	s := sign + strconv.FormatInt(minor/100, 10) + "." + fmt.Sprintf("%02d", minor%100)
	if currency != "" {
		s += " " + strings.ToUpper(currency)
	}
	return s
}
