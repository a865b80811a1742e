package payment

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

const (
	defaultTitle   = "GOPay"
	defaultTimeout = 30 * time.Second
	maxTimeout     = 2 * time.Minute
)

// Options are the raw gateway settings as the admin surface stores them.
type Options struct {
	Enabled         bool
	Title           string
	Description     string
	Instructions    string
	MerchantID      string
	APIKey          string
	TransKey        string
	TestMode        bool
	TestURL         string
	LiveURL         string
	ReturnURL       string
	CallbackURL     string
	SignatureScheme SignatureScheme
	DirectPost      bool
	Timeout         time.Duration
}

// Config is a validated, immutable gateway configuration. A settings change
// produces a new Config through Load.
type Config struct {
	opts Options
	mode Mode
}

func Load(opts Options) (*Config, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		opts.Title = defaultTitle
	}
	if opts.SignatureScheme == "" {
		opts.SignatureScheme = SchemeHMACSHA256
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	mode := ModeLive
	if opts.TestMode {
		mode = ModeTest
	}

	if mode == ModeLive && opts.MerchantID == "" {
		return nil, fmt.Errorf("%w: merchant id is required in live mode", ErrConfig)
	}
	if (opts.Enabled || mode == ModeLive) && opts.TransKey == "" {
		return nil, fmt.Errorf("%w: transaction key is required", ErrConfig)
	}

	if err := opts.SignatureScheme.validateKey([]byte(opts.TransKey)); err != nil {
		return nil, err
	}

	if opts.Timeout < 0 || opts.Timeout > maxTimeout {
		return nil, fmt.Errorf("%w: timeout must be between 0 and %s", ErrConfig, maxTimeout)
	}

	for name, raw := range map[string]string{
		"test_url":     opts.TestURL,
		"live_url":     opts.LiveURL,
		"return_url":   opts.ReturnURL,
		"callback_url": opts.CallbackURL,
	} {
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
		}
	}

	if opts.DirectPost && opts.ReturnURL == "" {
		return nil, fmt.Errorf("%w: direct post requires a return url", ErrConfig)
	}

	return &Config{opts: opts, mode: mode}, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func (c *Config) Enabled() bool           { return c.opts.Enabled }
func (c *Config) Mode() Mode              { return c.mode }
func (c *Config) MerchantID() string      { return c.opts.MerchantID }
func (c *Config) Title() string           { return c.opts.Title }
func (c *Config) Description() string     { return c.opts.Description }
func (c *Config) Instructions() string    { return c.opts.Instructions }
func (c *Config) ReturnURL() string       { return c.opts.ReturnURL }
func (c *Config) CallbackURL() string     { return c.opts.CallbackURL }
func (c *Config) Scheme() SignatureScheme { return c.opts.SignatureScheme }
func (c *Config) DirectPost() bool        { return c.opts.DirectPost }
func (c *Config) Timeout() time.Duration  { return c.opts.Timeout }

// Endpoint is the processor URL for the active mode.
func (c *Config) Endpoint() string {
	if c.mode == ModeTest {
		return c.opts.TestURL
	}
	return c.opts.LiveURL
}

// Options returns the settings this config was loaded from, secrets included.
// Callers that expose them must go through RedactForm.
func (c *Config) Options() Options { return c.opts }

func (c *Config) key() []byte { return []byte(c.opts.TransKey) }

func (c *Config) apiKey() string { return c.opts.APIKey }

// HasKey reports whether a transaction key is configured. Nothing verifies
// without one.
func (c *Config) HasKey() bool { return c.opts.TransKey != "" }

// Sign produces the confirmation signature the processor sends back for
// orderID and amount.
func (c *Config) Sign(orderID string, amount int64) string {
	return c.opts.SignatureScheme.sign(c.key(), signatureMessage(purposeConfirm, orderID, amount))
}

// Verify checks a confirmation signature in constant time.
func (c *Config) Verify(orderID string, amount int64, sig string) bool {
	return c.opts.SignatureScheme.verify(c.key(), signatureMessage(purposeConfirm, orderID, amount), sig)
}

// SignRequest signs an outbound payment request. A request signature never
// verifies as a confirmation.
func (c *Config) SignRequest(orderID string, amount int64) string {
	return c.opts.SignatureScheme.sign(c.key(), signatureMessage(purposeRequest, orderID, amount))
}

// OrderKey grants read access to the thank-you view of one order.
func (c *Config) OrderKey(orderID string) string {
	return c.opts.SignatureScheme.sign(c.key(), signatureMessage(purposeView, orderID, 0))
}

func (c *Config) VerifyOrderKey(orderID, key string) bool {
	return c.opts.SignatureScheme.verify(c.key(), signatureMessage(purposeView, orderID, 0), key)
}

func (c *Config) String() string {
	return fmt.Sprintf("gopay{mode=%s merchant=%s enabled=%t transaction_key=[redacted]}",
		c.mode, c.opts.MerchantID, c.opts.Enabled)
}

// MarshalLogObject lets the config be logged with zap.Object; keys are omitted.
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("mode", string(c.mode))
	enc.AddString("merchant_id", c.opts.MerchantID)
	enc.AddBool("enabled", c.opts.Enabled)
	enc.AddBool("direct_post", c.opts.DirectPost)
	enc.AddString("signature_scheme", string(c.opts.SignatureScheme))
	enc.AddDuration("timeout", c.opts.Timeout)
	return nil
}
