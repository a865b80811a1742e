package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// PaymentStats counts checkout and confirmation outcomes since start.
type PaymentStats struct {
	started time.Time

	CheckoutOK     Counter
	CheckoutFailed Counter

	ConfirmationPaid      Counter
	ConfirmationDuplicate Counter
	ConfirmationDeclined  Counter
	ConfirmationRejected  Counter
}

func NewPaymentStats() *PaymentStats {
	return &PaymentStats{started: time.Now()}
}

// RecordConfirmation counts one confirmation by its result reason; a
// non-nil err counts as rejected.
func (s *PaymentStats) RecordConfirmation(reason string, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.ConfirmationRejected.Inc()
		return
	}
	switch reason {
	case "paid":
		s.ConfirmationPaid.Inc()
	case "duplicate":
		s.ConfirmationDuplicate.Inc()
	case "declined":
		s.ConfirmationDeclined.Inc()
	}
}

func (s *PaymentStats) RecordCheckout(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.CheckoutFailed.Inc()
		return
	}
	s.CheckoutOK.Inc()
}

type Snapshot struct {
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checkouts     map[string]uint64 `json:"checkouts"`
	Confirmations map[string]uint64 `json:"confirmations"`
}

func (s *PaymentStats) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Checkouts: map[string]uint64{
			"ok":     s.CheckoutOK.Load(),
			"failed": s.CheckoutFailed.Load(),
		},
		Confirmations: map[string]uint64{
			"paid":      s.ConfirmationPaid.Load(),
			"duplicate": s.ConfirmationDuplicate.Load(),
			"declined":  s.ConfirmationDeclined.Load(),
			"rejected":  s.ConfirmationRejected.Load(),
		},
	}
}
