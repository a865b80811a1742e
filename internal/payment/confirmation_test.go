package payment

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gopay-be/internal/order"
)

func newTestHandler(t *testing.T) (*ConfirmationHandler, *order.MemoryStore, *Config) {
	t.Helper()
	cfg := testConfig(t)

	store := order.NewMemoryStore()
	store.SetStock("p-1", 10)
	store.Put(*sampleOrder())

	h := NewConfirmationHandler(store, func() *Config { return cfg }, zap.NewNop())
	return h, store, cfg
}

func TestParseConfirmation(t *testing.T) {
	t.Run("Aliases", func(t *testing.T) {
		c, err := ParseConfirmation(url.Values{
			"order_id": {"#1001"},
			"total":    {"4999"},
			"hash":     {"abc"},
		})
		require.NoError(t, err)
		assert.Equal(t, "1001", c.OrderID)
		assert.Equal(t, int64(4999), c.ClaimedAmount)
		assert.Equal(t, "abc", c.Signature)
		assert.False(t, c.Declined)
	})

	t.Run("Declined", func(t *testing.T) {
		c, err := ParseConfirmation(url.Values{
			"order_id":  {"1001"},
			"amount":    {"4999"},
			"signature": {"abc"},
			"status":    {"DECLINED"},
			"reason":    {"insufficient funds"},
		})
		require.NoError(t, err)
		assert.True(t, c.Declined)
		assert.Equal(t, "insufficient funds", c.Reason)
	})

	t.Run("Malformed", func(t *testing.T) {
		cases := map[string]url.Values{
			"no order":     {"amount": {"1"}, "signature": {"a"}},
			"no signature": {"order_id": {"1"}, "amount": {"1"}},
			"no amount":    {"order_id": {"1"}, "signature": {"a"}},
			"decimal":      {"order_id": {"1"}, "amount": {"49.99"}, "signature": {"a"}},
			"negative":     {"order_id": {"1"}, "amount": {"-5"}, "signature": {"a"}},
			"status":       {"order_id": {"1"}, "amount": {"1"}, "signature": {"a"}, "status": {"maybe"}},
		}
		for name, v := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseConfirmation(v)
				assert.ErrorIs(t, err, ErrMalformedConfirmation)
			})
		}
	})
}

func TestConfirmationHandler_Paid(t *testing.T) {
	h, store, cfg := newTestHandler(t)
	ctx := context.Background()

	c := Confirmation{OrderID: "1001", ClaimedAmount: 4999, Signature: cfg.Sign("1001", 4999)}

	res, err := h.Handle(ctx, c)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ReasonPaid, res.Reason)
	assert.Equal(t, order.StatusPending, res.Previous)
	assert.Equal(t, order.StatusCompleted, res.Current)
	assert.Equal(t, 8, store.Stock("p-1"))

	// second identical delivery
	res, err = h.Handle(ctx, c)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.Equal(t, 8, store.Stock("p-1"))

	o, _ := store.Get(ctx, "1001")
	assert.Equal(t, order.StatusCompleted, o.Status)
}

func TestConfirmationHandler_AmountMismatch(t *testing.T) {
	h, store, cfg := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Handle(ctx, Confirmation{OrderID: "1001", ClaimedAmount: 1, Signature: cfg.Sign("1001", 1)})
	assert.ErrorIs(t, err, ErrAmountMismatch)

	o, _ := store.Get(ctx, "1001")
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 10, store.Stock("p-1"))
	require.Len(t, store.Notes("1001"), 1)
	assert.Contains(t, store.Notes("1001")[0], "amount 1 does not match order total 4999")
}

func TestConfirmationHandler_SignatureMismatch(t *testing.T) {
	h, store, cfg := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Handle(ctx, Confirmation{OrderID: "1001", ClaimedAmount: 4999, Signature: cfg.Sign("1001", 5000)})
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = h.Handle(ctx, Confirmation{OrderID: "1001", ClaimedAmount: 4999, Signature: "deadbeef"})
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	o, _ := store.Get(ctx, "1001")
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Len(t, store.Notes("1001"), 2)
	for _, n := range store.Notes("1001") {
		assert.NotContains(t, n, "super-secret-key")
	}
}

func TestConfirmationHandler_NotFoundAndMalformed(t *testing.T) {
	h, _, cfg := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Handle(ctx, Confirmation{OrderID: "9999", ClaimedAmount: 1, Signature: cfg.Sign("9999", 1)})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = h.Handle(ctx, Confirmation{OrderID: "1001", ClaimedAmount: 4999})
	assert.ErrorIs(t, err, ErrMalformedConfirmation)
}

func TestConfirmationHandler_TerminalBeforeSignature(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()

	o := sampleOrder()
	o.ID = "2002"
	o.Status = order.StatusCancelled
	store.Put(*o)

	res, err := h.Handle(ctx, Confirmation{OrderID: "2002", ClaimedAmount: 4999, Signature: "00"})
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.Equal(t, order.StatusCancelled, res.Current)
}

func TestConfirmationHandler_Declined(t *testing.T) {
	h, store, cfg := newTestHandler(t)
	ctx := context.Background()

	c := Confirmation{
		OrderID:       "1001",
		ClaimedAmount: 4999,
		Signature:     cfg.Sign("1001", 4999),
		Declined:      true,
		Reason:        "insufficient funds",
	}

	res, err := h.Handle(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ReasonDeclined, res.Reason)
	assert.Equal(t, order.StatusFailed, res.Current)
	assert.Equal(t, []string{"GOPay payment declined: insufficient funds"}, store.Notes("1001"))
	assert.Equal(t, 10, store.Stock("p-1"))

	res, err = h.Handle(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicate, res.Reason)

	// a later successful payment still completes the order
	c.Declined = false
	res, err = h.Handle(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ReasonPaid, res.Reason)
	assert.Equal(t, order.StatusFailed, res.Previous)
}

func TestConfirmationHandler_ConcurrentDeliveries(t *testing.T) {
	h, store, cfg := newTestHandler(t)
	ctx := context.Background()
	c := Confirmation{OrderID: "1001", ClaimedAmount: 4999, Signature: cfg.Sign("1001", 4999)}

	const deliveries = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reasons = map[string]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Handle(ctx, c)
			assert.NoError(t, err)
			assert.True(t, res.Accepted)
			mu.Lock()
			reasons[res.Reason]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reasons[ReasonPaid])
	assert.Equal(t, deliveries-1, reasons[ReasonDuplicate])
	assert.Equal(t, 8, store.Stock("p-1"))
}

type failingStore struct {
	*order.MemoryStore
	err error
}

func (s failingStore) MarkPaid(context.Context, string) (order.Transition, error) {
	return order.Transition{}, s.err
}

func TestConfirmationHandler_StoreError(t *testing.T) {
	cfg := testConfig(t)
	mem := order.NewMemoryStore()
	mem.Put(*sampleOrder())
	store := failingStore{MemoryStore: mem, err: errors.New("connection reset")}

	h := NewConfirmationHandler(store, func() *Config { return cfg }, nil)
	_, err := h.Handle(context.Background(), Confirmation{OrderID: "1001", ClaimedAmount: 4999, Signature: cfg.Sign("1001", 4999)})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestConfirmationHandler_NoKeyConfigured(t *testing.T) {
	cfg, err := Load(Options{TestMode: true})
	require.NoError(t, err)

	store := order.NewMemoryStore()
	store.SetStock("p-1", 10)
	store.Put(*sampleOrder())
	h := NewConfirmationHandler(store, func() *Config { return cfg }, zap.NewNop())

	// anyone can compute a signature under an empty key
	_, err = h.Handle(context.Background(), Confirmation{OrderID: "1001", ClaimedAmount: 4999, Signature: cfg.Sign("1001", 4999)})
	assert.ErrorIs(t, err, ErrConfig)

	o, _ := store.Get(context.Background(), "1001")
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 10, store.Stock("p-1"))
}
