package order

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	stock  map[string]int
	notes  map[string][]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		stock:  make(map[string]int),
		notes:  make(map[string][]string),
		now:    time.Now,
	}
}

// Put inserts or replaces an order.
func (s *MemoryStore) Put(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = clone(&o)
}

func (s *MemoryStore) SetStock(productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = qty
}

func (s *MemoryStore) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

func (s *MemoryStore) Notes(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes[id]...)
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return clone(o), nil
}

func (s *MemoryStore) MarkPaid(_ context.Context, id string) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Transition{}, ErrOrderNotFound
	}

	prev := o.Status
	if prev.IsTerminal() {
		return Transition{OrderID: id, Previous: prev, Current: prev}, nil
	}

	if !o.StockReduced {
		for _, it := range o.Items {
			s.stock[it.ProductID] -= it.Quantity
		}
		o.StockReduced = true
	}

	paidAt := s.now()
	o.Status = StatusCompleted
	o.PaidAt = &paidAt
	o.UpdatedAt = paidAt

	return Transition{OrderID: id, Previous: prev, Current: StatusCompleted}, nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id, reason string) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Transition{}, ErrOrderNotFound
	}

	prev := o.Status
	if prev.IsTerminal() || prev == StatusFailed {
		return Transition{OrderID: id, Previous: prev, Current: prev}, nil
	}

	o.Status = StatusFailed
	o.UpdatedAt = s.now()
	if reason != "" {
		s.notes[id] = append(s.notes[id], reason)
	}

	return Transition{OrderID: id, Previous: prev, Current: StatusFailed}, nil
}

func (s *MemoryStore) AddNote(_ context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return ErrOrderNotFound
	}
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func clone(o *Order) *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}
