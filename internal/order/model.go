package order

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further payment transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusOnHold,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

type Order struct {
	ID            string
	Number        string
	CustomerID    string
	TotalAmount   int64 // minor units
	Currency      string
	Billing       Address
	Shipping      Address
	Status        Status
	PaymentMethod string
	StockReduced  bool
	Items         []OrderItem
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderItem struct {
	ProductID string
	Quantity  int
}

// Transition is the outcome of a status change attempt.
type Transition struct {
	OrderID  string
	Previous Status
	Current  Status
}

// Applied reports whether the attempt changed the stored status.
func (t Transition) Applied() bool {
	return t.Previous != t.Current
}
