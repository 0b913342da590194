package orders

import "time"

// OrderEvent is the wire shape published on the orders topic and carried
// inside catalog-change notifications. PaymentID is the idempotency key.
type OrderEvent struct {
	Status     string      `json:"status"`
	PaymentID  string      `json:"paymentId" validate:"required"`
	Customer   Customer    `json:"customer"`
	OrderLines []OrderLine `json:"orderLines" validate:"dive"`
}

type Customer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

type OrderLine struct {
	ProductID string `json:"productId" validate:"required"`
	ItemCount int    `json:"itemCount" validate:"gte=0"`
}

// Product is the catalog snapshot cached under product:<id>.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int       `json:"price"`
	Stock     int       `json:"stock"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
