package orders

import "time"

// DescriptionMaxLen matches the orders.description VARCHAR(100) column.
const DescriptionMaxLen = 100

type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type Order struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OrderSummary is one row of the order listing. ProductCount counts distinct
// products, so duplicate associations are counted once.
type OrderSummary struct {
	Order
	ProductCount int `json:"productCount"`
}

// OrderDetail is an order with its associated products. Products is never nil.
type OrderDetail struct {
	Order
	Products []Product `json:"products"`
}

// OrderInput carries the writable fields of an order. ProductIDs is the
// complete product set, not a delta.
type OrderInput struct {
	Description string  `json:"description" validate:"required,max=100"`
	ProductIDs  []int64 `json:"productIds" validate:"dive,gt=0"`
}
