package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id" db:"product_id"`
	Category    string          `json:"category" db:"category"`
	Team        string          `json:"team" db:"team"`
	Name        string          `json:"name" db:"name"`
	Slug        string          `json:"slug" db:"slug"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Available   bool            `json:"available" db:"available"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

type ProductNew struct {
	Category    string          `json:"category" validate:"required,max=100"`
	Team        string          `json:"team" validate:"max=100"`
	Name        string          `json:"name" validate:"required,max=200"`
	Slug        string          `json:"slug" validate:"required,max=200"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Available   *bool           `json:"available"`
}

type ProductUp struct {
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	Team        *string          `json:"team" validate:"omitempty,max=100"`
	Name        *string          `json:"name" validate:"omitempty,max=200"`
	Slug        *string          `json:"slug" validate:"omitempty,max=200"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Available   *bool            `json:"available"`
}

// Filter narrows a product listing. Empty fields match everything; Query
// matches a case-insensitive substring of the name.
type Filter struct {
	Category string
	Team     string
	Query    string
}

// maxPrice mirrors the numeric(10,2) column.
var maxPrice = decimal.New(1, 8)

// checkPrice accepts non-negative prices with at most two decimal places.
func checkPrice(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThan(maxPrice) && p.Equal(p.Round(2))
}
