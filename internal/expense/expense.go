package expense

import "time"

// Trip groups the expenses of a single journey. Every expense on a trip is
// converted into the trip's base currency when it is recorded.
type Trip struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expense is a single spend on a trip. RateToBase is units of base currency
// per 1 unit of the expense currency; AmountBase is the converted amount at
// full float precision. Rounding happens only at display time.
type Expense struct {
	ID            string             `json:"id"`
	TripID        string             `json:"trip_id"`
	Merchant      string             `json:"merchant"`
	Category      string             `json:"category,omitempty"`
	Date          time.Time          `json:"date"`
	CurrencyCode  string             `json:"currency_code"`
	AmountForeign float64            `json:"amount_foreign"`
	RateToBase    float64            `json:"rate_to_base"`
	AmountBase    float64            `json:"amount_base"`
	Filename      string             `json:"filename,omitempty"`
	ContentType   string             `json:"content_type,omitempty"`
	Confidence    map[string]float64 `json:"confidence,omitempty"` // per-field scan confidence, scanned expenses only
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// TripSummary totals a trip's expenses in its base currency, plus the raw
// per-currency foreign totals
type TripSummary struct {
	TripID        string             `json:"trip_id"`
	BaseCurrency  string             `json:"base_currency"`
	ExpenseCount  int                `json:"expense_count"`
	Total         float64            `json:"total"`
	TotalDisplay  string             `json:"total_display"`
	ForeignTotals map[string]float64 `json:"foreign_totals"`
}
