package expense

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/erelbl/travel-expenses/internal/currency"
	"github.com/erelbl/travel-expenses/internal/scanning"
)

// IDGenerator generates unique IDs for trips and expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles trip and expense operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	rates       currency.RateProvider
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, rates currency.RateProvider) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		rates:       rates,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, rates currency.RateProvider, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		rates:       rates,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var currencyCodePattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// CreateTrip creates a trip with the given name and base currency
func (s *Service) CreateTrip(name, baseCurrency string) (*Trip, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("trip name is required")
	}
	if !currencyCodePattern.MatchString(baseCurrency) {
		return nil, fmt.Errorf("base currency must be a 3-letter code, got %q", baseCurrency)
	}

	now := s.timeSource.Now()
	trip := &Trip{
		ID:           s.idGenerator.Generate(),
		Name:         name,
		BaseCurrency: strings.ToUpper(baseCurrency),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.SaveTrip(trip); err != nil {
		return nil, fmt.Errorf("saving trip: %w", err)
	}
	return trip, nil
}

// GetTrip retrieves a trip by ID
func (s *Service) GetTrip(id string) (*Trip, error) {
	trip, err := s.db.GetTrip(id)
	if err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}
	return trip, nil
}

// ListTrips returns all trips
func (s *Service) ListTrips() ([]*Trip, error) {
	trips, err := s.db.ListTrips()
	if err != nil {
		return nil, fmt.Errorf("listing trips: %w", err)
	}
	return trips, nil
}

// DeleteTrip removes a trip along with its expenses and their receipt files
func (s *Service) DeleteTrip(id string) error {
	if _, err := s.db.GetTrip(id); err != nil {
		return fmt.Errorf("getting trip for deletion: %w", err)
	}

	expenses, err := s.db.ListExpenses(id)
	if err != nil {
		return fmt.Errorf("listing trip expenses: %w", err)
	}
	for _, e := range expenses {
		if err := s.DeleteExpense(e.ID); err != nil {
			return fmt.Errorf("deleting expense %s: %w", e.ID, err)
		}
	}

	if err := s.db.DeleteTrip(id); err != nil {
		return fmt.Errorf("deleting trip from database: %w", err)
	}
	return nil
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	// Phone-generated filenames can be absurdly long
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt stores a receipt file, transcribes it, runs the field
// heuristics over the text and records the resulting expense on the trip,
// converted into the trip's base currency.
func (s *Service) ProcessReceipt(ctx context.Context, tripID, filename string, data []byte, contentType string) (*Expense, error) {
	trip, err := s.db.GetTrip(tripID)
	if err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	cleanFilename := sanitizeFilename(filename)
	savedPath, err := s.storage.Save(fmt.Sprintf("%s/%s_%s", tripID, id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.scanner.ExtractText(data, contentType)
	if err != nil {
		slog.Error("Failed to transcribe receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("transcribing receipt: %w", err)
	}

	result := scanning.ParseReceiptText(text)

	// An expense without an amount is useless; everything else degrades to a
	// default. Callers can threshold on the confidence scores themselves.
	if result.Amount.Value == nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("no amount found on receipt")
	}
	amountForeign := *result.Amount.Value

	code := trip.BaseCurrency
	if result.Currency.Value != nil {
		code = *result.Currency.Value
	} else {
		slog.Info("No currency found on receipt, assuming trip base currency",
			"trip_id", tripID, "base_currency", code)
	}

	date := now
	if result.Date.Value != nil {
		if d, err := time.Parse("2006-01-02", *result.Date.Value); err == nil {
			date = d
		}
	}

	merchant := "Unknown Merchant"
	if result.Merchant.Value != nil {
		merchant = *result.Merchant.Value
	}

	rate, err := s.rateFor(ctx, trip, code)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, err
	}

	expense := &Expense{
		ID:            id,
		TripID:        tripID,
		Merchant:      merchant,
		Category:      s.suggestCategory(tripID, merchant),
		Date:          date,
		CurrencyCode:  code,
		AmountForeign: amountForeign,
		RateToBase:    rate,
		AmountBase:    currency.Convert(amountForeign, rate),
		Filename:      savedPath,
		ContentType:   contentType,
		Confidence:    result.ConfidenceMap(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.SaveExpense(expense); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}

	return expense, nil
}

// ExpenseInput is a manually entered expense
type ExpenseInput struct {
	Merchant     string  `json:"merchant"`
	Category     string  `json:"category"`
	Date         string  `json:"date"` // YYYY-MM-DD, defaults to today
	CurrencyCode string  `json:"currency_code"`
	Amount       float64 `json:"amount"`
}

// AddExpense records a manually entered expense on a trip, converted into the
// trip's base currency
func (s *Service) AddExpense(ctx context.Context, tripID string, input ExpenseInput) (*Expense, error) {
	trip, err := s.db.GetTrip(tripID)
	if err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}

	if input.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	merchant := strings.TrimSpace(input.Merchant)
	if merchant == "" {
		return nil, fmt.Errorf("merchant is required")
	}

	code := trip.BaseCurrency
	if input.CurrencyCode != "" {
		if !currencyCodePattern.MatchString(input.CurrencyCode) {
			return nil, fmt.Errorf("currency must be a 3-letter code, got %q", input.CurrencyCode)
		}
		code = strings.ToUpper(input.CurrencyCode)
	}

	now := s.timeSource.Now()
	date := now
	if input.Date != "" {
		d, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", input.Date, err)
		}
		date = d
	}

	rate, err := s.rateFor(ctx, trip, code)
	if err != nil {
		return nil, err
	}

	category := input.Category
	if category == "" {
		category = s.suggestCategory(tripID, merchant)
	}

	expense := &Expense{
		ID:            s.idGenerator.Generate(),
		TripID:        tripID,
		Merchant:      merchant,
		Category:      category,
		Date:          date,
		CurrencyCode:  code,
		AmountForeign: input.Amount,
		RateToBase:    rate,
		AmountBase:    currency.Convert(input.Amount, rate),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}

	return expense, nil
}

// rateFor resolves the rateToBase for an expense currency against the trip's
// base currency. Same-currency expenses always convert at 1. The provider
// quotes rates into its own configured base, so a trip based in any other
// currency converts through it as a cross rate.
func (s *Service) rateFor(ctx context.Context, trip *Trip, code string) (float64, error) {
	if code == trip.BaseCurrency {
		return 1, nil
	}
	rate, err := s.rates.RateToBase(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("looking up rate for %s: %w", code, err)
	}
	tripRate, err := s.rates.RateToBase(ctx, trip.BaseCurrency)
	if err != nil {
		return 0, fmt.Errorf("looking up rate for trip base %s: %w", trip.BaseCurrency, err)
	}
	return rate * currency.InverseRate(tripRate), nil
}

// suggestCategory reuses the category of a previously recorded expense on the
// same trip whose merchant name is a close match, so repeat merchants stay
// consistently categorized despite OCR noise.
func (s *Service) suggestCategory(tripID, merchant string) string {
	expenses, err := s.db.ListExpenses(tripID)
	if err != nil {
		return ""
	}

	target := strings.ToUpper(merchant)
	best := 3 // at most 2 edits away
	var category string
	for _, e := range expenses {
		if e.Category == "" || e.Merchant == "" {
			continue
		}
		if d := levenshtein.ComputeDistance(target, strings.ToUpper(e.Merchant)); d < best {
			best = d
			category = e.Category
		}
	}
	return category
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses for a trip
func (s *Service) ListExpenses(tripID string) ([]*Expense, error) {
	if _, err := s.db.GetTrip(tripID); err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}
	expenses, err := s.db.ListExpenses(tripID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense and its receipt file
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if expense.Filename != "" {
		if err := s.storage.Delete(expense.Filename); err != nil {
			// Log but continue with database deletion
			slog.Warn("Failed to delete file", "filename", expense.Filename, "error", err)
		}
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the receipt file data for an expense
func (s *Service) GetExpenseFile(id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}
	if expense.Filename == "" {
		return nil, "", fmt.Errorf("expense %s has no receipt file", id)
	}

	data, err := s.storage.Get(expense.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, expense.ContentType, nil
}

// Summarize totals a trip's expenses in its base currency
func (s *Service) Summarize(tripID string) (*TripSummary, error) {
	trip, err := s.db.GetTrip(tripID)
	if err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}
	expenses, err := s.db.ListExpenses(tripID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	summary := &TripSummary{
		TripID:        trip.ID,
		BaseCurrency:  trip.BaseCurrency,
		ExpenseCount:  len(expenses),
		ForeignTotals: make(map[string]float64),
	}
	for _, e := range expenses {
		summary.Total += e.AmountBase
		summary.ForeignTotals[e.CurrencyCode] += e.AmountForeign
	}
	summary.TotalDisplay = currency.SymbolFor(trip.BaseCurrency) +
		currency.FormatForDisplay(summary.Total, trip.BaseCurrency)

	return summary, nil
}
