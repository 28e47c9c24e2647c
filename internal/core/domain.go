package core

import (
	"errors"
	"strings"
)

type (
	// Category is a named grouping for expense records. Color is a display
	// hint for the UI; the core treats it as opaque text.
	Category struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Color       string `json:"color"`
	}

	// Record is a single expense entry as surfaced by read operations:
	// joined to its category and with the date in display form (dd/mm/yyyy).
	Record struct {
		ID          int64   `json:"id"`
		Date        string  `json:"date"`
		Category    string  `json:"category"`
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
		Color       string  `json:"color"`
	}

	// RecordInput carries the caller-supplied fields for add/update. Date is
	// expected in display form (dd/mm/yyyy).
	RecordInput struct {
		Date        string  `json:"date"`
		Category    string  `json:"category"`
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
	}

	// CategorySummary is one row of the per-category report. Categories with
	// no records in range appear with Count 0 and Total 0.
	CategorySummary struct {
		Category string  `json:"category"`
		Color    string  `json:"color"`
		Count    int64   `json:"count"`
		Total    float64 `json:"total"`
	}

	// MonthSummary is one row of the monthly report. Month is "YYYY-MM".
	MonthSummary struct {
		Month string  `json:"month"`
		Total float64 `json:"total"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)

// Validate checks business rules before a write. The storage layer never
// validates input itself: a write that reaches it always proceeds, so callers
// that care about well-formed data must validate here first.
func (in RecordInput) Validate() error {
	if _, err := ToISO(in.Date); err != nil {
		return ErrInvalidDate
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrEmptyDescription
	}
	if len(in.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
