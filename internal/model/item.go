// Package model defines data structures used throughout the application.
package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation constants.
const (
	MaxNameLength     = 100
	MaxCategoryLength = 50
	MaxPrice          = 1_000_000
)

// Violation messages reported by ItemInput.Validate.
const (
	MsgNameRequired     = "Name is required"
	MsgNameNotString    = "Name must be a string"
	MsgNameEmpty        = "Name cannot be empty"
	MsgNameTooLong      = "Name cannot exceed 100 characters"
	MsgCategoryRequired = "Category is required"
	MsgCategoryNotStr   = "Category must be a string"
	MsgCategoryEmpty    = "Category cannot be empty"
	MsgCategoryTooLong  = "Category cannot exceed 50 characters"
	MsgPriceRequired    = "Price is required"
	MsgPriceNotNumber   = "Price must be a number"
	MsgPriceNegative    = "Price cannot be negative"
	MsgPriceTooHigh     = "Price cannot exceed 1000000"
)

// Item represents a catalog record.
type Item struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// ItemInput is the untyped shape of a create or update request body.
// A nil field means the field was absent (or null) in the request.
type ItemInput struct {
	Name     any `json:"name"`
	Category any `json:"category"`
	Price    any `json:"price"`
}

// ValidationError reports client-correctable input problems.
type ValidationError struct {
	Message    string
	Violations []string
}

// NewValidationError creates a ValidationError for failed field checks.
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{
		Message:    "Validation failed",
		Violations: violations,
	}
}

// NewParamError creates a ValidationError for a single invalid request parameter.
func NewParamError(message string) *ValidationError {
	return &ValidationError{
		Message:    message,
		Violations: []string{message},
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Violations, ", "))
}

// Validate checks every field independently and collects all violations
// in name, category, price order.
func (in *ItemInput) Validate() error {
	var violations []string

	violations = appendTextViolation(violations, in.Name, MaxNameLength,
		MsgNameRequired, MsgNameNotString, MsgNameEmpty, MsgNameTooLong)
	violations = appendTextViolation(violations, in.Category, MaxCategoryLength,
		MsgCategoryRequired, MsgCategoryNotStr, MsgCategoryEmpty, MsgCategoryTooLong)

	switch price := in.Price.(type) {
	case nil:
		violations = append(violations, MsgPriceRequired)
	case float64:
		if price < 0 {
			violations = append(violations, MsgPriceNegative)
		} else if price > MaxPrice {
			violations = append(violations, MsgPriceTooHigh)
		}
	default:
		violations = append(violations, MsgPriceNotNumber)
	}

	if len(violations) > 0 {
		return NewValidationError(violations...)
	}
	return nil
}

func appendTextViolation(violations []string, value any, limit int, required, notString, empty, tooLong string) []string {
	if value == nil {
		return append(violations, required)
	}

	s, ok := value.(string)
	if !ok {
		return append(violations, notString)
	}

	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return append(violations, empty)
	case utf8.RuneCountInString(trimmed) > limit:
		return append(violations, tooLong)
	}
	return violations
}

// ToItem validates the input and converts it into a typed Item without an ID.
func (in *ItemInput) ToItem() (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}

	// Validate guarantees the assertions below.
	return Item{
		Name:     strings.TrimSpace(in.Name.(string)),
		Category: strings.TrimSpace(in.Category.(string)),
		Price:    in.Price.(float64),
	}, nil
}

// MergeInto returns the input that results from applying the provided
// fields of in over existing. Absent fields keep the existing value.
func (in *ItemInput) MergeInto(existing Item) ItemInput {
	merged := ItemInput{
		Name:     existing.Name,
		Category: existing.Category,
		Price:    existing.Price,
	}
	if in.Name != nil {
		merged.Name = in.Name
	}
	if in.Category != nil {
		merged.Category = in.Category
	}
	if in.Price != nil {
		merged.Price = in.Price
	}
	return merged
}

// SameName reports whether two names are equal ignoring case and surrounding space.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Pagination describes the position of a page within a query result.
type Pagination struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	TotalItems      int  `json:"totalItems"`
	ItemsPerPage    int  `json:"itemsPerPage"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page is one page of a filtered and sorted item listing.
type Page struct {
	Data       []Item     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Stats holds aggregate statistics over the collection.
type Stats struct {
	TotalItems int            `json:"totalItems"`
	Categories map[string]int `json:"categories"`
	PriceRange PriceRange     `json:"priceRange"`
	Metadata   StatsMetadata  `json:"metadata"`
}

// PriceRange holds price aggregates. Min and Max are nil for an empty collection.
type PriceRange struct {
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Average float64  `json:"average"`
}

// StatsMetadata describes when the statistics were produced.
type StatsMetadata struct {
	LastModified *time.Time `json:"lastModified"`
	CalculatedAt time.Time  `json:"calculatedAt"`
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// Item event types.
const (
	EventItemCreated = "created"
	EventItemUpdated = "updated"
	EventItemDeleted = "deleted"
)

// ItemEvent describes a change to the collection.
type ItemEvent struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	Item      *Item     `json:"item,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewItemEvent creates an event for the given item. The item is omitted for deletions.
func NewItemEvent(eventType string, item Item) ItemEvent {
	event := ItemEvent{
		Type:      eventType,
		ID:        item.ID,
		Timestamp: time.Now().UTC(),
	}
	if eventType != EventItemDeleted {
		event.Item = &item
	}
	return event
}
