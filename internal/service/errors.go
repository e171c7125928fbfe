package service

import (
	"fmt"
	"strings"

	"ashkicharm/backend/internal/store"
)

const maxReportedProblems = 5

type StockShortage struct {
	Product   string `json:"product"`
	Flavor    string `json:"flavor"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every line that could not be covered.
type InsufficientStockError struct {
	Lines []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s / %s (requested %d, available %d)", l.Product, l.Flavor, l.Requested, l.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error {
	return store.ErrInsufficientStock
}

type InvalidInputError struct {
	Problems []string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

func (e *InvalidInputError) Unwrap() error {
	return store.ErrInvalidInput
}

func invalidInput(format string, args ...any) error {
	return &InvalidInputError{Problems: []string{fmt.Sprintf(format, args...)}}
}

func newInvalidInputError(problems []string) *InvalidInputError {
	if len(problems) > maxReportedProblems {
		problems = problems[:maxReportedProblems]
	}
	return &InvalidInputError{Problems: problems}
}

// DuplicateFlavorError is returned when added flavors collide with existing
// ones and the caller did not ask to merge.
type DuplicateFlavorError struct {
	Names []string
}

func (e *DuplicateFlavorError) Error() string {
	return "flavors already exist: " + strings.Join(e.Names, ", ")
}

func (e *DuplicateFlavorError) Unwrap() error {
	return store.ErrDuplicate
}
