package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var flavorLinePattern = regexp.MustCompile(`^(.*?)\s+(\d+)$`)

// maxQuantity matches the INTEGER stock columns.
const maxQuantity = math.MaxInt32

type FlavorEntry struct {
	Name     string
	Quantity int
}

// ParseFlavorLines parses one "name quantity" pair per line. Blank lines are
// skipped. On failure the error lists the first offending lines.
func ParseFlavorLines(text string) ([]FlavorEntry, error) {
	entries := make([]FlavorEntry, 0, 8)
	problems := make([]string, 0)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		m := flavorLinePattern.FindStringSubmatch(line)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			problems = append(problems, fmt.Sprintf("line %d %q: expected \"name quantity\"", i+1, line))
			continue
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty > maxQuantity {
			problems = append(problems, fmt.Sprintf("line %d %q: quantity out of range", i+1, line))
			continue
		}
		entries = append(entries, FlavorEntry{Name: strings.TrimSpace(m[1]), Quantity: qty})
	}
	if len(problems) > 0 {
		return nil, newInvalidInputError(problems)
	}
	if len(entries) == 0 {
		return nil, invalidInput("no flavor lines given")
	}
	return entries, nil
}

type PriceSet struct {
	Purchase decimal.Decimal
	Sale     decimal.Decimal
	Sale2    decimal.Decimal
}

// ParsePrices reads "purchase sale [sale2]". A comma works as decimal
// separator. When sale2 is omitted it equals sale.
func ParsePrices(line string) (PriceSet, error) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", "."))
	if len(fields) < 2 || len(fields) > 3 {
		return PriceSet{}, invalidInput("expected \"purchase sale [sale2]\", got %q", strings.TrimSpace(line))
	}
	values := make([]decimal.Decimal, 0, 3)
	for _, field := range fields {
		v, err := decimal.NewFromString(field)
		if err != nil {
			return PriceSet{}, invalidInput("price %q is not a number", field)
		}
		if v.IsNegative() {
			return PriceSet{}, invalidInput("price %q must not be negative", field)
		}
		values = append(values, v)
	}
	prices := PriceSet{Purchase: values[0], Sale: values[1], Sale2: values[1]}
	if len(values) == 3 {
		prices.Sale2 = values[2]
	}
	return prices, nil
}
