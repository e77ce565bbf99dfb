package duration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

type unit struct {
	name string
	size time.Duration
}

// largest first; Format relies on this order
var units = []unit{
	{"y", 365 * 24 * time.Hour},
	{"m", 30 * 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
}

var aliases = map[string]string{
	"h": "h", "hour": "h", "hours": "h",
	"d": "d", "day": "d", "days": "d",
	"w": "w", "week": "w", "weeks": "w",
	"m": "m", "month": "m", "months": "m",
	"y": "y", "year": "y", "years": "y",
}

var (
	// ErrInvalidFormat indicates the input contains something other than number/unit pairs
	ErrInvalidFormat = errors.New("invalid duration format")

	// ErrInvalidNumber indicates a numeric part is missing or out of range
	ErrInvalidNumber = errors.New("invalid duration number")

	// ErrInvalidUnit indicates a unit is not recognized
	ErrInvalidUnit = errors.New("invalid duration unit")
)

type term struct {
	num  string
	unit string
}

// Parse reads an age such as "2w", "30days" or "1 week 3 days" and returns
// the sum of its terms. Months are 30 days and years 365 days.
func Parse(input string) (time.Duration, error) {
	terms, err := split(strings.ToLower(input))
	if err != nil {
		return 0, err
	}

	var total time.Duration
	for _, t := range terms {
		if t.num == "" {
			return 0, fmt.Errorf("%w: %q has no number", ErrInvalidNumber, t.unit)
		}
		n, err := strconv.Atoi(t.num)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidNumber, t.num)
		}
		if t.unit == "" {
			return 0, fmt.Errorf("%w: missing unit after %s", ErrInvalidFormat, t.num)
		}
		name, ok := aliases[t.unit]
		if !ok {
			return 0, fmt.Errorf("%w: '%s' (supported: h, d, w, m, y)", ErrInvalidUnit, t.unit)
		}
		for _, u := range units {
			if u.name == name {
				total += time.Duration(n) * u.size
			}
		}
	}
	return total, nil
}

// split breaks the input into number/unit terms. Spaces may separate terms or
// a number from its unit.
func split(input string) ([]term, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidFormat)
	}

	var (
		terms []term
		cur   term
	)
	flush := func() {
		if cur.num != "" || cur.unit != "" {
			terms = append(terms, cur)
		}
		cur = term{}
	}
	for _, r := range input {
		switch {
		case unicode.IsDigit(r):
			if cur.unit != "" {
				flush()
			}
			cur.num += string(r)
		case unicode.IsLetter(r):
			cur.unit += string(r)
		case unicode.IsSpace(r):
			if cur.unit != "" {
				flush()
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidFormat, r)
		}
	}
	flush()
	return terms, nil
}

// Format renders d with the largest units first, e.g. "1w3d". Remainders
// below an hour are dropped.
func Format(d time.Duration) string {
	if d < time.Hour {
		return "0h"
	}
	var sb strings.Builder
	for _, u := range units {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&sb, "%d%s", n, u.name)
			d -= n * u.size
		}
	}
	return sb.String()
}
