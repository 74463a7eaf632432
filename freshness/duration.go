package freshness

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidDuration = errors.New("invalid duration")

const (
	millisPerSecond = int64(1000)
	millisPerMinute = 60 * millisPerSecond
	millisPerHour   = 60 * millisPerMinute
	millisPerDay    = 24 * millisPerHour
	millisPerWeek   = 7 * millisPerDay
)

// ParseDuration returns the number of milliseconds in value. Accepted forms
// are a plain integer (milliseconds) and ISO-8601 durations of fixed length:
// PnW, PnD, PnDTnHnMnS with optional fractional seconds. Years and months
// are rejected since their length depends on the calendar.
func ParseDuration(value string) (int64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}

	if isInteger(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, value, err)
		}
		return ms, nil
	}

	ms, err := parseISO(strings.ToUpper(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %s", ErrInvalidDuration, value, err.Error())
	}

	return ms, nil
}

func isInteger(s string) bool {
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// designator order inside an ISO duration, each may appear once
const (
	rankWeek = iota + 1
	rankDay
	rankHour
	rankMinute
	rankSecond
)

func parseISO(s string) (int64, error) {
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	if len(s) < 2 || s[0] != 'P' {
		return 0, errors.New("expected P prefix")
	}
	s = s[1:]

	var total int64
	inTime := false
	lastRank := 0
	components := 0

	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, errors.New("repeated T")
			}
			inTime = true
			s = s[1:]
			if s == "" {
				return 0, errors.New("T without time components")
			}
			continue
		}

		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.' || s[end] == ',') {
			end++
		}
		if end == 0 {
			return 0, fmt.Errorf("expected number at %q", s)
		}
		if end == len(s) {
			return 0, fmt.Errorf("number %q has no designator", s)
		}

		number := s[:end]
		designator := s[end]
		s = s[end+1:]

		rank, unit, err := designatorUnit(designator, inTime)
		if err != nil {
			return 0, err
		}
		if rank <= lastRank {
			return 0, fmt.Errorf("designator %c out of order", designator)
		}
		lastRank = rank

		value, err := componentMillis(number, unit, rank == rankSecond)
		if err != nil {
			return 0, err
		}

		if total > math.MaxInt64-value {
			return 0, errors.New("overflow")
		}
		total += value
		components++
	}

	if components == 0 {
		return 0, errors.New("no components")
	}

	if negative {
		total = -total
	}

	return total, nil
}

func designatorUnit(designator byte, inTime bool) (rank int, unit int64, err error) {
	if !inTime {
		switch designator {
		case 'W':
			return rankWeek, millisPerWeek, nil
		case 'D':
			return rankDay, millisPerDay, nil
		case 'Y', 'M':
			return 0, 0, fmt.Errorf("calendar designator %c has no fixed length", designator)
		}
	} else {
		switch designator {
		case 'H':
			return rankHour, millisPerHour, nil
		case 'M':
			return rankMinute, millisPerMinute, nil
		case 'S':
			return rankSecond, millisPerSecond, nil
		}
	}

	return 0, 0, fmt.Errorf("unknown designator %c", designator)
}

// componentMillis converts "12" or "1.5" into milliseconds of unit. Only
// seconds take a fraction, digits past the millisecond are dropped.
func componentMillis(number string, unit int64, fractionAllowed bool) (int64, error) {
	number = strings.ReplaceAll(number, ",", ".")

	whole, fraction, hasFraction := strings.Cut(number, ".")
	if hasFraction && !fractionAllowed {
		return 0, fmt.Errorf("fraction %q only allowed for seconds", number)
	}
	if whole == "" || strings.Contains(fraction, ".") || (hasFraction && fraction == "") {
		return 0, fmt.Errorf("malformed number %q", number)
	}

	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64/unit {
		return 0, errors.New("overflow")
	}

	result := n * unit

	if hasFraction {
		digits := (fraction + "000")[:3]
		ms, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, err
		}
		if result > math.MaxInt64-ms {
			return 0, errors.New("overflow")
		}
		result += ms
	}

	return result, nil
}
