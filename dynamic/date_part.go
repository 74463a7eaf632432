package dynamic

import (
	"fmt"
	"strings"
	"time"

	"github.com/dot5enko/mvstore/schema"
)

type Granularity uint8

const (
	Year Granularity = iota + 1
	Quarter
	Month
	WeekOfYear
	DayOfYear
	DayOfMonth
	DayOfWeek
	Hour
	Minute
	Second
)

var granularityNames = map[Granularity]string{
	Year:       "year",
	Quarter:    "quarter",
	Month:      "month",
	WeekOfYear: "week",
	DayOfYear:  "day_of_year",
	DayOfMonth: "day",
	DayOfWeek:  "day_of_week",
	Hour:       "hour",
	Minute:     "minute",
	Second:     "second",
}

// aliases accepted by ParseGranularity on top of the canonical names
var granularityAliases = map[string]Granularity{
	"week_of_year": WeekOfYear,
	"day_of_month": DayOfMonth,
	"dayofmonth":   DayOfMonth,
	"dayofweek":    DayOfWeek,
	"dayofyear":    DayOfYear,
	"weekofyear":   WeekOfYear,
}

func (g Granularity) String() string {
	if name, ok := granularityNames[g]; ok {
		return name
	}
	return fmt.Sprintf("granularity(%d)", uint8(g))
}

func (g Granularity) Valid() bool {
	_, ok := granularityNames[g]
	return ok
}

func ParseGranularity(name string) (Granularity, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	for g, n := range granularityNames {
		if n == normalized {
			return g, nil
		}
	}
	if g, ok := granularityAliases[normalized]; ok {
		return g, nil
	}

	return 0, fmt.Errorf("%w: unknown date part %q", ErrInvalidTransform, name)
}

// DatePart extracts a calendar component as an integer part index. Month,
// quarter and day indices start at 1, day of week runs 1 (Sunday) to 7, week
// is the ISO week. Int64 sources are epoch milliseconds.
type DatePart struct {
	Granularity Granularity

	// nil means UTC
	Location *time.Location
}

func (d DatePart) Validate() error {
	if !d.Granularity.Valid() {
		return fmt.Errorf("%w: unknown date part %s", ErrInvalidTransform, d.Granularity)
	}
	return nil
}

func (d DatePart) Name() string {
	return d.Granularity.String()
}

func (d DatePart) ResultType() schema.FieldType {
	return schema.Int64FieldType
}

func (d DatePart) Accepts(source schema.FieldType) bool {
	return source == schema.TimestampFieldType || source == schema.Int64FieldType
}

func (d DatePart) Apply(v any) (any, error) {
	var ts time.Time

	switch typed := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		ts = typed
	case int64:
		ts = time.UnixMilli(typed)
	default:
		return nil, unsupportedValue(d, v)
	}

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	ts = ts.In(loc)

	switch d.Granularity {
	case Year:
		return int64(ts.Year()), nil
	case Quarter:
		return int64((ts.Month()-1)/3 + 1), nil
	case Month:
		return int64(ts.Month()), nil
	case WeekOfYear:
		_, week := ts.ISOWeek()
		return int64(week), nil
	case DayOfYear:
		return int64(ts.YearDay()), nil
	case DayOfMonth:
		return int64(ts.Day()), nil
	case DayOfWeek:
		return int64(ts.Weekday()) + 1, nil
	case Hour:
		return int64(ts.Hour()), nil
	case Minute:
		return int64(ts.Minute()), nil
	case Second:
		return int64(ts.Second()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransform, d.Granularity)
	}
}
