package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mpryc/nbp-mcp-server/internal/nbp"
)

const (
	DefaultTable = "a"
	MinCount     = 1
	MaxCount     = nbp.MaxLastCount
)

type Args struct {
	Code  string
	Table string
	Date  *time.Time
	Start time.Time
	End   time.Time
	Count int
}

// Validate checks raw JSON-decoded arguments against the tool's declared arguments.
// Missing optional arguments get their defaults; unknown keys are ignored.
func (s Spec) Validate(arguments map[string]any) (Args, error) {
	var args Args
	for _, arg := range s.Args {
		raw, ok := arguments[arg.Name]
		if ok && isBlank(raw) {
			ok = false
		}
		if !ok {
			if arg.Required {
				return Args{}, invalidArgument("%s is required", arg.Name)
			}
			if arg.Kind == ArgTable {
				args.Table = DefaultTable
			}
			continue
		}

		switch arg.Kind {
		case ArgCurrency:
			code, err := ValidateCode(raw)
			if err != nil {
				return Args{}, err
			}
			args.Code = code
		case ArgTable:
			table, err := ValidateTable(raw)
			if err != nil {
				return Args{}, err
			}
			args.Table = table
		case ArgDate, ArgStartDate, ArgEndDate:
			day, err := ValidateDate(arg.Name, raw)
			if err != nil {
				return Args{}, err
			}
			switch arg.Kind {
			case ArgDate:
				args.Date = &day
			case ArgStartDate:
				args.Start = day
			case ArgEndDate:
				args.End = day
			}
		case ArgCount:
			count, err := ValidateCount(raw)
			if err != nil {
				return Args{}, err
			}
			args.Count = count
		}
	}

	return args, nil
}

// ValidateCode accepts a three letter alphabetic code in any case.
func ValidateCode(raw any) (string, error) {
	value, ok := raw.(string)
	if !ok {
		return "", invalidArgument("code must be a string")
	}
	code := strings.TrimSpace(value)
	if len(code) != 3 {
		return "", invalidArgument("invalid currency code %q: expected 3 letters (e.g. USD, EUR)", value)
	}
	// Checked before upper-casing: ToUpper folds some non-ASCII letters into A-Z.
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return "", invalidArgument("invalid currency code %q: expected 3 letters (e.g. USD, EUR)", value)
		}
	}

	return strings.ToUpper(code), nil
}

func ValidateTable(raw any) (string, error) {
	value, ok := raw.(string)
	if !ok {
		return "", invalidArgument("table must be a string")
	}
	table := strings.ToLower(strings.TrimSpace(value))
	switch table {
	case "a", "b", "c":
		return table, nil
	}

	return "", invalidArgument("invalid table %q: expected A, B or C", value)
}

// ValidateDate parses a YYYY-MM-DD calendar date, rejecting impossible days.
func ValidateDate(name string, raw any) (time.Time, error) {
	value, ok := raw.(string)
	if !ok {
		return time.Time{}, invalidArgument("%s must be a string in YYYY-MM-DD format", name)
	}
	value = strings.TrimSpace(value)
	day, err := time.Parse(nbp.DateLayout, value)
	if err != nil || len(value) != len(nbp.DateLayout) {
		return time.Time{}, invalidArgument("invalid %s %q: expected a real date in YYYY-MM-DD format", name, value)
	}

	return day, nil
}

// ValidateCount accepts an integral number in [MinCount, MaxCount]. Integral
// numeric strings are tolerated; fractions and booleans are not.
func ValidateCount(raw any) (int, error) {
	var (
		count int64
		valid bool
	)
	switch v := raw.(type) {
	case int:
		count, valid = int64(v), true
	case int64:
		count, valid = v, true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1e12 {
			count, valid = int64(v), true
		}
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			count, valid = parsed, true
		} else if f, err := v.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e12 {
			count, valid = int64(f), true
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			count, valid = parsed, true
		}
	}

	if !valid {
		return 0, invalidArgument("count must be an integer between %d and %d", MinCount, MaxCount)
	}
	if count < MinCount || count > MaxCount {
		return 0, invalidArgument("count %d is out of range: expected %d to %d", count, MinCount, MaxCount)
	}

	return int(count), nil
}

func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}

	return false
}
