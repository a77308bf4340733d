package nbp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	// MaxLastCount is the upper bound NBP accepts for the last/{n} form.
	MaxLastCount = 255
)

type Resource string

const (
	ResourceRates  Resource = "rates"
	ResourceTables Resource = "tables"
	ResourceGold   Resource = "gold"
)

type Shape int

const (
	ShapeCurrent Shape = iota
	ShapeDate
	ShapeRange
	ShapeLast
)

func (s Shape) String() string {
	switch s {
	case ShapeCurrent:
		return "current"
	case ShapeDate:
		return "date"
	case ShapeRange:
		return "range"
	case ShapeLast:
		return "last"
	default:
		return "unknown"
	}
}

// Query describes one upstream request. Table and Code are expected in the
// canonical form produced by the tool validator (lowercase table, uppercase code).
type Query struct {
	Resource Resource
	Shape    Shape
	Table    string
	Code     string
	Date     time.Time
	Start    time.Time
	End      time.Time
	Count    int
}

// Path renders the query relative to the API base, always with a trailing slash.
func (q Query) Path() (string, error) {
	var parts []string
	switch q.Resource {
	case ResourceRates:
		if q.Table == "" || q.Code == "" {
			return "", fmt.Errorf("rates query requires table and code")
		}
		parts = []string{"exchangerates", "rates", url.PathEscape(q.Table), url.PathEscape(q.Code)}
	case ResourceTables:
		if q.Table == "" {
			return "", fmt.Errorf("tables query requires table")
		}
		parts = []string{"exchangerates", "tables", url.PathEscape(q.Table)}
	case ResourceGold:
		parts = []string{"cenyzlota"}
	default:
		return "", fmt.Errorf("unknown resource %q", q.Resource)
	}

	switch q.Shape {
	case ShapeCurrent:
	case ShapeDate:
		if q.Date.IsZero() {
			return "", fmt.Errorf("date query requires a date")
		}
		parts = append(parts, q.Date.Format(DateLayout))
	case ShapeRange:
		if q.Start.IsZero() || q.End.IsZero() {
			return "", fmt.Errorf("range query requires start and end")
		}
		parts = append(parts, q.Start.Format(DateLayout), q.End.Format(DateLayout))
	case ShapeLast:
		if q.Count < 1 || q.Count > MaxLastCount {
			return "", fmt.Errorf("last query count must be between 1 and %d", MaxLastCount)
		}
		parts = append(parts, "last", strconv.Itoa(q.Count))
	default:
		return "", fmt.Errorf("unknown query shape %d", q.Shape)
	}

	return "/" + strings.Join(parts, "/") + "/", nil
}
