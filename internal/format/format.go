// Package format renders NBP payloads as plain text for tool results.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpryc/nbp-mcp-server/internal/nbp"
)

const (
	currencyUnit = "PLN"
	goldUnit     = "PLN/g"
)

// MissingFieldError reports a payload without a field the renderer needs.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("upstream payload is missing %s", e.Field)
}

func missing(field string) error {
	return &MissingFieldError{Field: field}
}

// Quote renders the first entry of a single-currency series.
func Quote(series *nbp.RateSeries) (string, error) {
	if err := requireSeriesHeader(series); err != nil {
		return "", err
	}
	if len(series.Rates) == 0 {
		return "", missing("rates")
	}
	rate := series.Rates[0]
	if rate.EffectiveDate == "" {
		return "", missing("rates[0].effectiveDate")
	}
	if !rate.HasPrice() {
		return "", missing("rates[0].mid/bid/ask")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Currency: %s\n", series.Currency)
	fmt.Fprintf(&b, "Code: %s\n", series.Code)
	fmt.Fprintf(&b, "Table: %s\n", series.Table)
	if rate.No != "" {
		fmt.Fprintf(&b, "Table Number: %s\n", rate.No)
	}
	fmt.Fprintf(&b, "Effective Date: %s\n", rate.EffectiveDate)
	if rate.TradingDate != "" {
		fmt.Fprintf(&b, "Trading Date: %s\n", rate.TradingDate)
	}
	for _, line := range priceLines(rate) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func Table(table nbp.ExchangeTable) (string, error) {
	switch {
	case table.Table == "":
		return "", missing("table")
	case table.No == "":
		return "", missing("no")
	case table.EffectiveDate == "":
		return "", missing("effectiveDate")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", table.Table)
	fmt.Fprintf(&b, "Table Number: %s\n", table.No)
	fmt.Fprintf(&b, "Effective Date: %s\n", table.EffectiveDate)
	if table.TradingDate != "" {
		fmt.Fprintf(&b, "Trading Date: %s\n", table.TradingDate)
	}
	fmt.Fprintf(&b, "\nRates (%d):\n", len(table.Rates))

	for i, rate := range table.Rates {
		if rate.Code == "" {
			return "", missing(fmt.Sprintf("rates[%d].code", i))
		}
		if rate.Currency == "" {
			return "", missing(fmt.Sprintf("rates[%d].currency", i))
		}
		if !rate.HasPrice() {
			return "", missing(fmt.Sprintf("rates[%d].mid/bid/ask", i))
		}
		fields := priceFields(rate)
		if rate.Country != "" {
			fields = append(fields, "Country: "+rate.Country)
		}
		if rate.Symbol != nil {
			fields = append(fields, fmt.Sprintf("Symbol: %v", rate.Symbol))
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", rate.Code, rate.Currency, strings.Join(fields, ", "))
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func Tables(tables []nbp.ExchangeTable) (string, error) {
	if len(tables) == 0 {
		return "", missing("tables")
	}

	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		text, err := Table(table)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, "\n\n"), nil
}

// RateSeries renders a series under the given heading, oldest entry first.
func RateSeries(series *nbp.RateSeries, heading string) (string, error) {
	if err := requireSeriesHeader(series); err != nil {
		return "", err
	}

	rates := make([]nbp.Rate, len(series.Rates))
	copy(rates, series.Rates)
	for i, rate := range rates {
		if rate.EffectiveDate == "" {
			return "", missing(fmt.Sprintf("rates[%d].effectiveDate", i))
		}
		if !rate.HasPrice() {
			return "", missing(fmt.Sprintf("rates[%d].mid/bid/ask", i))
		}
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].EffectiveDate < rates[j].EffectiveDate
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Currency: %s\n", series.Currency)
	fmt.Fprintf(&b, "Code: %s\n", series.Code)
	fmt.Fprintf(&b, "Table: %s\n", series.Table)
	fmt.Fprintf(&b, "\n%s (%d):\n", heading, len(rates))
	for _, rate := range rates {
		fields := []string{"Date: " + rate.EffectiveDate}
		if rate.TradingDate != "" {
			fields = append(fields, "Trading Date: "+rate.TradingDate)
		}
		fields = append(fields, priceFields(rate)...)
		if rate.No != "" {
			fields = append(fields, "Table Number: "+rate.No)
		}
		b.WriteString(strings.Join(fields, " | "))
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func GoldPrice(price nbp.GoldPrice) (string, error) {
	if err := requireGold(price, "data", "cena"); err != nil {
		return "", err
	}

	return fmt.Sprintf("Date: %s\nPrice: %s %s", price.Date, price.Price, goldUnit), nil
}

func GoldPrices(prices []nbp.GoldPrice, heading string) (string, error) {
	sorted := make([]nbp.GoldPrice, len(prices))
	copy(sorted, prices)
	for i, price := range sorted {
		if err := requireGold(price, fmt.Sprintf("[%d].data", i), fmt.Sprintf("[%d].cena", i)); err != nil {
			return "", err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", heading, len(sorted))
	for _, price := range sorted {
		fmt.Fprintf(&b, "Date: %s | Price: %s %s\n", price.Date, price.Price, goldUnit)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func WithNotes(text string, notes []string) string {
	if len(notes) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nNotes:")
	for _, note := range notes {
		b.WriteString("\n- ")
		b.WriteString(note)
	}

	return b.String()
}

func requireSeriesHeader(series *nbp.RateSeries) error {
	switch {
	case series == nil:
		return missing("rates")
	case series.Currency == "":
		return missing("currency")
	case series.Code == "":
		return missing("code")
	case series.Table == "":
		return missing("table")
	}

	return nil
}

func requireGold(price nbp.GoldPrice, dateField, priceField string) error {
	if price.Date == "" {
		return missing(dateField)
	}
	if price.Price == "" {
		return missing(priceField)
	}

	return nil
}

func priceFields(rate nbp.Rate) []string {
	var fields []string
	if rate.Mid != "" {
		fields = append(fields, fmt.Sprintf("Mid: %s %s", rate.Mid, currencyUnit))
	}
	if rate.Bid != "" {
		fields = append(fields, fmt.Sprintf("Bid: %s %s", rate.Bid, currencyUnit))
	}
	if rate.Ask != "" {
		fields = append(fields, fmt.Sprintf("Ask: %s %s", rate.Ask, currencyUnit))
	}

	return fields
}

func priceLines(rate nbp.Rate) []string {
	var lines []string
	if rate.Mid != "" {
		lines = append(lines, fmt.Sprintf("Mid Rate: %s %s", rate.Mid, currencyUnit))
	}
	if rate.Bid != "" {
		lines = append(lines, fmt.Sprintf("Bid Rate: %s %s", rate.Bid, currencyUnit))
	}
	if rate.Ask != "" {
		lines = append(lines, fmt.Sprintf("Ask Rate: %s %s", rate.Ask, currencyUnit))
	}

	return lines
}
