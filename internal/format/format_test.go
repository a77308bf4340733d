package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpryc/nbp-mcp-server/internal/nbp"
)

func TestQuote(t *testing.T) {
	t.Parallel()

	text, err := Quote(&nbp.RateSeries{
		Table:    "C",
		Currency: "euro",
		Code:     "EUR",
		Rates: []nbp.Rate{{
			No:            "045/C/NBP/2024",
			EffectiveDate: "2024-03-05",
			TradingDate:   "2024-03-04",
			Bid:           "4.2773",
			Ask:           "4.3637",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"Currency: euro",
		"Code: EUR",
		"Table: C",
		"Table Number: 045/C/NBP/2024",
		"Effective Date: 2024-03-05",
		"Trading Date: 2024-03-04",
		"Bid Rate: 4.2773 PLN",
		"Ask Rate: 4.3637 PLN",
	}, "\n"), text)
}

func TestQuotePreservesUpstreamDigits(t *testing.T) {
	t.Parallel()

	text, err := Quote(&nbp.RateSeries{
		Table: "A", Currency: "jen (Japonia)", Code: "JPY",
		Rates: []nbp.Rate{{EffectiveDate: "2024-01-02", Mid: "0.027810"}},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Mid Rate: 0.027810 PLN")
}

func TestQuoteMissingFields(t *testing.T) {
	t.Parallel()

	cases := map[string]*nbp.RateSeries{
		"nil":      nil,
		"currency": {Table: "A", Code: "USD", Rates: []nbp.Rate{{EffectiveDate: "2024-01-02", Mid: "1"}}},
		"rates":    {Table: "A", Code: "USD", Currency: "dolar"},
		"date":     {Table: "A", Code: "USD", Currency: "dolar", Rates: []nbp.Rate{{Mid: "1"}}},
		"price":    {Table: "A", Code: "USD", Currency: "dolar", Rates: []nbp.Rate{{EffectiveDate: "2024-01-02"}}},
	}

	for name, series := range cases {
		_, err := Quote(series)
		var missingErr *MissingFieldError
		assert.True(t, errors.As(err, &missingErr), "%s: expected MissingFieldError, got %v", name, err)
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	text, err := Table(nbp.ExchangeTable{
		Table:         "A",
		No:            "001/A/NBP/2024",
		EffectiveDate: "2024-01-02",
		Rates: []nbp.Rate{
			{Currency: "dolar amerykański", Code: "USD", Mid: "3.9432"},
			{Currency: "euro", Code: "EUR", Mid: "4.3434"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, text, "Table: A\nTable Number: 001/A/NBP/2024\nEffective Date: 2024-01-02")
	assert.Contains(t, text, "Rates (2):")
	assert.Contains(t, text, "USD (dolar amerykański): Mid: 3.9432 PLN")
	assert.Contains(t, text, "EUR (euro): Mid: 4.3434 PLN")
}

func TestTableMissingRateCode(t *testing.T) {
	t.Parallel()

	_, err := Table(nbp.ExchangeTable{
		Table: "B", No: "001/B/NBP/2024", EffectiveDate: "2024-01-03",
		Rates: []nbp.Rate{{Currency: "bat (Tajlandia)", Mid: "0.11"}},
	})
	var missingErr *MissingFieldError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, "rates[0].code", missingErr.Field)
}

func TestRateSeriesSortsChronologically(t *testing.T) {
	t.Parallel()

	text, err := RateSeries(&nbp.RateSeries{
		Table: "A", Currency: "frank szwajcarski", Code: "CHF",
		Rates: []nbp.Rate{
			{EffectiveDate: "2024-01-04", Mid: "4.65"},
			{EffectiveDate: "2024-01-02", Mid: "4.63"},
			{EffectiveDate: "2024-01-03", Mid: "4.64"},
		},
	}, "Historical Rates")
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Historical Rates (3):", lines[4])
	assert.Equal(t, "Date: 2024-01-02 | Mid: 4.63 PLN", lines[5])
	assert.Equal(t, "Date: 2024-01-03 | Mid: 4.64 PLN", lines[6])
	assert.Equal(t, "Date: 2024-01-04 | Mid: 4.65 PLN", lines[7])
}

func TestRateSeriesKeepsTradingDate(t *testing.T) {
	t.Parallel()

	text, err := RateSeries(&nbp.RateSeries{
		Table: "C", Currency: "dolar amerykański", Code: "USD",
		Rates: []nbp.Rate{{
			No:            "001/C/NBP/2024",
			EffectiveDate: "2024-01-03",
			TradingDate:   "2024-01-02",
			Bid:           "3.9",
			Ask:           "4.0",
		}},
	}, "Last 1 Rates")
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	assert.Equal(t, "Date: 2024-01-03 | Trading Date: 2024-01-02 | Bid: 3.9 PLN | Ask: 4.0 PLN | Table Number: 001/C/NBP/2024", lines[len(lines)-1])
}

func TestTableRowCountryAndSymbol(t *testing.T) {
	t.Parallel()

	text, err := Table(nbp.ExchangeTable{
		Table: "A", No: "001/A/NBP/2004", EffectiveDate: "2004-01-02",
		Rates: []nbp.Rate{{Country: "USA", Symbol: "840", Currency: "dolar", Code: "USD", Mid: "3.7"}},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "USD (dolar): Mid: 3.7 PLN, Country: USA, Symbol: 840")
}

func TestGold(t *testing.T) {
	t.Parallel()

	text, err := GoldPrice(nbp.GoldPrice{Date: "2024-01-02", Price: "245.67"})
	require.NoError(t, err)
	assert.Equal(t, "Date: 2024-01-02\nPrice: 245.67 PLN/g", text)

	_, err = GoldPrice(nbp.GoldPrice{Date: "2024-01-02"})
	var missingErr *MissingFieldError
	assert.ErrorAs(t, err, &missingErr)

	text, err = GoldPrices([]nbp.GoldPrice{
		{Date: "2024-01-03", Price: "246.10"},
		{Date: "2024-01-02", Price: "245.67"},
	}, "Last 2 Gold Prices")
	require.NoError(t, err)
	assert.Equal(t, "Last 2 Gold Prices (2):\nDate: 2024-01-02 | Price: 245.67 PLN/g\nDate: 2024-01-03 | Price: 246.10 PLN/g", text)
}

func TestWithNotes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "body", WithNotes("body", nil))
	assert.Equal(t, "body\n\nNotes:\n- one\n- two", WithNotes("body", []string{"one", "two"}))
}
