package nbp

import "encoding/json"

// Rate is one entry of a rate series or one row of an exchange table.
// Series entries carry No/EffectiveDate; table rows carry Currency/Code.
type Rate struct {
	No            string      `json:"no,omitempty"`
	EffectiveDate string      `json:"effectiveDate,omitempty"`
	TradingDate   string      `json:"tradingDate,omitempty"`
	Currency      string      `json:"currency,omitempty"`
	Country       string      `json:"country,omitempty"`
	Symbol        any         `json:"symbol,omitempty"`
	Code          string      `json:"code,omitempty"`
	Mid           json.Number `json:"mid,omitempty"`
	Bid           json.Number `json:"bid,omitempty"`
	Ask           json.Number `json:"ask,omitempty"`
}

// HasPrice reports whether any of mid, bid or ask is present.
func (r Rate) HasPrice() bool {
	return r.Mid != "" || r.Bid != "" || r.Ask != ""
}

type RateSeries struct {
	Table    string `json:"table"`
	Currency string `json:"currency"`
	Code     string `json:"code"`
	Rates    []Rate `json:"rates"`
}

type ExchangeTable struct {
	Table         string `json:"table"`
	No            string `json:"no"`
	TradingDate   string `json:"tradingDate,omitempty"`
	EffectiveDate string `json:"effectiveDate"`
	Rates         []Rate `json:"rates"`
}

// GoldPrice is the NBP price of 1g of gold (fineness 1000) in PLN.
type GoldPrice struct {
	Date  string      `json:"data"`
	Price json.Number `json:"cena"`
}
