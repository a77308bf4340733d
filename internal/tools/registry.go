package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	GetCurrencyRate        = "get_currency_rate"
	GetExchangeTable       = "get_exchange_table"
	GetCurrencyRateHistory = "get_currency_rate_history"
	GetCurrencyRateLastN   = "get_currency_rate_last_n"
	GetGoldPrice           = "get_gold_price"
	GetGoldPriceHistory    = "get_gold_price_history"
	GetGoldPriceLastN      = "get_gold_price_last_n"
)

type ArgKind int

const (
	ArgCurrency ArgKind = iota
	ArgTable
	ArgDate
	ArgStartDate
	ArgEndDate
	ArgCount
)

type ArgSpec struct {
	Name        string
	Kind        ArgKind
	Required    bool
	Description string
}

// Instrument selects the upstream resource a tool reads.
type Instrument int

const (
	InstrumentCurrency Instrument = iota
	InstrumentTable
	InstrumentGold
)

// Fetch selects how the upstream request is issued.
type Fetch int

const (
	// FetchDirect issues one request for the current value or a single date.
	FetchDirect Fetch = iota
	// FetchRange splits the range into windows and merges them.
	FetchRange
	// FetchLast issues one last/{n} request.
	FetchLast
)

func (f Fetch) String() string {
	switch f {
	case FetchDirect:
		return "direct"
	case FetchRange:
		return "range"
	case FetchLast:
		return "last"
	default:
		return "unknown"
	}
}

// Spec binds a tool name to its arguments, fetch strategy and rendering.
type Spec struct {
	Name        string
	Description string
	Args        []ArgSpec
	Instrument  Instrument
	Fetch       Fetch
}

// Registry is built once and only read afterwards.
type Registry struct {
	specs []Spec
	index map[string]int
}

var (
	codeArg = ArgSpec{Name: "code", Kind: ArgCurrency, Required: true,
		Description: "Three-letter currency code, e.g. USD, EUR, CHF (case-insensitive)."}
	tableArg = ArgSpec{Name: "table", Kind: ArgTable,
		Description: "NBP table: A (average rates of common currencies), B (average rates of other currencies), C (buy/sell rates). Defaults to A."}
	dateArg = ArgSpec{Name: "date", Kind: ArgDate,
		Description: "Date in YYYY-MM-DD format. Omit for the most recent publication."}
	startArg = ArgSpec{Name: "start_date", Kind: ArgStartDate, Required: true,
		Description: "First day of the range, YYYY-MM-DD."}
	endArg = ArgSpec{Name: "end_date", Kind: ArgEndDate, Required: true,
		Description: "Last day of the range (inclusive), YYYY-MM-DD."}
	countArg = ArgSpec{Name: "count", Kind: ArgCount, Required: true,
		Description: fmt.Sprintf("Number of most recent publications to return (%d-%d).", MinCount, MaxCount)}
)

func NewRegistry() *Registry {
	specs := []Spec{
		{
			Name:        GetCurrencyRate,
			Description: "Get the NBP exchange rate of a currency against PLN, for today or a given date.",
			Args:        []ArgSpec{codeArg, dateArg, tableArg},
			Instrument:  InstrumentCurrency,
			Fetch:       FetchDirect,
		},
		{
			Name:        GetExchangeTable,
			Description: "Get a complete NBP exchange rate table (A, B or C), for today or a given date.",
			Args:        []ArgSpec{dateArg, tableArg},
			Instrument:  InstrumentTable,
			Fetch:       FetchDirect,
		},
		{
			Name:        GetCurrencyRateHistory,
			Description: "Get NBP exchange rates of a currency for a date range. Ranges longer than 93 days are fetched in several requests.",
			Args:        []ArgSpec{codeArg, startArg, endArg, tableArg},
			Instrument:  InstrumentCurrency,
			Fetch:       FetchRange,
		},
		{
			Name:        GetCurrencyRateLastN,
			Description: "Get the last N published NBP exchange rates of a currency.",
			Args:        []ArgSpec{codeArg, countArg, tableArg},
			Instrument:  InstrumentCurrency,
			Fetch:       FetchLast,
		},
		{
			Name:        GetGoldPrice,
			Description: "Get the NBP price of 1g of gold (fineness 1000) in PLN, for today or a given date.",
			Args:        []ArgSpec{dateArg},
			Instrument:  InstrumentGold,
			Fetch:       FetchDirect,
		},
		{
			Name:        GetGoldPriceHistory,
			Description: "Get NBP gold prices for a date range. Ranges longer than 93 days are fetched in several requests.",
			Args:        []ArgSpec{startArg, endArg},
			Instrument:  InstrumentGold,
			Fetch:       FetchRange,
		},
		{
			Name:        GetGoldPriceLastN,
			Description: "Get the last N published NBP gold prices.",
			Args:        []ArgSpec{countArg},
			Instrument:  InstrumentGold,
			Fetch:       FetchLast,
		},
	}

	index := make(map[string]int, len(specs))
	for i, spec := range specs {
		index[spec.Name] = i
	}

	return &Registry{specs: specs, index: index}
}

func (r *Registry) Lookup(name string) (Spec, error) {
	i, ok := r.index[name]
	if !ok {
		return Spec{}, &Error{Kind: KindUnknownTool, Message: fmt.Sprintf("unknown tool %q", name)}
	}

	return r.specs[i], nil
}

// Specs returns the registered tools in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// InputSchema describes the tool arguments as a JSON object schema.
func (s Spec) InputSchema() *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.Args)),
	}
	for _, arg := range s.Args {
		schema.Properties[arg.Name] = argSchema(arg)
		if arg.Required {
			schema.Required = append(schema.Required, arg.Name)
		}
	}

	return schema
}

func argSchema(arg ArgSpec) *jsonschema.Schema {
	switch arg.Kind {
	case ArgCurrency:
		return &jsonschema.Schema{Type: "string", Description: arg.Description, Pattern: "^\\s*[A-Za-z]{3}\\s*$"}
	case ArgTable:
		return &jsonschema.Schema{
			Type:        "string",
			Description: arg.Description,
			Pattern:     "^\\s*[AaBbCc]\\s*$",
			Default:     json.RawMessage(`"a"`),
		}
	case ArgCount:
		minimum, maximum := float64(MinCount), float64(MaxCount)
		return &jsonschema.Schema{Type: "integer", Description: arg.Description, Minimum: &minimum, Maximum: &maximum}
	default:
		return &jsonschema.Schema{Type: "string", Description: arg.Description, Pattern: "^\\s*\\d{4}-\\d{2}-\\d{2}\\s*$"}
	}
}
