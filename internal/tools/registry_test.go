package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var names []string
	for _, spec := range registry.Specs() {
		names = append(names, spec.Name)
	}

	assert.Equal(t, []string{
		GetCurrencyRate,
		GetExchangeTable,
		GetCurrencyRateHistory,
		GetCurrencyRateLastN,
		GetGoldPrice,
		GetGoldPriceHistory,
		GetGoldPriceLastN,
	}, names)
}

func TestRegistryUnknownTool(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry().Lookup("get_bitcoin_price")
	requireKind(t, err, KindUnknownTool)
}

func TestRegistrySpecsIsCopy(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	specs := registry.Specs()
	specs[0].Name = "mutated"

	spec, err := registry.Lookup(GetCurrencyRate)
	require.NoError(t, err)
	assert.Equal(t, GetCurrencyRate, spec.Name)
}

func TestInputSchema(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()

	spec, err := registry.Lookup(GetCurrencyRateLastN)
	require.NoError(t, err)
	schema := spec.InputSchema()

	assert.Equal(t, "object", schema.Type)
	assert.ElementsMatch(t, []string{"code", "count"}, schema.Required)
	require.Contains(t, schema.Properties, "count")
	count := schema.Properties["count"]
	assert.Equal(t, "integer", count.Type)
	require.NotNil(t, count.Minimum)
	require.NotNil(t, count.Maximum)
	assert.Equal(t, float64(MinCount), *count.Minimum)
	assert.Equal(t, float64(MaxCount), *count.Maximum)

	gold, err := registry.Lookup(GetGoldPrice)
	require.NoError(t, err)
	goldSchema := gold.InputSchema()
	assert.Empty(t, goldSchema.Required)
	assert.Contains(t, goldSchema.Properties, "date")
	assert.NotContains(t, goldSchema.Properties, "table")
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, CanTransition(StateReceived, StateValidating))
	assert.True(t, CanTransition(StateFormatting, StateCompleted))
	assert.True(t, CanTransition(StateFetching, StateFailed))
	assert.False(t, CanTransition(StateReceived, StateFetching))
	assert.False(t, CanTransition(StateFetching, StateValidating))
	assert.False(t, CanTransition(StateCompleted, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateFailed))
}
