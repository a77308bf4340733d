package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	table := Table{Columns: []string{"NAME", "ARGS"}}
	table.Append("get_gold_price", "date")
	table.Append("get_currency_rate_last_n", "code, count, table")
	return table
}

func TestPrintTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, sampleTable())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME                      ARGS", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], strings.Repeat("-", len("get_currency_rate_last_n"))+"  "))
	assert.Equal(t, "get_gold_price            date", lines[2])
	assert.Equal(t, "get_currency_rate_last_n  code, count, table", lines[3])
}

func TestPrintTableCountsRunes(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, Table{
		Columns: []string{"CURRENCY", "CODE"},
		Rows:    [][]string{{"złoty", "PLN"}, {"dolar amerykański", "USD"}},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "złoty              PLN", lines[2])
}

func TestPrintTableWithoutColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, Table{})
	assert.Empty(t, buf.String())
}

func TestPrintDispatchesOnFormat(t *testing.T) {
	var csvOut bytes.Buffer
	require.NoError(t, Print(&csvOut, "csv", sampleTable(), nil))
	assert.Equal(t, "NAME,ARGS\nget_gold_price,date\nget_currency_rate_last_n,\"code, count, table\"\n", csvOut.String())

	var jsonOut bytes.Buffer
	require.NoError(t, Print(&jsonOut, "JSON", sampleTable(), map[string]any{"tools": 7}))
	assert.JSONEq(t, `{"tools": 7}`, jsonOut.String())

	var tableOut bytes.Buffer
	require.NoError(t, Print(&tableOut, "", sampleTable(), nil))
	assert.Contains(t, tableOut.String(), "get_gold_price")

	assert.Error(t, Print(&bytes.Buffer{}, "yaml", sampleTable(), nil))
}
