package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mpryc/nbp-mcp-server/internal/nbp"
	"github.com/mpryc/nbp-mcp-server/internal/output"
	"github.com/mpryc/nbp-mcp-server/internal/usage"
	"github.com/spf13/cobra"
)

func newStatsCommand(s *settings) *cobra.Command {
	var (
		from        string
		to          string
		granularity string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded tool usage from the usage ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := resolveTimeRange(from, to, time.Now().UTC())
			if err != nil {
				return err
			}

			ledger, err := openLedger(s.Usage)
			if err != nil {
				return err
			}
			defer ledger.Close()

			rows, err := ledger.Summary(start, end, granularity)
			if err != nil {
				return err
			}

			return output.Print(cmd.OutOrStdout(), format, usageTable(rows), usagePayload(ledger, start, end, rows))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Start of the timeframe (RFC3339 or YYYY-MM-DD, default 24h ago)")
	cmd.Flags().StringVar(&to, "to", "", "End of the timeframe (RFC3339 or YYYY-MM-DD, default now)")
	cmd.Flags().StringVar(&granularity, "granularity", "", "Bucket size, e.g. 1h or 1d")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, csv or json")

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the usage ledger table or indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := openLedger(s.Usage)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := ledger.Setup(); err != nil {
				return fmt.Errorf("setup %s ledger: %w", ledger.Driver(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "usage ledger ready (%s: %s)\n", ledger.Driver(), ledger.Target())
			return nil
		},
	}

	cmd.AddCommand(setupCmd)
	return cmd
}

func openLedger(o usage.Options) (*usage.Ledger, error) {
	if !usage.Enabled(o.Driver) {
		return nil, errors.New("usage ledger is disabled; set --usage-driver, NBP_USAGE_DRIVER or usage.driver")
	}
	return usage.Open(o)
}

// resolveTimeRange defaults to the last 24 hours. A bare date as --to
// covers that whole day.
func resolveTimeRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if strings.TrimSpace(to) != "" {
		parsed, dateOnly, err := parseTimestamp("to", to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
		if dateOnly {
			end = parsed.Add(24*time.Hour - time.Second)
		}
	}

	start := end.Add(-24 * time.Hour)
	if strings.TrimSpace(from) != "" {
		parsed, _, err := parseTimestamp("from", from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to")
	}
	return start, end, nil
}

func parseTimestamp(label, value string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, false, nil
	}
	if parsed, err := time.Parse(nbp.DateLayout, value); err == nil {
		return parsed, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD (e.g. 2024-01-02T15:04:05Z)", label)
}

func usageTable(rows []usage.Row) output.Table {
	table := output.Table{Columns: []string{"AT", "TOOL", "CALLS", "OUTCOMES"}}
	for _, row := range rows {
		table.Append(row.At.Format(time.RFC3339), row.Tool, strconv.FormatInt(row.Calls, 10), formatOutcomes(row.Outcomes))
	}
	return table
}

func usagePayload(ledger *usage.Ledger, from, to time.Time, rows []usage.Row) map[string]any {
	entries := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, map[string]any{
			"at":       row.At.Format(time.RFC3339),
			"tool":     row.Tool,
			"calls":    row.Calls,
			"outcomes": row.Outcomes,
		})
	}

	return map[string]any{
		"driver": ledger.Driver(),
		"target": ledger.Target(),
		"timeframe": map[string]string{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		},
		"rows": entries,
	}
}

// formatOutcomes renders "not_found=1 ok=3" with keys sorted.
func formatOutcomes(outcomes map[string]int64) string {
	keys := make([]string, 0, len(outcomes))
	for key := range outcomes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, outcomes[key]))
	}
	return strings.Join(parts, " ")
}
