package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpryc/nbp-mcp-server/internal/output"
	"github.com/mpryc/nbp-mcp-server/internal/tools"
	"github.com/spf13/cobra"
)

func newCallCommand(s *settings) *cobra.Command {
	var (
		rawArgs  string
		argsFile string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Run one tool call against the NBP API and print the result",
		Example: `  nbp-mcp call get_currency_rate --args '{"code":"USD"}'
  nbp-mcp call get_gold_price_history --args '{"start_date":"2024-01-01","end_date":"2024-06-30"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			arguments, err := loadArguments(rawArgs, argsFile)
			if err != nil {
				return err
			}

			a, err := newApp(*s)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.dispatcher.Call(cmd.Context(), tools.Call{Name: positional[0], Arguments: arguments})
			return printCallResult(cmd, format, result)
		},
	}

	cmd.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&argsFile, "args-file", "", "Read tool arguments from a JSON file")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func loadArguments(rawJSON, filePath string) (map[string]any, error) {
	if filePath != "" {
		contents, err := os.ReadFile(filepath.Clean(filePath))
		if err != nil {
			return nil, fmt.Errorf("read arguments file: %w", err)
		}
		rawJSON = string(contents)
	}

	args, err := decodeArguments([]byte(rawJSON))
	if err != nil {
		return nil, &tools.Error{Kind: tools.KindInvalidArgument, Message: err.Error()}
	}
	return args, nil
}

func printCallResult(cmd *cobra.Command, format string, result tools.Result) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		if result.Err != nil {
			return result.Err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		return nil
	case "json":
		if err := output.PrintJSON(cmd.OutOrStdout(), callPayload(result)); err != nil {
			return err
		}
		if result.Err != nil {
			return result.Err
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q (use text or json)", format)
	}
}

func callPayload(result tools.Result) map[string]any {
	payload := map[string]any{
		"call_id":    result.CallID,
		"tool":       result.Tool,
		"state":      result.State.String(),
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}
	if result.Err != nil {
		payload["failed_at"] = result.FailedAt.String()
		payload["error"] = map[string]any{
			"kind":    string(result.Err.Kind),
			"message": result.Err.Message,
		}
		return payload
	}

	payload["text"] = result.Text
	if len(result.Notes) > 0 {
		payload["notes"] = result.Notes
	}
	return payload
}

func newToolsCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs := tools.NewRegistry().Specs()

			table := output.Table{Columns: []string{"NAME", "FETCH", "ARGUMENTS"}}
			listed := make([]map[string]any, 0, len(specs))
			for _, spec := range specs {
				table.Append(spec.Name, spec.Fetch.String(), describeArgs(spec.Args))
				listed = append(listed, map[string]any{
					"name":         spec.Name,
					"description":  spec.Description,
					"fetch":        spec.Fetch.String(),
					"input_schema": spec.InputSchema(),
				})
			}

			return output.Print(cmd.OutOrStdout(), format, table, map[string]any{"tools": listed})
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, csv or json")
	return cmd
}

// describeArgs renders "code, date?, table?" with optional arguments marked.
func describeArgs(args []tools.ArgSpec) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg.Required {
			parts = append(parts, arg.Name)
		} else {
			parts = append(parts, arg.Name+"?")
		}
	}
	return strings.Join(parts, ", ")
}
