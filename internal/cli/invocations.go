package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watzon/lambdev/internal/database"
	"github.com/watzon/lambdev/internal/executions"
)

// Table formatting constants.
const (
	invocationsTableWidth = 110
	functionColumnWidth   = 20
	errorColumnWidth      = 30
)

var (
	invocationsFunction string
	invocationsStatus   string
	invocationsLimit    int
	invocationsJSON     bool
)

var invocationsCmd = &cobra.Command{
	Use:   "invocations",
	Short: "List recorded invocations",
	Long: `List invocations recorded in the history database, newest first.

Examples:
  lambdev invocations
  lambdev invocations --function hello --status error
  lambdev invocations --limit 5 --json`,
	RunE: runInvocations,
}

func init() {
	invocationsCmd.Flags().StringVar(&invocationsFunction, "function", "", "Only show this function")
	invocationsCmd.Flags().StringVar(&invocationsStatus, "status", "", "Only show this status (pending, success, error, timed_out, canceled)")
	invocationsCmd.Flags().IntVarP(&invocationsLimit, "limit", "n", 20, "Maximum number of records")
	invocationsCmd.Flags().BoolVar(&invocationsJSON, "json", false, "Print records as JSON")

	rootCmd.AddCommand(invocationsCmd)
}

func runInvocations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.History)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := executions.NewStore(db).List(ctx, executions.Filter{
		Function: invocationsFunction,
		Status:   executions.Status(invocationsStatus),
		Limit:    invocationsLimit,
	})
	if err != nil {
		return fmt.Errorf("listing invocations: %w", err)
	}

	if invocationsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	printInvocations(cmd.OutOrStdout(), records)
	return nil
}

func printInvocations(out io.Writer, records []*executions.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No invocations recorded.")
		return
	}

	fmt.Fprintf(out, "%-36s  %-20s  %-9s  %-10s  %-19s  %8s  %s\n",
		"ID", "FUNCTION", "TRIGGER", "STATUS", "STARTED", "DURATION", "ERROR")
	fmt.Fprintln(out, strings.Repeat("-", invocationsTableWidth))

	for _, r := range records {
		duration := "-"
		if r.CompletedAt != nil {
			duration = fmt.Sprintf("%dms", r.DurationMs)
		}

		errText := r.ErrorType
		if r.ErrorMessage != "" {
			if errText != "" {
				errText += ": "
			}
			errText += r.ErrorMessage
		}

		fmt.Fprintf(out, "%-36s  %-20s  %-9s  %-10s  %-19s  %8s  %s\n",
			r.ID,
			clip(r.Function, functionColumnWidth),
			r.Trigger,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			clip(errText, errorColumnWidth),
		)
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
