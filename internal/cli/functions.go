package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watzon/lambdev/internal/functions"
)

const functionsTableWidth = 90

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List discovered functions",
	Long: `List the functions lambdev would run, with the command that starts each one.

Functions are discovered from the functions directory and from
functions.definitions in the config file.`,
	RunE: runFunctions,
}

func init() {
	rootCmd.AddCommand(functionsCmd)
}

func runFunctions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog := functions.NewCatalog(&cfg.Functions)
	if err := catalog.Discover(); err != nil {
		return fmt.Errorf("discovering functions: %w", err)
	}

	printFunctions(cmd.OutOrStdout(), catalog.List(), catalog.Root())
	return nil
}

func printFunctions(out io.Writer, fns []*functions.FunctionDef, root string) {
	if len(fns) == 0 {
		fmt.Fprintf(out, "No functions found in %s.\n", root)
		return
	}

	fmt.Fprintf(out, "%-20s %-11s %-8s %s\n", "NAME", "SOURCE", "TIMEOUT", "COMMAND")
	fmt.Fprintln(out, strings.Repeat("-", functionsTableWidth))

	for _, fn := range fns {
		timeout := "default"
		if fn.Timeout > 0 {
			timeout = fmt.Sprintf("%ds", fn.Timeout)
		}
		fmt.Fprintf(out, "%-20s %-11s %-8s %s\n", fn.Name, fn.Source, timeout, strings.Join(fn.Command, " "))
	}
}
