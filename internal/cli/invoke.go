package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/lambdev/internal/functions"
)

var (
	invokeData     string
	invokeDataFile string
	invokeAsync    bool
	invokeServer   string
	invokeTimeout  time.Duration
)

// ErrFunctionFailed is returned when the invoked function reports an error.
var ErrFunctionFailed = errors.New("function returned an error")

var invokeCmd = &cobra.Command{
	Use:   "invoke <function>",
	Short: "Invoke a function on a running server",
	Long: `Invoke a function through the Lambda Invoke API of a running lambdev server.

The function's result is written to stdout. The command exits with an error
when the function fails.

Examples:
  lambdev invoke hello
  lambdev invoke hello --data '{"name":"world"}'
  lambdev invoke hello --data-file event.json
  lambdev invoke hello --async`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeData, "data", "d", "", "JSON payload")
	invokeCmd.Flags().StringVarP(&invokeDataFile, "data-file", "f", "", "Read the payload from a file (- for stdin)")
	invokeCmd.Flags().BoolVar(&invokeAsync, "async", false, "Queue the invocation without waiting for the result")
	invokeCmd.Flags().StringVar(&invokeServer, "server", "", "Server URL (default: from config)")
	invokeCmd.Flags().DurationVar(&invokeTimeout, "timeout", 0, "Give up after this long (default: no limit)")

	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := functions.ValidateName(name); err != nil {
		return err
	}

	payload, err := readPayload(cmd.InOrStdin())
	if err != nil {
		return err
	}

	base := invokeServer
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		base = "http://" + cfg.Server.RuntimeAddress()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, invokeTimeout)
		defer cancel()
	}

	result, err := invokeFunction(ctx, http.DefaultClient, base, name, payload, invokeAsync)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if invokeAsync {
		fmt.Fprintf(out, "Queued invocation %s\n", result.RequestID)
		return nil
	}

	_, _ = out.Write(result.Body)
	if len(result.Body) > 0 && result.Body[len(result.Body)-1] != '\n' {
		fmt.Fprintln(out)
	}

	if result.FunctionError != "" {
		return fmt.Errorf("%w (%s)", ErrFunctionFailed, result.FunctionError)
	}
	return nil
}

func readPayload(stdin io.Reader) ([]byte, error) {
	switch {
	case invokeData != "" && invokeDataFile != "":
		return nil, errors.New("--data and --data-file are mutually exclusive")
	case invokeData != "":
		return []byte(invokeData), nil
	case invokeDataFile == "-":
		return io.ReadAll(stdin)
	case invokeDataFile != "":
		data, err := os.ReadFile(invokeDataFile)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

// InvokeResult is the outcome of an Invoke API call.
type InvokeResult struct {
	StatusCode    int
	RequestID     string
	FunctionError string
	Body          []byte
}

// invokeFunction calls the Invoke API of the server at base.
func invokeFunction(ctx context.Context, client *http.Client, base, name string, payload []byte, async bool) (*InvokeResult, error) {
	endpoint := base + "/2015-03-31/functions/" + url.PathEscape(name) + "/invocations"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if async {
		req.Header.Set("X-Amz-Invocation-Type", "Event")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	result := &InvokeResult{
		StatusCode:    resp.StatusCode,
		RequestID:     resp.Header.Get("X-Amzn-RequestId"),
		FunctionError: resp.Header.Get("X-Amz-Function-Error"),
		Body:          body,
	}

	// Function errors arrive with 200; anything else outside 2xx is a service error.
	if resp.StatusCode >= http.StatusMultipleChoices && result.FunctionError == "" {
		errType := resp.Header.Get("X-Amzn-ErrorType")
		if errType == "" {
			errType = strconv.Itoa(resp.StatusCode)
		}
		return nil, fmt.Errorf("invoking %s: %s: %s", name, errType, bytes.TrimSpace(body))
	}

	return result, nil
}

