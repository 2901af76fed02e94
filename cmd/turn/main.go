// Package main is the stdin/stdout turn runner.
//
// It reads one {"domain": "...", "input": {...}} request as JSON on stdin,
// runs it through an in-memory kernel and writes the turn result as JSON on
// stdout. Failures are written as {"error": true, "code": ..., "message": ...}
// with exit code 1.
//
// Usage:
//
//	echo '{"domain":"retry","input":{...}}' | selene-turn
//	selene-turn --config selene.yaml < request.json
//	selene-turn version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/selene/coreengine/config"
	"github.com/jeeves-cluster-organization/selene/coreengine/kernel"
	"github.com/jeeves-cluster-organization/selene/coreengine/observability"
)

// Version information
const (
	Version   = "0.1.0"
	BuildTime = "2026-10-19"
)

// Error codes written on failure.
const (
	codeReadError     = "read_error"
	codeParseError    = "parse_error"
	codeConfigError   = "config_error"
	codeUnknownDomain = "unknown_domain"
	codeInvalidInput  = "invalid_input"
	codeTurnError     = "turn_error"
)

// request is the stdin document.
type request struct {
	Domain string          `json:"domain"`
	Input  json.RawMessage `json:"input"`
}

// exitError carries an already reported failure out of cobra.
type exitError struct{}

func (exitError) Error() string { return "turn failed" }

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, exitError{}) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "selene-turn",
		Short:         "Run one capability turn from stdin",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd.Context(), configPath, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"version":    Version,
				"build_time": BuildTime,
				"go_version": runtime.Version(),
			})
		},
	})
	return rootCmd
}

func runTurn(ctx context.Context, configPath string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fail(stdout, codeConfigError, err.Error())
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return fail(stdout, codeReadError, err.Error())
	}
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return fail(stdout, codeParseError, fmt.Sprintf("Invalid JSON: %s", err.Error()))
	}
	if req.Domain == "" {
		return fail(stdout, codeParseError, "domain is required")
	}
	if len(req.Input) == 0 {
		return fail(stdout, codeParseError, "input is required")
	}

	logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "json"}, stderr)
	k, err := kernel.New(logger.Component("kernel"), cfg, nil)
	if err != nil {
		return fail(stdout, codeConfigError, err.Error())
	}
	defer k.Close()

	res, err := k.Dispatch(ctx, req.Domain, req.Input)
	if err != nil {
		var inputErr *kernel.InputError
		switch {
		case errors.Is(err, kernel.ErrUnknownDomain):
			return fail(stdout, codeUnknownDomain, err.Error())
		case errors.As(err, &inputErr):
			return fail(stdout, codeInvalidInput, err.Error())
		default:
			return fail(stdout, codeTurnError, err.Error())
		}
	}
	return writeJSON(stdout, res)
}

// writeJSON writes v as one line of JSON.
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// fail writes an error document and returns exitError.
func fail(w io.Writer, code, message string) error {
	if err := writeJSON(w, map[string]any{
		"error":   true,
		"code":    code,
		"message": message,
	}); err != nil {
		return err
	}
	return exitError{}
}
