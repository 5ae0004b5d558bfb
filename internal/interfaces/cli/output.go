package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for syncctl commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and reported failure
	ExitCommandError = 2 // bad flags, config or wiring
)

// ExitError carries the process exit code out of a command
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure when none is set
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope printed by every command
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OutputFormatter prints results as JSON or text
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print writes data with status ok or failed. text is the human rendering.
func (f *OutputFormatter) Print(ok bool, data any, errMsg string, text func(w io.Writer)) error {
	if f.Format == "json" {
		status := "ok"
		if !ok {
			status = "failed"
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(Response{Status: status, Data: data, Error: errMsg})
	}

	text(f.Writer)
	if !ok && errMsg != "" {
		fmt.Fprintf(f.Writer, "error: %s\n", errMsg)
	}
	return nil
}
