package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/orm"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (no match, duplicate key, flush error)
	ExitCommandError = 2 // Command error (bad flags, unreadable schema, database not found)
)

// Error codes reported in the JSON envelope.
const (
	ErrCodeGeneric   = "E001" // Generic/unknown error
	ErrCodeSchema    = "E002" // Schema file could not be loaded
	ErrCodeDatabase  = "E003" // Database could not be opened or written
	ErrCodeArgument  = "E004" // Bad --where, --order or field assignment
	ErrCodeNotFound  = "E005" // No record matched
	ErrCodeDuplicate = "E006" // Duplicate key
	ErrCodeRecord    = "E007" // Unknown record type
)

// ExitError is an error carrying the process exit code and the envelope
// error code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	ErrCode string // Envelope code, ErrCodeGeneric when empty
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code, deriving the envelope code
// from the error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, ErrCode: errorCode(err), Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ErrCodeGeneric
	case errors.Is(err, meta.ErrUnknownRecord):
		return ErrCodeRecord
	case orm.IsNotFound(err):
		return ErrCodeNotFound
	case orm.IsDuplicateKey(err):
		return ErrCodeDuplicate
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostic output, defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Texter is implemented by payloads with their own text rendering.
type Texter interface {
	Text() string
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if t, ok := data.(Texter); ok {
		_, err := io.WriteString(f.Writer, t.Text())
		return err
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it as an
// ExitError so the process exits with its code. In text mode the error is
// left to the caller to print.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitFailure, "command failed", err)
	}
	if f.Format == "json" {
		code := exitErr.ErrCode
		if code == "" {
			code = ErrCodeGeneric
		}
		if encErr := f.Error(code, exitErr.Error(), nil); encErr != nil {
			return encErr
		}
	}
	return exitErr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
