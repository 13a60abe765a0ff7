// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the palace CLI and
// engine. It defines PalaceError, a type that carries what went wrong, why,
// and how to fix it, plus consistent exit codes per the error taxonomy in
// the engine design (StoreError, IngestError, ConfigError, NotInitialized).
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for different error categories.
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitStore      = 2
	ExitNetwork    = 3
	ExitInput      = 4
	ExitPermission = 5
	ExitNotFound   = 6
	ExitInternal   = 10
)

// PalaceError represents an error with structured context for end users.
//
//   - Message: what went wrong
//   - Cause: why it happened
//   - Fix: how to fix it
//
// It carries an exit code for consistent CLI exit behavior and optionally
// wraps an underlying error for errors.Is/As compatibility.
type PalaceError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

func (e *PalaceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PalaceError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error (ConfigError in the taxonomy).
func NewConfigError(msg, cause, fix string, err error) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitConfig, Err: err}
}

// NewStoreError creates a graph-store error (StoreError: ConnectionError,
// SchemaError, IntegrityError).
func NewStoreError(msg, cause, fix string, err error) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitStore, Err: err}
}

// NewIngestError creates a per-file ingestion error. Callers should treat
// these as non-fatal: catch, log, and roll into the ingest summary.
func NewIngestError(msg, cause, fix string, err error) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInput, Err: err}
}

func NewNetworkError(msg, cause, fix string, err error) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitNetwork, Err: err}
}

func NewInputError(msg, cause, fix string) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInput}
}

func NewPermissionError(msg, cause, fix string, err error) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitPermission, Err: err}
}

// NewNotFoundError creates a resource-not-found error (also used for
// FileNotFound in the context command).
func NewNotFoundError(msg, cause, fix string) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitNotFound}
}

// NewNotInitializedError signals a workspace missing expected store files.
func NewNotInitializedError(msg, cause, fix string) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitNotFound}
}

func NewInternalError(msg, cause, fix string, err error) *PalaceError {
	return &PalaceError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInternal, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display, honoring
// NO_COLOR and the noColor parameter.
func (e *PalaceError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON is the machine-readable form of a PalaceError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *PalaceError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// FatalError prints the error and exits with the appropriate code. It never
// returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if pe, ok := err.(*PalaceError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(pe.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, pe.Format(false))
		}
		os.Exit(pe.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
