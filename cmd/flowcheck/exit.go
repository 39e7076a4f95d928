package main

import (
	"errors"
	"fmt"
	"io"
)

// Exit codes for the flowcheck CLI. Anything that is not a clean pass exits 1.
const (
	ExitSuccess = 0
	ExitFailed  = 1
)

// ExitError is an error that carries an exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// newFailure wraps cause with a message and the failure exit code.
func newFailure(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailed, Message: msg, Cause: cause}
}

// errInvalid signals a run whose findings were already printed.
var errInvalid = &ExitError{Code: ExitFailed}

// exitCode prints err to w (unless it is silent) and returns the process exit code.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(w, StatusError.Render(symbolError)+" "+msg)
		}
		if exitErr.Code == ExitSuccess {
			return ExitFailed
		}
		return exitErr.Code
	}

	fmt.Fprintln(w, StatusError.Render(symbolError)+" "+err.Error())
	return ExitFailed
}
