package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes
const (
	exitOK          = 0
	exitConfigError = 1
	exitAcquisition = 2
)

// exitError carries the process exit code of a failed run
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return exitConfigError
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(exitCode(err))
	}
}
