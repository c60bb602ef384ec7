package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
)

// Exit codes. An unreadable input source is distinguished from an input that
// was read but contained no usable events.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitSourceUnavailable = 2
	ExitNoData            = 3
)

// exitError carries a specific process exit code with an error.
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

func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}

func fatal(err error) {
	msg := err.Error()
	if useColor(os.Stderr) {
		msg = color.New(color.FgRed).Sprint(msg)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(exitCodeFor(err))
}

func useColor(f *os.File) bool {
	if viper.GetBool("no-color") {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() {
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
}
