package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Banner printed before interactive runs
const Banner = `
  ┌────────────────────────────────────────────┐
  │ bhascraper · british horseracing api fetch │
  └────────────────────────────────────────────┘
`

var (
	// Out receives everything printed by this package. fetch points it at
	// stderr when documents are streamed to stdout.
	Out io.Writer = os.Stdout

	// Quiet suppresses informational output. Errors and warnings still print.
	Quiet bool

	colorEnabled = term.IsTerminal(int(os.Stdout.Fd()))
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// SetColor forces ANSI colors on or off
func SetColor(enabled bool) {
	colorEnabled = enabled
}

func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintBanner prints the banner in cyan
func PrintBanner() {
	if Quiet {
		return
	}
	fmt.Fprint(Out, Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if Quiet {
		return
	}
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	if Quiet {
		return
	}
	fmt.Fprintf(Out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if Quiet {
		return
	}
	fmt.Fprintln(Out, Magenta(msg))
}
