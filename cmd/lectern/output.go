package main

import (
	"fmt"
	"os"
)

// ANSI SGR codes for terminal output.
const (
	sgrBold   = 1
	sgrRed    = 31
	sgrGreen  = 32
	sgrYellow = 33
	sgrCyan   = 36
)

func paint(code int, text string) string {
	if noColor {
		return text
	}
	return fmt.Sprintf("\033[%dm%s\033[0m", code, text)
}

// notef writes a prefixed, colored status line to stderr.
func notef(code int, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(code, prefix+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(sgrGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notef(sgrRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notef(sgrYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { notef(sgrCyan, "→", format, args...) }

// printStatus renders an indented "label: value" line with the label in bold.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(sgrBold, label+":"), fmt.Sprintf(format, args...))
}
