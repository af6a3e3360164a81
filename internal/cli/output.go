package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ansi holds the escape sequences used for terminal output. Colors are
// dropped automatically when stdout is not a terminal or --json is set.
type ansi string

const (
	ansiReset  ansi = "\033[0m"
	ansiRed    ansi = "\033[31m"
	ansiGreen  ansi = "\033[32m"
	ansiYellow ansi = "\033[33m"
	ansiCyan   ansi = "\033[36m"
	ansiBold   ansi = "\033[1m"
	ansiDim    ansi = "\033[2m"
)

// Output renders command results as colored text or JSON.
type Output struct {
	w     io.Writer
	json  bool
	color bool
}

// NewOutput builds an Output from the command's flags and writer.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		w:     cmd.OutOrStdout(),
		json:  jsonMode,
		color: !jsonMode && stdoutIsTerminal(),
	}
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// IsJSON reports whether --json output was requested.
func (o *Output) IsJSON() bool { return o.json }

// JSON writes data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Printf writes a formatted message without styling.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format, args...)
}

// Println writes a line without styling.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.w, args...)
}

// Success writes a green line.
func (o *Output) Success(format string, args ...interface{}) { o.line(ansiGreen, format, args...) }

// Error writes a red line.
func (o *Output) Error(format string, args ...interface{}) { o.line(ansiRed, format, args...) }

// Warning writes a yellow line.
func (o *Output) Warning(format string, args ...interface{}) { o.line(ansiYellow, format, args...) }

// Info writes a cyan line.
func (o *Output) Info(format string, args ...interface{}) { o.line(ansiCyan, format, args...) }

// Bold writes a bold line.
func (o *Output) Bold(format string, args ...interface{}) { o.line(ansiBold, format, args...) }

// Dim writes a dimmed line.
func (o *Output) Dim(format string, args ...interface{}) { o.line(ansiDim, format, args...) }

func (o *Output) line(color ansi, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.color {
		fmt.Fprintf(o.w, "%s%s%s\n", color, msg, ansiReset)
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// Green returns text wrapped in green, for inline use in tables.
func (o *Output) Green(text string) string { return o.paint(ansiGreen, text) }

// Red returns text wrapped in red.
func (o *Output) Red(text string) string { return o.paint(ansiRed, text) }

// Yellow returns text wrapped in yellow.
func (o *Output) Yellow(text string) string { return o.paint(ansiYellow, text) }

func (o *Output) paint(color ansi, text string) string {
	if !o.color {
		return text
	}
	return string(color) + text + string(ansiReset)
}
