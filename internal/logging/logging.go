// Package logging sets up the process logger and the colored progress lines
// printed while buzzy works.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

// New builds a console logger without timestamps. Verbosity 0 shows
// warnings and errors, 1 adds info and 2 or more adds debug output.
func New(verbosity int, w io.Writer) *zap.Logger {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

// Step prints a progress line.
func Step(format string, a ...any) {
	colArrow.Print("-> ")
	colSuccess.Printf(format+"\n", a...)
}

// Note prints an informational line.
func Note(format string, a ...any) {
	colArrow.Print("-> ")
	colNote.Printf(format+"\n", a...)
}

// Warn prints a warning line.
func Warn(format string, a ...any) {
	colArrow.Print("-> ")
	colWarn.Printf(format+"\n", a...)
}

// Info prints a plain labelled value, as used by "buzzy info".
func Info(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", colInfo.Sprintf("%-12s", label+":"), value)
}

// Error writes a user-facing failure: the message and, indented below it,
// the detail block.
func Error(w io.Writer, msg, detail string) {
	fmt.Fprintln(w, colError.Sprintf("error: %s", msg))
	detail = strings.TrimRight(detail, "\n")
	if detail == "" {
		return
	}
	for _, line := range strings.Split(detail, "\n") {
		fmt.Fprintln(w, "  "+line)
	}
}
