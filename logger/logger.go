// Package logger is the engine's structured logger: a small surface
// (Debug/Info/Warn/Error/Success, plus Banner/Section for the CLI
// tester) backed by a package-level zap.SugaredLogger.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = buildLogger()
	sugar = base.Sugar()
)

func buildLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("logger: failed to build zap logger: %v", err))
	}
	return l
}

// SetLevel adjusts the minimum level the package-level logger emits.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Debug logs a debug-level message with structured fields, e.g.
// logger.Debug("dropped fragment", "addr", addr, "seq", seq).
func Debug(msg string, keysAndValues ...interface{}) {
	sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info-level message.
func Info(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warn-level message.
func Warn(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error-level message.
func Error(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Success logs an info-level message tagged as a success, for the
// handful of call sites (connection established, bind succeeded) that
// want to stand out from routine info lines.
func Success(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, append([]interface{}{"result", "success"}, keysAndValues...)...)
}

// Sync flushes any buffered log entries; callers should defer it after
// constructing the process-wide logger.
func Sync() error {
	return base.Sync()
}

// Section prints a section header to stdout for the CLI tester. It is
// presentation, not a log line, so it bypasses zap.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-57s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the CLI tester's startup banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                             ║
║   ██████╗ ███████╗██╗     ██╗ █████╗ ███╗   ██╗████████╗    ║
║   ██╔══██╗██╔════╝██║     ██║██╔══██╗████╗  ██║╚══██╔══╝    ║
║   ██████╔╝█████╗  ██║     ██║███████║██╔██╗ ██║   ██║       ║
║   ██╔══██╗██╔══╝  ██║     ██║██╔══██║██║╚██╗██║   ██║       ║
║   ██║  ██║███████╗███████╗██║██║  ██║██║ ╚████║   ██║       ║
║   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝   ╚═╝       ║
║                                                             ║
║              %-45s ║
║                    version %-10s           ║
║                                                             ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, title, version)
}
