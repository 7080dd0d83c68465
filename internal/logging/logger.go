// Package logging provides a shared logger and log utilities to be used in
// all internal packages.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	L *zap.Logger        = zap.L()
	S *zap.SugaredLogger = zap.S()
)

// Initialize the global logger. Use a console encoder when attached to a
// terminal, and a JSON encoder otherwise. Higher values of v enable more
// verbose logging.
func Initialize(v int) {
	atom := zap.NewAtomicLevelAt(zapcore.Level(-v))
	setGlobals(newLogger(atom, defaultWriter()))
}

// SetLevel of the global logger from a level name [error, warn, info, debug].
func SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	setGlobals(newLogger(zap.NewAtomicLevelAt(lvl), defaultWriter()))
	return nil
}

func defaultWriter() zapcore.WriteSyncer {
	if isTerminal() {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.Lock(os.Stdout)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func newLogger(lvl zapcore.LevelEnabler, w zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if isTerminal() {
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey: "message",

			LevelKey:    "level",
			EncodeLevel: zapcore.CapitalColorLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.ISO8601TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		})
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	core := zapcore.NewCore(encoder, w, lvl)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func setGlobals(logger *zap.Logger) {
	L = logger
	S = logger.Sugar()
	zap.ReplaceGlobals(logger)
}

// PatchLogger sets the global logger to write to w for the duration of a
// test, and restores the previous logger during test cleanup.
func PatchLogger(t TestingT, w io.Writer) {
	origL, origS := L, S
	writer := zapcore.AddSync(w)
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		writer,
		zapcore.DebugLevel)
	L = zap.New(core)
	S = L.Sugar()

	t.Cleanup(func() {
		L, S = origL, origS
	})
}

// TestingT is the subset of testing.T used by PatchLogger.
type TestingT interface {
	Cleanup(func())
}

func Debugf(template string, args ...interface{}) {
	S.Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	S.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	S.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	S.Errorf(template, args...)
}
