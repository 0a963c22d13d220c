package testutils

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a development logger writing to w. Verbosity levels up to -level are enabled,
// e.g., -10 shows everything logged with V(10) or below.
func NewLogger(w io.Writer, level int) logr.Logger {
	encoder := zap.NewDevelopmentEncoderConfig()
	encoder.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoder), zapcore.AddSync(w), zapcore.Level(level))
	return zapr.NewLogger(zap.New(core, zap.Development(), zap.AddStacktrace(zapcore.Level(3))))
}
