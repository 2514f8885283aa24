// Package logger wraps zap with a small, dependency-friendly surface.
package logger

import (
    "fmt"
    "os"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// Field aliases so callers never import zap directly.
type Field = zapcore.Field

var (
    String   = zap.String
    Int      = zap.Int
    Int64    = zap.Int64
    Float64  = zap.Float64
    Bool     = zap.Bool
    Duration = zap.Duration
    Error    = zap.Error
    Any      = zap.Any
)

type Logger struct {
    *zap.Logger
}

// New builds a logger. Level is one of debug/info/warn/error; format is
// json or console.
func New(level, format string) (*Logger, error) {
    lvl := zapcore.InfoLevel
    switch strings.ToLower(level) {
    case "debug":
        lvl = zapcore.DebugLevel
    case "warn":
        lvl = zapcore.WarnLevel
    case "error":
        lvl = zapcore.ErrorLevel
    }
    cfg := zap.NewProductionConfig()
    cfg.Level = zap.NewAtomicLevelAt(lvl)
    if strings.ToLower(format) == "console" {
        cfg.Encoding = "console"
        cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
        cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
    }
    zl, err := cfg.Build(zap.AddCallerSkip(0))
    if err != nil {
        return nil, err
    }
    return &Logger{Logger: zl}, nil
}

// NewNop returns a logger that discards everything; handy in tests.
func NewNop() *Logger { return &Logger{Logger: zap.NewNop()} }

// Fallback prints to stderr for errors raised before the logger exists.
func Fallback(format string, args ...any) {
    fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger { return &Logger{Logger: l.Logger.Named(name)} }
