// Package logging builds the process logger and per-poll logging scopes.
package logging

import (
	"bytes"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger
func New(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// Scope is a logger bound to a single poll. Every record is written to the
// base logger and also captured, at debug level, so that the log of a
// failed poll can be returned with its error.
type Scope struct {
	logger *zap.Logger
	buf    *captureBuffer
	once   sync.Once
	out    string
}

// NewScope derives a scoped logger from base
func NewScope(base *zap.Logger, fields ...zap.Field) *Scope {
	if base == nil {
		base = zap.NewNop()
	}
	buf := &captureBuffer{}
	capture := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)
	logger := base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, capture)
	})).With(fields...)
	return &Scope{logger: logger, buf: buf}
}

// Logger returns the scoped logger
func (s *Scope) Logger() *zap.Logger {
	return s.logger
}

// Close flushes the scope and returns the captured log. Later calls return
// the same text.
func (s *Scope) Close() string {
	s.once.Do(func() {
		_ = s.logger.Sync()
		s.out = s.buf.String()
	})
	return s.out
}

type captureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
