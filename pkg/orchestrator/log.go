// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu  sync.Mutex
	logger = zap.NewNop()
	phase  string
)

// SetLogger installs the logger used by the package. nil restores the
// no-op logger.
func SetLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

func currentLogger() *zap.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	return logger
}

// setPhase prefixes subsequent log lines with the operation name.
func setPhase(p string) {
	logMu.Lock()
	phase = p
	logMu.Unlock()
}

func clearPhase() { setPhase("") }

func logf(format string, args ...any) {
	logMu.Lock()
	l, p := logger, phase
	logMu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if p != "" {
		msg = "[" + p + "] " + msg
	}
	l.Sugar().Info(msg)
}

func warnf(format string, args ...any) {
	logMu.Lock()
	l, p := logger, phase
	logMu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if p != "" {
		msg = "[" + p + "] " + msg
	}
	l.Sugar().Warn(msg)
}

// openLogSink tees the package logger into a file under dir until the
// returned function is called.
func openLogSink(dir, name string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	fileCore := zapcore.NewCore(enc, zapcore.AddSync(f), zap.DebugLevel)

	logMu.Lock()
	prev := logger
	logger = prev.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
	logMu.Unlock()

	return func() {
		logMu.Lock()
		logger = prev
		logMu.Unlock()
		_ = fileCore.Sync()
		f.Close()
	}, nil
}
