// Package runlog writes the human-readable log of one batch run: a header,
// one block per address and a closing summary. It is a separate zap core
// backed by a lumberjack file so that a long run cannot fill the disk.
package runlog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Suffix is appended to the input name to form the log file name.
const Suffix = "_geocodelog.txt"

// Log is an open run log. The zero value is not usable; use Open or Nop.
type Log struct {
	*zap.Logger

	ID   string
	Path string

	out *lumberjack.Logger
}

// PathFor returns the run log path for an input file: the input without its
// extension plus Suffix.
func PathFor(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + Suffix
}

// Open truncates path and starts a new run log there. Warnings and errors are
// also passed on to the global logger.
func Open(path string) (*Log, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(err, "runlog: truncate %s", path)
	}

	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 3,
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout(time.DateTime),
		ConsoleSeparator: "  ",
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(out), zapcore.DebugLevel)
	if global, err := zapcore.NewIncreaseLevelCore(zap.L().Core(), zapcore.WarnLevel); err == nil {
		core = zapcore.NewTee(core, global)
	}

	l := &Log{
		Logger: zap.New(core),
		ID:     uuid.NewString(),
		Path:   path,
		out:    out,
	}
	return l, nil
}

// Nop returns a Log that discards everything.
func Nop() *Log {
	return &Log{Logger: zap.NewNop()}
}

// Start writes the run header.
func (l *Log) Start(input string) {
	l.Info("geocoding started", zap.String("run_id", l.ID), zap.String("input", input))
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	if l.out == nil {
		return nil
	}
	_ = l.Sync()
	if err := l.out.Close(); err != nil {
		return eris.Wrap(err, "runlog: close")
	}
	return nil
}
