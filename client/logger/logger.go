package logger

import (
	"bufio"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger and the optional log file
type Logger struct {
	*zap.SugaredLogger
	file   *os.File
	writer *bufio.Writer
}

// Close properly flushes and closes the log file
func (l *Logger) Close() error {
	if err := l.Flush(); err != nil {
		return err
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Flush() error {
	// stdout sync fails on some terminals, only the file sink matters here
	_ = l.Sync()
	if l.writer != nil {
		return l.writer.Flush()
	}
	return nil
}

func ParseLevel(level string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// NewLogger writes to stdout and, when filename is not empty, to that file too.
func NewLogger(filename string, level zapcore.Level) (*Logger, error) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000")
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	var (
		logFile        *os.File
		bufferedWriter *bufio.Writer
	)
	if filename != "" {
		var err error
		logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return nil, err
		}
		bufferedWriter = bufio.NewWriter(logFile)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(bufferedWriter)), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	return &Logger{SugaredLogger: logger.Sugar(), file: logFile, writer: bufferedWriter}, nil
}

// With returns a child logger carrying the given key/value pairs. The child
// shares the parent's file, only the parent should be closed.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// NewNop returns a logger that discards everything, used by tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}
