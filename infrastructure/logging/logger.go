package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"selfheal/infrastructure/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger: text (or JSON) on stderr, plus a rotated
// JSON file when logger.log_file is set. The returned closer flushes the file.
func New(cfg config.LoggerConfig) (*logrus.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LoggerConfig, out io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid logger.level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text", "console":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("invalid logger.format %q", cfg.Format)
	}

	if cfg.LogFile == "" {
		return logger, nopCloser{}, nil
	}

	// lumberjack handles rotation and is safe for concurrent writes
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	logger.AddHook(newFileHook(file, logrus.AllLevels[:level+1]))
	return logger, file, nil
}

// fileHook writes every entry as JSON to a second writer
type fileHook struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func newFileHook(w io.Writer, levels []logrus.Level) *fileHook {
	return &fileHook{writer: w, formatter: &logrus.JSONFormatter{}, levels: levels}
}

func (h *fileHook) Levels() []logrus.Level { return h.levels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
