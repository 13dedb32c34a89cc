// Package logging configures the process-wide slog logger.
package logging

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kscape/xbee-go/internal/config"
)

// console is where records go when no log file is configured. Stdout stays
// free for command output.
var console = func() io.Writer { return os.Stderr }

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Manager owns the logger configuration and the optional rotating log file.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	file   *lumberjack.Logger
}

func NewManager() *Manager {
	return &Manager{
		logger: slog.New(newHandler("text", console(), slog.LevelInfo)),
	}
}

// Configure rebuilds the logger and installs it as the slog default.
func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeFileLocked(); err != nil {
		return fmt.Errorf("close previous log file: %w", err)
	}

	out := console()
	if cfg.LogToFile {
		if strings.TrimSpace(filePath) == "" {
			return errors.New("log file path is empty")
		}
		m.file = newLogFile(filePath, cfg)
		out = newFanoutWriter(out, m.file)
	}

	m.logger = slog.New(newHandler(cfg.Format, out, level))
	slog.SetDefault(m.logger)

	return nil
}

func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeFileLocked()
}

func (m *Manager) closeFileLocked() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil

	return err
}

// newLogFile returns a size-rotated log file. The file is opened lazily on
// the first record.
func newLogFile(path string, cfg config.LoggingConfig) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = config.DefaultLogMaxSizeMB
	}

	return &lumberjack.Logger{
		Filename:   filepath.Clean(path),
		MaxSize:    maxSize,
		MaxBackups: max(cfg.MaxBackups, 0),
		LocalTime:  true,
	}
}

func newHandler(format string, w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: hexBytes}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// hexBytes renders []byte attributes as spaced upper-case hex ("7E 00 04")
// instead of slog's default quoted string.
func hexBytes(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	b, ok := a.Value.Any().([]byte)
	if !ok {
		return a
	}
	if len(b) == 0 {
		return slog.String(a.Key, "")
	}
	encoded := strings.ToUpper(hex.EncodeToString(b))
	var sb strings.Builder
	sb.Grow(len(encoded) + len(b) - 1)
	for i := 0; i < len(encoded); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(encoded[i : i+2])
	}

	return slog.String(a.Key, sb.String())
}

func parseLevel(raw string) (slog.Leveler, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %q", raw)
	}

	return level, nil
}

// fanoutWriter copies every record to all destinations. A record counts as
// written when at least one destination took it whole.
type fanoutWriter struct {
	writers []io.Writer
}

func newFanoutWriter(writers ...io.Writer) io.Writer {
	fw := &fanoutWriter{writers: make([]io.Writer, 0, len(writers))}
	for _, w := range writers {
		if w != nil {
			fw.writers = append(fw.writers, w)
		}
	}

	return fw
}

func (w *fanoutWriter) Write(p []byte) (int, error) {
	var firstErr error
	delivered := len(w.writers) == 0
	for _, dst := range w.writers {
		n, err := dst.Write(p)
		if err == nil && n != len(p) {
			err = io.ErrShortWrite
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered = true
	}
	if !delivered {
		return 0, firstErr
	}

	return len(p), nil
}
