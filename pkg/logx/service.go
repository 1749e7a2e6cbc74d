package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultLogFile = "./winova.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Forward ForwardConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the sinks behind every Logger it hands out and can swap them
// at runtime.
type Service struct {
	mu   sync.Mutex
	file *os.File
	fwd  *forwarder

	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the Service with its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{fwd: newForwarder()}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// SetForward installs the forward target; nil drops forwarded lines.
func (s *Service) SetForward(fn ForwardFunc) { s.fwd.setTarget(fn) }

// Apply rebuilds the sinks from cfg. Loggers already handed out switch over
// on their next line.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	old := s.file
	s.file = nil
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}

	s.fwd.configure(cfg.Forward)
	if cfg.Forward.Enabled {
		sinks = append(sinks, s.fwd)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	if old != nil {
		_ = old.Close()
	}
}

// Close stops forwarding and closes the log file.
func (s *Service) Close() error {
	s.fwd.stop()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   consoleTimeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}
