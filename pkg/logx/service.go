package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "chainjobs/internal/transport"
)

const (
	defaultLogFile = "./chainjobs.log"
	outboxSize     = 256
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig controls the chat sink. Lines below MinLevel (default
// error) are not sent; at most RatePerSec lines per second are queued.
type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the active sinks. Apply replaces them without invalidating
// Loggers handed out earlier.
type Service struct {
	active atomic.Pointer[zerolog.Logger]

	mu   sync.Mutex
	file *os.File
	chat chatState

	sender kit.Sender
	outbox chan chatMessage
	start  sync.Once
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// chatState is guarded by Service.mu.
type chatState struct {
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

type chatMessage struct {
	to   kit.ChatTarget
	text string
}

// New applies cfg and returns the service with its root Logger. A nil
// sender keeps the chat sink silent.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{
		sender: sender,
		outbox: make(chan chatMessage, outboxSize),
	}
	s.chat.target.ThreadID = cfg.Telegram.ThreadID
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) current() zerolog.Logger {
	if zl := s.active.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{src: s} }

// SetTelegramTarget selects the chat for the Telegram sink. chatID 0 mutes
// it; threadID 0 keeps the current forum thread.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat.target.ChatID = chatID
	if threadID != 0 {
		s.chat.target.ThreadID = threadID
	}
}

// Close stops the chat worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f, stop := s.file, s.stop
	s.file, s.stop = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		s.wg.Wait()
	}
	if f == nil {
		return nil
	}
	return f.Close()
}

// Apply rebuilds the sink set from cfg. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rps := max(1, cfg.Telegram.RatePerSec)
	s.chat.minLevel = parseLevel(cfg.Telegram.MinLevel, zerolog.ErrorLevel)
	s.chat.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Telegram.ThreadID != 0 {
		s.chat.target.ThreadID = cfg.Telegram.ThreadID
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	if w := s.reopenFileLocked(cfg.File); w != nil {
		sinks = append(sinks, w)
	}
	if cfg.Telegram.Enabled {
		s.startChatLocked()
		sinks = append(sinks, &chatSink{svc: s})
		if s.chat.target.ChatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: telegram logging enabled but telegram.group_log is not set")
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.active.Store(&zl)
}

// reopenFileLocked closes any open log file and opens the configured one.
// An open failure is reported on stderr and the file sink is skipped.
func (s *Service) reopenFileLocked(fc FileConfig) io.Writer {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if !fc.Enabled {
		return nil
	}
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
		return nil
	}
	s.file = f
	return zerolog.SyncWriter(f)
}

func (s *Service) startChatLocked() {
	s.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(ctx)
		}()
	})
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}
