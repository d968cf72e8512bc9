// Package schedule runs configured actions on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/jobrelay/internal/action"
)

// Entry is one scheduled action.
type Entry struct {
	Name string `yaml:"name" json:"name"`
	// Schedule is a 5-field cron expression or a descriptor such as
	// "@hourly" or "@every 15m".
	Schedule string        `yaml:"schedule" json:"schedule"`
	Enabled  *bool         `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Action   action.Action `yaml:"action" json:"action"`
}

func (e Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads cron entries from path. A missing file is an empty list.
func Load(path string) ([]Entry, error) {
	var entries []Entry
	if _, err := action.DecodeFile(path, &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := parser.Parse(strings.TrimSpace(e.Schedule)); err != nil {
			return nil, fmt.Errorf("cron %q: bad schedule %q: %w", e.Name, e.Schedule, err)
		}
		if err := e.Action.Validate(); err != nil {
			return nil, fmt.Errorf("cron %q: %w", e.Name, err)
		}
	}
	return entries, nil
}

type Runner interface {
	Run(ctx context.Context, a action.Action, req action.Request) error
}

type Scheduler struct {
	logger *slog.Logger
	cron   *cron.Cron
	runner Runner
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers every enabled entry. Nothing runs until Start.
func New(log *slog.Logger, entries []Entry, runner Runner) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "schedule"))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: log,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
	clog := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	for _, e := range entries {
		if !e.IsEnabled() {
			continue
		}
		entry := e
		if _, err := s.cron.AddFunc(strings.TrimSpace(entry.Schedule), func() { s.run(entry) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %q: %w", entry.Name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) run(e Entry) {
	started := time.Now()
	if err := s.runner.Run(s.ctx, e.Action, action.Request{}); err != nil {
		s.logger.Error("cron action failed", slog.String("name", e.Name), slog.String("action", e.Action.Describe()), slog.Any("error", err))
		return
	}
	s.logger.Info("cron action done", slog.String("name", e.Name), slog.Duration("took", time.Since(started)))
}

// Len is the number of registered entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("entries", s.Len()))
}

// Stop stops scheduling, cancels running actions and waits for them to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
