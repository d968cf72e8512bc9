// Package trigger fires configured actions when an authenticated request
// hits a watched path.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/memohai/jobrelay/internal/action"
	"github.com/memohai/jobrelay/internal/route"
)

// Trigger binds a route path to the actions it fires.
type Trigger struct {
	Name      string          `yaml:"name" json:"name"`
	WatchPath string          `yaml:"watch_path" json:"watch_path"`
	Enabled   *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Actions   []action.Action `yaml:"actions" json:"actions"`
}

// IsEnabled defaults to true when the flag is absent.
func (t Trigger) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Load reads the trigger list from path. A missing file is an empty list.
// Invalid entries fail the whole load.
func Load(path string) ([]Trigger, error) {
	var triggers []Trigger
	if _, err := action.DecodeFile(path, &triggers); err != nil {
		return nil, err
	}
	for i := range triggers {
		t := &triggers[i]
		if strings.TrimSpace(t.WatchPath) == "" {
			return nil, fmt.Errorf("trigger %q: watch_path is required", t.Name)
		}
		t.WatchPath = route.Normalize(t.WatchPath)
		for _, a := range t.Actions {
			if err := a.Validate(); err != nil {
				return nil, fmt.Errorf("trigger %q: %w", t.Name, err)
			}
		}
	}
	return triggers, nil
}

// Runner executes one action.
type Runner interface {
	Run(ctx context.Context, a action.Action, req action.Request) error
}

// Dispatcher matches requests against the trigger list, which is read once
// on first use.
type Dispatcher struct {
	logger *slog.Logger
	path   string
	runner Runner
	load   func(string) ([]Trigger, error)
	async  func(func())

	once     sync.Once
	triggers []Trigger
}

func NewDispatcher(log *slog.Logger, path string, runner Runner) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		logger: log.With(slog.String("component", "trigger")),
		path:   path,
		runner: runner,
		load:   Load,
		async:  func(fn func()) { go fn() },
	}
}

func (d *Dispatcher) loaded() []Trigger {
	d.once.Do(func() {
		triggers, err := d.load(d.path)
		if err != nil {
			d.logger.Error("load triggers failed; no triggers will fire", slog.String("path", d.path), slog.Any("error", err))
			return
		}
		d.triggers = triggers
		d.logger.Info("triggers loaded", slog.String("path", d.path), slog.Int("count", len(triggers)))
	})
	return d.triggers
}

// Match returns the enabled triggers watching path.
func (d *Dispatcher) Match(path string) []Trigger {
	path = route.Normalize(path)
	var out []Trigger
	for _, t := range d.loaded() {
		if t.IsEnabled() && t.WatchPath == path {
			out = append(out, t)
		}
	}
	return out
}

// Fire starts the actions of every trigger matching req.Path and returns
// without waiting for them. Action failures are only logged.
func (d *Dispatcher) Fire(ctx context.Context, req action.Request) {
	matched := d.Match(req.Path)
	if len(matched) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, t := range matched {
		for _, a := range t.Actions {
			name, act := t.Name, a
			d.async(func() {
				if err := d.runner.Run(detached, act, req); err != nil {
					d.logger.Error("trigger action failed",
						slog.String("trigger", name),
						slog.String("action", act.Describe()),
						slog.Any("error", err))
					return
				}
				d.logger.Debug("trigger action done", slog.String("trigger", name), slog.String("action", act.Describe()))
			})
		}
	}
}
