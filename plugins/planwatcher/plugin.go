// Package planwatcher re-runs an action whenever an experiment plan file
// changes. Bursts of file events are collapsed into a single run.
package planwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/insitu/internal/ports"
)

// Action is run once at start and after every change of the plan file.
type Action func(ctx context.Context) error

// Config holds configuration options for the plan watcher.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before running.
	// Default: 200 milliseconds
	DebounceDelay time.Duration

	// SkipInitial disables the run at start.
	SkipInitial bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 200 * time.Millisecond}
}

// Plugin watches one plan file.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration
	skipInitial   bool

	path   string
	action Action
	logger ports.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runs   int
}

// New creates a watcher for the plan at path.
func New(cfg Config, path string, action Action, logger ports.Logger) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 200 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
		skipInitial:   cfg.SkipInitial,
		path:          filepath.Clean(path),
		action:        action,
		logger:        logger,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "planwatcher"
}

// Start begins watching the plan's directory. The watch loop runs until
// Shutdown or until ctx is done.
func (p *Plugin) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("plan watcher started", ports.String("plan", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and waits for a running action to return.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runs returns how many times the action has run.
func (p *Plugin) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	if !p.skipInitial {
		p.run(ctx)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(p.debounceDelay)
			} else {
				timer.Reset(p.debounceDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			p.run(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("plan watcher error", ports.Err(err))
		}
	}
}

func (p *Plugin) run(ctx context.Context) {
	p.mu.Lock()
	p.runs++
	n := p.runs
	p.mu.Unlock()

	start := time.Now()
	if err := p.action(ctx); err != nil {
		p.logger.Error("plan run failed", ports.String("plan", p.path), ports.Int("run", n), ports.Err(err))
		return
	}
	p.logger.Info("plan run finished",
		ports.String("plan", p.path),
		ports.Int("run", n),
		ports.Duration("elapsed", time.Since(start)))
}
