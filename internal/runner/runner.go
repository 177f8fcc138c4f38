package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hermes/internal/config"
	"hermes/internal/model"
)

// ConfigSource returns the current bot configuration.
type ConfigSource interface {
	LoadBotConfig(ctx context.Context) (model.BotConfig, error)
}

// Refresher pulls fresh prices for the allowed currencies.
type Refresher interface {
	Refresh(ctx context.Context, allowed []string) (int, error)
}

// Iterator runs one scan-and-execute pass.
type Iterator interface {
	RunIteration(ctx context.Context, cfg model.BotConfig) (int, error)
}

// Runner drives the bot loop in a background goroutine.
type Runner struct {
	logger   *slog.Logger
	configs  ConfigSource
	ingestor Refresher
	engine   Iterator

	refreshInterval time.Duration
	inactivePoll    time.Duration
	errorBackoff    time.Duration

	now func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a stopped Runner.
func New(logger *slog.Logger, configs ConfigSource, ingestor Refresher, engine Iterator, cfg config.RunnerConfig) *Runner {
	return &Runner{
		logger:          logger,
		configs:         configs,
		ingestor:        ingestor,
		engine:          engine,
		refreshInterval: orDefault(cfg.RefreshInterval, 15*time.Second),
		inactivePoll:    orDefault(cfg.InactivePoll, 2*time.Second),
		errorBackoff:    orDefault(cfg.ErrorBackoff, 5*time.Second),
		now:             time.Now,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start launches the loop. It returns false when the loop is already running.
// ctx bounds the loop and every operation it starts; Stop does not cancel it.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running && !closed(r.done) {
		return false
	}
	// A stopped loop may still be finishing its iteration; the new one
	// waits for it so iterations never overlap.
	prev := r.done
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, prev, r.stop, r.done)
	r.logger.Info("Runner: started")
	return true
}

// Stop signals the loop to exit and returns immediately. An iteration in
// progress finishes; the sleep that follows is cut short.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	close(r.stop)
	r.logger.Info("Runner: stop requested")
}

// IsRunning reports whether the loop is wanted and still alive.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && !closed(r.done)
}

// Done is closed when the current loop goroutine has exited. It is closed
// already if the Runner was never started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return r.done
}

func closed(c chan struct{}) bool {
	if c == nil {
		return true
	}
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func (r *Runner) loop(ctx context.Context, prev <-chan struct{}, stop, done chan struct{}) {
	defer close(done)
	defer r.logger.Info("Runner: loop exited")

	// prev was stopped, so it exits once its current iteration ends.
	if prev != nil {
		<-prev
	}

	var lastRefresh time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		wait, err := r.step(ctx, &lastRefresh)
		if err != nil {
			r.logger.Error("Runner: iteration failed, backing off", "error", err, "backoff", r.errorBackoff)
			wait = r.errorBackoff
		}

		if !sleep(ctx, stop, wait) {
			return
		}
	}
}

// step runs one loop iteration and returns how long to sleep afterwards.
// A panic is turned into an error.
func (r *Runner) step(ctx context.Context, lastRefresh *time.Time) (wait time.Duration, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in iteration: %v", rec)
		}
	}()

	cfg, err := r.configs.LoadBotConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("load bot config: %w", err)
	}
	if !cfg.IsActive {
		r.logger.Debug("Runner: bot inactive")
		return r.inactivePoll, nil
	}

	now := r.now()
	if lastRefresh.IsZero() || now.Sub(*lastRefresh) >= r.refreshInterval {
		if _, err := r.ingestor.Refresh(ctx, cfg.SelectedCurrencies); err != nil {
			r.logger.Warn("Runner: price refresh failed", "error", err)
		}
		*lastRefresh = now
	}

	executed, err := r.engine.RunIteration(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("run iteration: %w", err)
	}
	r.logger.Debug("Runner: iteration complete", "executed", executed)

	return time.Duration(cfg.CheckIntervalSeconds) * time.Second, nil
}

// sleep waits for d and reports false if the loop should exit instead.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
