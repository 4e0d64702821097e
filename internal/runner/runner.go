// Package runner drives matches in the standalone host: it polls match timers, runs the
// matchmaker and forgets ended matches on a gocron schedule.
package runner

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/app"
	"spikeline/internal/logging"
)

const (
	DefaultTickInterval      = 100 * time.Millisecond
	DefaultMatchmakeInterval = time.Second
	DefaultReapInterval      = time.Minute
)

type Options struct {
	TickInterval      time.Duration
	MatchmakeInterval time.Duration
	ReapInterval      time.Duration
	Clock             clockwork.Clock
	Logger            runtime.Logger
}

// Runner owns the scheduler. Jobs run in singleton mode, so a slow tick delays the next one
// instead of overlapping it.
type Runner struct {
	registry   *app.Registry
	matchmaker *app.Matchmaker
	logger     runtime.Logger
	sched      gocron.Scheduler
}

func New(registry *app.Registry, matchmaker *app.Matchmaker, opts Options) (*Runner, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MatchmakeInterval <= 0 {
		opts.MatchmakeInterval = DefaultMatchmakeInterval
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(opts.Clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	r := &Runner{
		registry:   registry,
		matchmaker: matchmaker,
		logger:     opts.Logger,
		sched:      sched,
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"tick", opts.TickInterval, func() { r.Tick() }},
		{"matchmake", opts.MatchmakeInterval, func() { r.Matchmake() }},
		{"reap", opts.ReapInterval, func() { r.Reap() }},
	}
	for _, j := range jobs {
		if j.name == "matchmake" && matchmaker == nil {
			continue
		}
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.task),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("schedule %s job: %w", j.name, err)
		}
	}
	return r, nil
}

func (r *Runner) Start() {
	r.sched.Start()
	r.logger.Info("runner started with %d jobs", len(r.sched.Jobs()))
}

// Shutdown stops the scheduler and waits for running jobs.
func (r *Runner) Shutdown() error {
	return r.sched.Shutdown()
}

// JobNames lists the scheduled jobs.
func (r *Runner) JobNames() []string {
	var names []string
	for _, j := range r.sched.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

// Tick fires due timers on every match.
func (r *Runner) Tick() int {
	return r.registry.Advance()
}

func (r *Runner) Matchmake() int {
	if r.matchmaker == nil {
		return 0
	}
	n := r.matchmaker.Run()
	if n > 0 {
		r.logger.Info("matchmaker created %d matches", n)
	}
	return n
}

func (r *Runner) Reap() int {
	return r.registry.Reap()
}
