package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"MarketSpider/internal/logger"
	"MarketSpider/internal/notifier"
	"MarketSpider/internal/pipeline"

	"github.com/guregu/null/v6"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned when a job is started while a run of it is in progress.
var ErrAlreadyRunning = errors.New("job already running")

// Task is one runnable job.
type Task func(ctx context.Context) error

// Alerter is told about failed runs.
type Alerter interface {
	NotifyFailure(ctx context.Context, job string, err error) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron    *cron.Cron
	Alerter Alerter
	Ctx     context.Context

	mu      sync.Mutex
	tasks   map[string]Task
	entries map[string]cron.EntryID
	running map[string]bool
	log     *logrus.Entry
}

// NewScheduler creates a new Scheduler. alerter may be nil.
func NewScheduler(ctx context.Context, alerter Alerter, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	entry := logger.WithComponent(log, "scheduler")
	return &Scheduler{
		// a run still in progress makes the next firing of the same job a no-op
		Cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(entry)))),
		Alerter: alerter,
		Ctx:     ctx,
		tasks:   make(map[string]Task),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		log:     entry,
	}
}

// Register schedules task under name on a six-field cron spec.
func (s *Scheduler) Register(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("job %q registered twice", name)
	}
	id, err := s.Cron.AddFunc(spec, func() { _ = s.run(name, task) })
	if err != nil {
		return fmt.Errorf("register %s (%q): %w", name, spec, err)
	}
	s.tasks[name] = task
	s.entries[name] = id
	s.log.Infof("registered %s: %s", name, spec)
	return nil
}

// RegisterDaily schedules a daily market pipeline for its latest session.
func (s *Scheduler) RegisterDaily(d *pipeline.Daily, spec string) error {
	return s.Register(d.Name, spec, func(ctx context.Context) error {
		_, err := d.Run(ctx, null.Time{}, null.Time{})
		return err
	})
}

// RegisterPrices schedules a price job over its look-back window.
func (s *Scheduler) RegisterPrices(j *pipeline.PriceJob, spec string) error {
	return s.Register(j.Name, spec, func(ctx context.Context) error {
		_, err := j.Run(ctx, null.Time{}, null.Time{})
		return err
	})
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes the named job immediately.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(name, task)
}

// Next returns the next firing time of every registered job.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.Cron.Entry(id).Next
	}
	return out
}

// Names lists the registered jobs.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// run executes task unless a run of the same job, cron-fired or manual, is in progress.
func (s *Scheduler) run(name string, task Task) error {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.WithField("job", name).Info("skipped, previous run still in progress")
		return fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	s.log.Infof("running %s", name)
	began := time.Now()
	err := task(s.Ctx)
	if err != nil {
		s.log.WithField("job", name).Errorf("run failed: %v", err)
		if s.Alerter != nil {
			if aerr := s.Alerter.NotifyFailure(s.Ctx, name, err); aerr != nil {
				s.log.Errorf("send failure alert: %v", aerr)
			}
		}
		return err
	}
	s.log.WithField("job", name).Infof("finished in %v", time.Since(began).Round(time.Millisecond))
	return nil
}

// HandleCommand processes a bot command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/jobs":
		return notifier.FormatJobs(s.Next())
	case "/run":
		if len(fields) < 2 {
			return "usage: /run &lt;name&gt;"
		}
		name := fields[1]
		s.mu.Lock()
		_, ok := s.tasks[name]
		busy := s.running[name]
		s.mu.Unlock()
		if !ok {
			return fmt.Sprintf("unknown job %q", name)
		}
		if busy {
			return fmt.Sprintf("%s is already running", name)
		}
		go func() {
			if err := s.RunNow(name); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				s.log.Warnf("/run %s: %v", name, err)
			}
		}()
		return fmt.Sprintf("started %s", name)
	default:
		return "Commands:\n• /jobs\n• /run &lt;name&gt;\n\nJobs: " + strings.Join(s.Names(), ", ")
	}
}
