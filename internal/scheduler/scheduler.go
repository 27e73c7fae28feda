package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskRunning  = errors.New("task is already running")
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig contains configuration for a scheduled task.
// Exactly one of Interval or Cron must be set.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Interval    time.Duration
	Cron        string // "0 0 * * *" for midnight daily
	Func        TaskFunc
	RunOnStart  bool
}

// TaskInfo contains information about a scheduled task for API responses.
type TaskInfo struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Interval     string     `json:"interval,omitempty"`
	Cron         string     `json:"cron,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastDuration string     `json:"lastDuration,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	NextRun      *time.Time `json:"nextRun,omitempty"`
	Running      bool       `json:"running"`
}

type taskEntry struct {
	config       TaskConfig
	job          gocron.Job
	lastRun      *time.Time
	lastDuration time.Duration
	lastErr      error
	running      bool
}

// Scheduler manages background scheduled tasks.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	tasks   map[string]*taskEntry
	stopped bool
}

// New creates a new scheduler.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// RegisterTask registers a new scheduled task.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	if config.ID == "" || config.Func == nil {
		return errors.New("task requires an id and a function")
	}
	if config.Name == "" {
		config.Name = config.ID
	}

	var def gocron.JobDefinition
	switch {
	case config.Cron != "" && config.Interval > 0:
		return fmt.Errorf("task %q: set either an interval or a cron expression", config.ID)
	case config.Cron != "":
		def = gocron.CronJob(config.Cron, false)
	case config.Interval > 0:
		def = gocron.DurationJob(config.Interval)
	default:
		return fmt.Errorf("task %q has no schedule", config.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}

	id := config.ID
	job, err := s.gocron.NewJob(
		def,
		gocron.NewTask(func() { s.executeTask(id) }),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{config: config, job: job}

	s.logger.Info().
		Str("id", config.ID).
		Str("name", config.Name).
		Str("schedule", schedule(config)).
		Bool("runOnStart", config.RunOnStart).
		Msg("Registered task")

	return nil
}

// executeTask runs a task unless a run of the same task is in flight.
func (s *Scheduler) executeTask(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running || s.stopped {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	startTime := time.Now()
	s.logger.Debug().
		Str("id", taskID).
		Str("name", entry.config.Name).
		Msg("Starting task")

	err := s.run(entry.config.Func)
	duration := time.Since(startTime)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &startTime
	entry.lastDuration = duration
	entry.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("id", taskID).
			Str("name", entry.config.Name).
			Dur("duration", duration).
			Msg("Task failed")
		return
	}
	s.logger.Debug().
		Str("id", taskID).
		Str("name", entry.config.Name).
		Dur("duration", duration).
		Msg("Task completed")
}

func (s *Scheduler) run(fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Start starts the scheduler and runs any tasks configured with RunOnStart.
func (s *Scheduler) Start() {
	s.gocron.Start()

	s.mu.RLock()
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Starting scheduler")
	var startup []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			startup = append(startup, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range startup {
		go s.executeTask(taskID)
	}
}

// Stop cancels in-flight tasks and waits for them to return.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	err := s.gocron.Shutdown()
	s.wg.Wait()
	return err
}

// RunNow manually triggers a task to run immediately.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if running {
		return fmt.Errorf("%w: %s", ErrTaskRunning, taskID)
	}

	go s.executeTask(taskID)
	return nil
}

// ListTasks returns information about all registered tasks, ordered by id.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		tasks = append(tasks, entry.info())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// GetTask returns information about a specific task.
func (s *Scheduler) GetTask(taskID string) (*TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	info := entry.info()
	return &info, nil
}

// callers hold s.mu
func (e *taskEntry) info() TaskInfo {
	info := TaskInfo{
		ID:          e.config.ID,
		Name:        e.config.Name,
		Description: e.config.Description,
		Cron:        e.config.Cron,
		LastRun:     e.lastRun,
		Running:     e.running,
	}
	if e.config.Interval > 0 {
		info.Interval = e.config.Interval.String()
	}
	if e.lastRun != nil {
		info.LastDuration = e.lastDuration.String()
	}
	if e.lastErr != nil {
		info.LastError = e.lastErr.Error()
	}
	if nextRun, err := e.job.NextRun(); err == nil && !nextRun.IsZero() {
		info.NextRun = &nextRun
	}
	return info
}

func schedule(c TaskConfig) string {
	if c.Cron != "" {
		return c.Cron
	}
	return "@every " + c.Interval.String()
}
