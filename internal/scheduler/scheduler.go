package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/reporting"
)

// Refresher rebuilds the dashboard.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (*models.Dashboard, error)
}

type Scheduler struct {
	refresher Refresher
	logger    *zap.Logger
	schedule  string
	timeout   time.Duration
	cron      *cron.Cron
	entryID   cron.EntryID

	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastError string
	runs      int
}

// NewScheduler validates schedule, which accepts standard five-field cron
// specs and descriptors such as "@every 15m" or "@hourly".
func NewScheduler(refresher Refresher, schedule string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	s := &Scheduler{
		refresher: refresher,
		logger:    logger,
		schedule:  schedule,
		timeout:   timeout,
	}

	cronLog := cronLogger{logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	id, err := s.cron.AddFunc(schedule, func() { s.runRefresh(false) })
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	s.entryID = id

	return s, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()

	s.logger.Info("Scheduler started",
		zap.String("schedule", s.schedule),
		zap.Time("next_run", s.cron.Entry(s.entryID).Next))

	// Run immediately on start
	go s.runRefresh(false)
}

func (s *Scheduler) runRefresh(force bool) {
	startTime := time.Now()
	s.logger.Info("Starting scheduled dashboard refresh",
		zap.Time("start_time", startTime),
		zap.Bool("force", force))

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.refresher.Refresh(ctx, force)

	s.mu.Lock()
	s.lastRun = startTime
	s.runs++
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled dashboard refresh failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)))
		reporting.CaptureException(err, map[string]interface{}{
			"schedule": s.schedule,
			"force":    force,
		})
	} else {
		s.logger.Info("Scheduled dashboard refresh completed",
			zap.Duration("duration", time.Since(startTime)))
	}
}

// Stop halts the schedule and waits, up to the context deadline, for a
// running refresh to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

// ForceRun refreshes in the background, bypassing cached snapshots.
func (s *Scheduler) ForceRun() {
	s.logger.Info("Manually triggering dashboard refresh")
	go s.runRefresh(true)
}

func (s *Scheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":         s.running,
		"schedule":        s.schedule,
		"last_run":        s.lastRun,
		"runs":            s.runs,
		"skip_if_running": true,
	}
	if s.running {
		status["next_run"] = s.cron.Entry(s.entryID).Next
	}
	if s.lastError != "" {
		status["last_error"] = s.lastError
	}
	return status
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
