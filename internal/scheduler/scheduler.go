// Package scheduler fires digest runs on each newsletter's schedule.
// One logical job exists per (newsletter, HH:MM) pair, evaluated in the
// newsletter's timezone; the loop sleeps until the soonest job and
// re-resolves the next fire after each trigger so DST transitions follow
// the tz database. Overlapping fires are coalesced by the pipeline's run
// lock. A daily sweep prunes run history past the retention window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pipeline"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
)

// idleWait bounds the sleep when no jobs exist; a refresh wakes the loop
// earlier.
const idleWait = time.Hour

// Store is the persistence surface the scheduler needs. *store.Store
// implements it.
type Store interface {
	ListNewsletters(ctx context.Context, activeOnly bool) ([]domain.Newsletter, error)
	EffectiveSettings(ctx context.Context, cfg *config.Config) (domain.Settings, error)
	PruneHistory(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner executes one digest run. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, newsletterID string) (*domain.RunResult, error)
}

// Job is one scheduled trigger: a newsletter and a time of day.
type Job struct {
	ID           string    `json:"id"`
	NewsletterID string    `json:"newsletter_id"`
	Newsletter   string    `json:"newsletter"`
	Time         string    `json:"time"`
	Timezone     string    `json:"timezone"`
	NextRun      time.Time `json:"next_run"`

	hh, mm int
	loc    *time.Location
}

// Scheduler owns the trigger loop and the retention sweep.
type Scheduler struct {
	store  Store
	cfg    *config.Config
	runner Runner

	mu        sync.Mutex
	jobs      []Job
	running   bool
	refreshCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store Store, cfg *config.Config, runner Runner) *Scheduler {
	return &Scheduler{
		store:     store,
		cfg:       cfg,
		runner:    runner,
		refreshCh: make(chan struct{}, 1),
	}
}

// Start loads the job set and begins the trigger and retention loops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if err := s.RefreshJobs(s.ctx); err != nil {
		logger.Warn("initial schedule load failed", "error", err.Error())
	}

	s.wg.Add(2)
	go s.loop()
	go s.retentionLoop()

	logger.Info("scheduler started", "jobs", len(s.Jobs()))
	return nil
}

// Stop cancels the loops and any in-flight dispatches, then waits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped")
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RefreshJobs rebuilds the job set from the active newsletters and the
// effective settings. Call after any newsletter or settings mutation.
func (s *Scheduler) RefreshJobs(ctx context.Context) error {
	newsletters, err := s.store.ListNewsletters(ctx, true)
	if err != nil {
		return fmt.Errorf("list newsletters: %w", err)
	}
	settings, err := s.store.EffectiveSettings(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("resolve settings: %w", err)
	}

	now := time.Now()
	var jobs []Job
	for i := range newsletters {
		jobs = append(jobs, buildJobs(&newsletters[i], settings, now)...)
	}

	s.mu.Lock()
	s.jobs = jobs
	s.mu.Unlock()

	logger.Info("schedule refreshed", "jobs", len(jobs))
	s.kick()
	return nil
}

// Jobs returns a snapshot of the job set ordered by next fire.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	s.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].NextRun.Equal(out[b].NextRun) {
			return out[a].ID < out[b].ID
		}
		return out[a].NextRun.Before(out[b].NextRun)
	})
	return out
}

// loop sleeps until the soonest job, fires everything due, and repeats.
// A refresh wakes it early so new schedules take effect immediately.
func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		wait := idleWait
		if next, ok := s.soonest(); ok {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.refreshCh:
			timer.Stop()
		case <-timer.C:
			s.fireDue(time.Now())
		}
	}
}

func (s *Scheduler) soonest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	for _, job := range s.jobs {
		if next.IsZero() || job.NextRun.Before(next) {
			next = job.NextRun
		}
	}
	return next, !next.IsZero()
}

// fireDue dispatches every job whose instant has arrived and advances
// each to its next occurrence before dispatching, so a slow run can
// never double-fire the same instant.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []Job
	for i := range s.jobs {
		if s.jobs[i].NextRun.After(now) {
			continue
		}
		due = append(due, s.jobs[i])
		s.jobs[i].NextRun = nextOccurrence(now, s.jobs[i].hh, s.jobs[i].mm, s.jobs[i].loc)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.dispatch(job)
		}(job)
	}
}

func (s *Scheduler) dispatch(job Job) {
	logger.Info("schedule fired", "job_id", job.ID, "newsletter_id", job.NewsletterID, "time", job.Time)
	res, err := s.runner.Run(s.ctx, job.NewsletterID)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		// coalesced; the pipeline logged the skip
	case err != nil:
		logger.Error("scheduled run failed to start", "job_id", job.ID, "error", err.Error())
	default:
		logger.Info("scheduled run finished",
			"job_id", job.ID, "run_id", res.RunID, "status", string(res.Status))
	}
}

// retentionLoop prunes run history daily, once immediately on start.
func (s *Scheduler) retentionLoop() {
	defer s.wg.Done()
	s.prune()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Scheduler) prune() {
	days := s.cfg.Digest.RetentionDays
	if days <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := s.store.PruneHistory(ctx, cutoff)
	if err != nil {
		logger.Warn("history prune failed", "error", err.Error())
		return
	}
	if deleted > 0 {
		logger.Info("history pruned", "deleted", deleted, "cutoff", cutoff.Format("2006-01-02"))
	}
}

func (s *Scheduler) kick() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// buildJobs materializes the jobs for one newsletter: its own schedule
// times, or the settings default when it has none, deduped per time of
// day. An unknown timezone degrades to UTC rather than dropping the
// schedule.
func buildJobs(n *domain.Newsletter, settings domain.Settings, now time.Time) []Job {
	times := n.ScheduleTimes
	if len(times) == 0 {
		times = settings.DefaultSendTimes
	}
	if len(times) == 0 {
		return nil
	}

	tz := n.Timezone
	if tz == "" {
		tz = settings.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn("invalid schedule timezone, using UTC", "newsletter_id", n.ID, "timezone", tz)
		loc = time.UTC
	}

	seen := make(map[string]struct{}, len(times))
	jobs := make([]Job, 0, len(times))
	for _, tm := range times {
		hh, mm, ok := parseHHMM(tm)
		if !ok {
			logger.Warn("skipping invalid schedule time", "newsletter_id", n.ID, "time", tm)
			continue
		}
		key := fmt.Sprintf("%02d%02d", hh, mm)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		jobs = append(jobs, Job{
			ID:           fmt.Sprintf("newsletter-%s-%s", n.ID, key),
			NewsletterID: n.ID,
			Newsletter:   n.Name,
			Time:         fmt.Sprintf("%02d:%02d", hh, mm),
			Timezone:     loc.String(),
			NextRun:      nextOccurrence(now, hh, mm, loc),
			hh:           hh,
			mm:           mm,
			loc:          loc,
		})
	}
	return jobs
}

// nextOccurrence finds the first wall-clock hh:mm in loc strictly after
// the given instant. Day arithmetic goes through time.Date so DST
// transitions resolve per the tz database.
func nextOccurrence(after time.Time, hh, mm int, loc *time.Location) time.Time {
	local := after.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
	if !next.After(after) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hh, mm, 0, 0, loc)
	}
	return next
}

func parseHHMM(s string) (hh, mm int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, false
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}
