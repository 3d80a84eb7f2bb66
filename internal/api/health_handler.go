package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
	"github.com/jsnider89/ai-news-digest/internal/scheduler"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

type healthMetrics struct {
	TotalNewsletters  int `json:"total_newsletters"`
	ActiveNewsletters int `json:"active_newsletters"`
	RunsToday         int `json:"runs_today"`
	FailedRunsToday   int `json:"failed_runs_today"`
}

type newsletterSchedule struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Active        bool     `json:"active"`
	ScheduleTimes []string `json:"schedule_times"`
	Timezone      string   `json:"timezone"`
	NextRunTimes  []string `json:"next_run_times"`
}

type schedulerSummary struct {
	Running  bool            `json:"running"`
	JobCount int             `json:"job_count"`
	Jobs     []scheduler.Job `json:"jobs"`
}

type healthResponse struct {
	Status        string               `json:"status"`
	StatusDetails []string             `json:"status_details"`
	Timestamp     time.Time            `json:"timestamp"`
	Metrics       healthMetrics        `json:"metrics"`
	LatestRun     *store.RunWithName   `json:"latest_run"`
	RecentRuns    []store.RunWithName  `json:"recent_runs"`
	Newsletters   []newsletterSchedule `json:"newsletters"`
	Scheduler     schedulerSummary     `json:"scheduler"`
}

// handleHealth reports overall engine health. Always 200; the status
// field carries the verdict so dashboards can poll it directly.
//
//	GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	newsletters, err := s.store.ListNewsletters(ctx, false)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	active := 0
	for _, n := range newsletters {
		if n.Active {
			active++
		}
	}

	recent, err := s.store.ListRuns(ctx, "", 10)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if recent == nil {
		recent = []store.RunWithName{}
	}
	var latest *store.RunWithName
	if len(recent) > 0 {
		latest = &recent[0]
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	runsToday, failedToday, err := s.store.CountRunsSince(ctx, midnight)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	status, details := healthVerdict(latest, recent, failedToday, len(newsletters), active)

	var jobs []scheduler.Job
	running := false
	if s.schedule != nil {
		jobs = s.schedule.Jobs()
		running = s.schedule.Running()
	}
	if jobs == nil {
		jobs = []scheduler.Job{}
	}

	// Jobs() is ordered by next fire, so each newsletter's list comes
	// out sorted.
	nextRuns := make(map[string][]string, len(newsletters))
	for _, job := range jobs {
		nextRuns[job.NewsletterID] = append(nextRuns[job.NewsletterID], job.NextRun.Format(time.RFC3339))
	}

	summaries := make([]newsletterSchedule, 0, len(newsletters))
	for _, n := range newsletters {
		times := n.ScheduleTimes
		if times == nil {
			times = []string{}
		}
		next := nextRuns[n.ID]
		if next == nil {
			next = []string{}
		}
		summaries = append(summaries, newsletterSchedule{
			ID:            n.ID,
			Name:          n.Name,
			Active:        n.Active,
			ScheduleTimes: times,
			Timezone:      n.Timezone,
			NextRunTimes:  next,
		})
	}

	httputil.JSON(w, http.StatusOK, healthResponse{
		Status:        status,
		StatusDetails: details,
		Timestamp:     now,
		Metrics: healthMetrics{
			TotalNewsletters:  len(newsletters),
			ActiveNewsletters: active,
			RunsToday:         runsToday,
			FailedRunsToday:   failedToday,
		},
		LatestRun:   latest,
		RecentRuns:  recent,
		Newsletters: summaries,
		Scheduler: schedulerSummary{
			Running:  running,
			JobCount: len(jobs),
			Jobs:     jobs,
		},
	})
}

// healthVerdict grades run history. One failed run degrades; a streak,
// or a bad day ending in a failure, raises issues. A fleet of disabled
// newsletters is also worth a look.
func healthVerdict(latest *store.RunWithName, recent []store.RunWithName, failedToday, total, active int) (string, []string) {
	status := "ok"
	details := []string{}

	latestFailed := latest != nil && latest.Status == domain.RunFailed
	if latestFailed {
		reason := latest.Error
		if reason == "" {
			reason = "unknown error"
		}
		status = "degraded"
		details = append(details, "latest run failed: "+reason)
	}

	consecutive := 0
	for i, run := range recent {
		if i >= 3 || run.Status != domain.RunFailed {
			break
		}
		consecutive++
	}

	if consecutive >= 2 {
		status = "issues"
		details = append(details, fmt.Sprintf("%d consecutive failures detected", consecutive))
	} else if failedToday >= 3 && latestFailed {
		status = "issues"
		details = append(details, fmt.Sprintf("%d failures today, latest run failed", failedToday))
	}

	if total > 0 && active == 0 {
		if status == "ok" {
			status = "degraded"
		}
		details = append(details, "no active newsletters")
	}

	return status, details
}
