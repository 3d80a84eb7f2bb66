package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pipeline"
)

type fakeStore struct {
	newsletters []domain.Newsletter
	settings    domain.Settings
	listErr     error
	pruned      chan time.Time
}

func (s *fakeStore) ListNewsletters(_ context.Context, activeOnly bool) ([]domain.Newsletter, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Newsletter, 0, len(s.newsletters))
	for _, n := range s.newsletters {
		if activeOnly && !n.Active {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *fakeStore) EffectiveSettings(context.Context, *config.Config) (domain.Settings, error) {
	return s.settings, nil
}

func (s *fakeStore) PruneHistory(_ context.Context, cutoff time.Time) (int64, error) {
	select {
	case s.pruned <- cutoff:
	default:
	}
	return 3, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	err   error
	calls []string
	fired chan string
}

func (r *fakeRunner) Run(_ context.Context, newsletterID string) (*domain.RunResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, newsletterID)
	r.mu.Unlock()
	if r.fired != nil {
		r.fired <- newsletterID
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RunResult{RunID: "run-1", Status: domain.RunSuccess}, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestNextOccurrence(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	t.Run("later today", func(t *testing.T) {
		after := time.Date(2025, 6, 2, 7, 0, 0, 0, ny)
		next := nextOccurrence(after, 8, 30, ny)
		assert.Equal(t, time.Date(2025, 6, 2, 8, 30, 0, 0, ny), next)
	})

	t.Run("already passed rolls to tomorrow", func(t *testing.T) {
		after := time.Date(2025, 6, 2, 9, 0, 0, 0, ny)
		next := nextOccurrence(after, 8, 30, ny)
		assert.Equal(t, time.Date(2025, 6, 3, 8, 30, 0, 0, ny), next)
	})

	t.Run("exact instant never fires twice", func(t *testing.T) {
		after := time.Date(2025, 6, 2, 8, 30, 0, 0, ny)
		next := nextOccurrence(after, 8, 30, ny)
		assert.Equal(t, time.Date(2025, 6, 3, 8, 30, 0, 0, ny), next)
	})

	t.Run("spring forward keeps wall clock", func(t *testing.T) {
		// DST starts 2025-03-09 in New York
		after := time.Date(2025, 3, 8, 9, 0, 0, 0, ny)
		next := nextOccurrence(after, 8, 0, ny)
		local := next.In(ny)
		assert.Equal(t, 9, local.Day())
		assert.Equal(t, "08:00", local.Format("15:04"))
	})

	t.Run("evaluates in job timezone regardless of input zone", func(t *testing.T) {
		after := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC) // 07:00 in New York
		next := nextOccurrence(after, 8, 30, ny)
		assert.Equal(t, time.Date(2025, 6, 2, 8, 30, 0, 0, ny).Unix(), next.Unix())
	})
}

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		in     string
		hh, mm int
		ok     bool
	}{
		{"07:30", 7, 30, true},
		{"23:59", 23, 59, true},
		{"0:05", 0, 5, true},
		{" 12:00 ", 12, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"12", 0, 0, false},
		{"aa:bb", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		hh, mm, ok := parseHHMM(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.hh, hh, "input %q", tt.in)
			assert.Equal(t, tt.mm, mm, "input %q", tt.in)
		}
	}
}

func TestBuildJobs(t *testing.T) {
	now := time.Now()

	t.Run("one job per time of day, deduped", func(t *testing.T) {
		n := &domain.Newsletter{
			ID:            "nl-1",
			Name:          "Morning Brief",
			Timezone:      "America/New_York",
			ScheduleTimes: []string{"07:30", "16:00", "07:30"},
		}
		jobs := buildJobs(n, domain.Settings{}, now)
		require.Len(t, jobs, 2)
		assert.Equal(t, "newsletter-nl-1-0730", jobs[0].ID)
		assert.Equal(t, "07:30", jobs[0].Time)
		assert.Equal(t, "America/New_York", jobs[0].Timezone)
		assert.Equal(t, "newsletter-nl-1-1600", jobs[1].ID)
		for _, job := range jobs {
			assert.True(t, job.NextRun.After(now))
		}
	})

	t.Run("settings default times when newsletter has none", func(t *testing.T) {
		n := &domain.Newsletter{ID: "nl-2", Name: "Quiet", Timezone: "UTC"}
		jobs := buildJobs(n, domain.Settings{DefaultSendTimes: []string{"06:00"}}, now)
		require.Len(t, jobs, 1)
		assert.Equal(t, "newsletter-nl-2-0600", jobs[0].ID)
	})

	t.Run("no times anywhere yields no jobs", func(t *testing.T) {
		n := &domain.Newsletter{ID: "nl-3", Timezone: "UTC"}
		assert.Empty(t, buildJobs(n, domain.Settings{}, now))
	})

	t.Run("unknown timezone degrades to UTC", func(t *testing.T) {
		n := &domain.Newsletter{ID: "nl-4", Timezone: "Mars/Olympus", ScheduleTimes: []string{"09:00"}}
		jobs := buildJobs(n, domain.Settings{}, now)
		require.Len(t, jobs, 1)
		assert.Equal(t, "UTC", jobs[0].Timezone)
	})

	t.Run("invalid time strings skipped", func(t *testing.T) {
		n := &domain.Newsletter{ID: "nl-5", Timezone: "UTC", ScheduleTimes: []string{"25:00", "08:15"}}
		jobs := buildJobs(n, domain.Settings{}, now)
		require.Len(t, jobs, 1)
		assert.Equal(t, "08:15", jobs[0].Time)
	})
}

func TestRefreshJobsBuildsFromActiveNewsletters(t *testing.T) {
	st := &fakeStore{
		newsletters: []domain.Newsletter{
			{ID: "nl-1", Name: "Morning", Timezone: "UTC", ScheduleTimes: []string{"07:00"}, Active: true},
			{ID: "nl-2", Name: "Paused", Timezone: "UTC", ScheduleTimes: []string{"08:00"}, Active: false},
		},
	}
	s := New(st, &config.Config{}, &fakeRunner{})

	require.NoError(t, s.RefreshJobs(context.Background()))
	jobs := s.Jobs()
	require.Len(t, jobs, 1, "inactive newsletters carry no jobs")
	assert.Equal(t, "nl-1", jobs[0].NewsletterID)
}

func TestRefreshJobsPropagatesStoreError(t *testing.T) {
	st := &fakeStore{listErr: errors.New("db down")}
	s := New(st, &config.Config{}, &fakeRunner{})

	err := s.RefreshJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list newsletters")
}

func TestSchedulerFiresDueJob(t *testing.T) {
	st := &fakeStore{}
	runner := &fakeRunner{fired: make(chan string, 1)}
	s := New(st, &config.Config{}, runner)

	require.NoError(t, s.Start())
	defer s.Stop()

	before := time.Now()
	s.mu.Lock()
	s.jobs = []Job{{
		ID:           "newsletter-nl-1-0730",
		NewsletterID: "nl-1",
		Newsletter:   "Morning Brief",
		Time:         "07:30",
		Timezone:     "UTC",
		NextRun:      before.Add(20 * time.Millisecond),
		hh:           7, mm: 30, loc: time.UTC,
	}}
	s.mu.Unlock()
	s.kick()

	select {
	case id := <-runner.fired:
		assert.Equal(t, "nl-1", id)
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].NextRun.After(before.Add(20*time.Millisecond)), "next fire re-resolved past the fired instant")
	assert.Equal(t, "07:30", jobs[0].NextRun.In(time.UTC).Format("15:04"), "wall clock preserved")
}

func TestSchedulerToleratesCoalescedRuns(t *testing.T) {
	st := &fakeStore{}
	runner := &fakeRunner{err: pipeline.ErrRunInProgress, fired: make(chan string, 1)}
	s := New(st, &config.Config{}, runner)

	require.NoError(t, s.Start())
	defer s.Stop()

	s.mu.Lock()
	s.jobs = []Job{{
		ID:           "newsletter-nl-1-0730",
		NewsletterID: "nl-1",
		NextRun:      time.Now().Add(20 * time.Millisecond),
		hh:           7, mm: 30, loc: time.UTC,
	}}
	s.mu.Unlock()
	s.kick()

	select {
	case <-runner.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
	assert.Equal(t, 1, runner.callCount())
}

func TestSchedulerStartIsExclusive(t *testing.T) {
	s := New(&fakeStore{}, &config.Config{}, &fakeRunner{})
	require.NoError(t, s.Start())
	defer s.Stop()

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestSchedulerPrunesHistoryOnStart(t *testing.T) {
	st := &fakeStore{pruned: make(chan time.Time, 1)}
	cfg := &config.Config{}
	cfg.Digest.RetentionDays = 90

	s := New(st, cfg, &fakeRunner{})
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case cutoff := <-st.pruned:
		assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -90), cutoff, time.Minute)
	case <-time.After(3 * time.Second):
		t.Fatal("retention sweep never ran")
	}
}

func TestJobsSortedByNextFire(t *testing.T) {
	s := New(&fakeStore{}, &config.Config{}, &fakeRunner{})
	now := time.Now()
	s.mu.Lock()
	s.jobs = []Job{
		{ID: "newsletter-b-0900", NextRun: now.Add(2 * time.Hour)},
		{ID: "newsletter-a-0700", NextRun: now.Add(time.Hour)},
		{ID: "newsletter-c-0700", NextRun: now.Add(time.Hour)},
	}
	s.mu.Unlock()

	jobs := s.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "newsletter-a-0700", jobs[0].ID)
	assert.Equal(t, "newsletter-c-0700", jobs[1].ID)
	assert.Equal(t, "newsletter-b-0900", jobs[2].ID)
}
