package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/wohnblick/wohnblick/internal/cycle"
)

// CycleRunner runs one watch cycle.
type CycleRunner interface {
	Run(ctx context.Context) (cycle.Summary, error)
}

// QuietHours is a daily window during which no cycles run. The window may
// wrap midnight (e.g. 22:00 to 07:00).
type QuietHours struct {
	start int // minutes since midnight
	end   int
	set   bool
}

// ParseQuietHours parses "HH:MM" start and end times. Both empty means no
// quiet hours.
func ParseQuietHours(start, end string) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	return QuietHours{start: s, end: e, set: true}, nil
}

func parseClock(v string) (int, error) {
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q is not HH:MM", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q is not HH:MM", v)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.set {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if q.start <= q.end {
		return now >= q.start && now < q.end
	}
	// Window wraps midnight.
	return now >= q.start || now < q.end
}

// Scheduler owns the main loop: an immediate first cycle, then one cycle per
// interval, skipping ticks that land inside the quiet window.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	quiet    QuietHours
	logger   *slog.Logger

	now func() time.Time // for tests
}

func NewScheduler(runner CycleRunner, interval time.Duration, quiet QuietHours, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		quiet:    quiet,
		logger:   logger,
		now:      time.Now,
	}
}

// Run starts the watch loop. It returns nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting watcher", "interval", s.interval.String())

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down watcher")
			return nil
		case <-time.After(s.interval):
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.quiet.Contains(s.now()) {
		s.logger.Debug("inside quiet hours, skipping cycle")
		return
	}

	if _, err := s.runner.Run(ctx); err != nil {
		s.logger.Error("cycle failed", "error", err)
	}
}
