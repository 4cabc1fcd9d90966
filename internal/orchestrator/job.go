package orchestrator

import (
	"context"
	"time"
)

// TriggerKind distinguishes the two firing models the orchestrator
// supports.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
)

// Trigger describes when a Job should fire. A cron trigger fires at wall-
// clock instants matched by CronExpr (Asia/Seoul); an interval trigger
// fires every Interval, optionally restricted to a daily window and gated
// by the market calendar.
type Trigger struct {
	Kind     TriggerKind
	CronExpr string
	Interval time.Duration

	// WindowStart/WindowEnd bound an interval trigger to "HH:MM" wall-clock
	// times, e.g. "09:00"/"15:30". Empty means unbounded.
	WindowStart string
	WindowEnd   string

	// GatedByCalendar suppresses interval firings on days the market is
	// closed.
	GatedByCalendar bool
}

// Cron builds a cron-scheduled Trigger.
func Cron(expr string) Trigger {
	return Trigger{Kind: TriggerCron, CronExpr: expr}
}

// Interval builds a fixed-period Trigger, optionally windowed and gated.
func Interval(period time.Duration) Trigger {
	return Trigger{Kind: TriggerInterval, Interval: period}
}

// WithWindow restricts an interval trigger to a daily wall-clock window.
func (t Trigger) WithWindow(start, end string) Trigger {
	t.WindowStart = start
	t.WindowEnd = end
	return t
}

// GatedBy marks an interval trigger as calendar-gated.
func (t Trigger) GatedBy() Trigger {
	t.GatedByCalendar = true
	return t
}

// Job is a unit of scheduled work, fired on either a cron or an interval
// Trigger and subject to a per-job GracePeriod.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Trigger() Trigger
	// GracePeriod is how long after a missed firing the orchestrator will
	// still run it; beyond this the firing is dropped. Zero means the
	// orchestrator's default (5 minutes).
	GracePeriod() time.Duration
}

// JobResult is one execution's outcome, kept for JobHistory.
type JobResult struct {
	JobName     string
	ScheduledAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Success     bool
	Error       string
	Dropped     bool // missed its grace period, never ran
	Coalesced   bool // suppressed because an instance was already in flight
}

// JobHistory retains a bounded window of a job's recent results.
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, keeping only the most recent 100.
func (h *JobHistory) AddResult(r JobResult) {
	h.Results = append(h.Results, r)
	if len(h.Results) > 100 {
		h.Results = h.Results[len(h.Results)-100:]
	}
}

// SuccessRate is the fraction of retained results that succeeded.
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	success := 0
	for _, r := range h.Results {
		if r.Success {
			success++
		}
	}
	return float64(success) / float64(len(h.Results))
}
