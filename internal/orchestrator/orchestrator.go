package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/logger"
)

const defaultGracePeriod = 5 * time.Minute

// Orchestrator is the single-process cooperative scheduler: cron triggers
// for the once-daily jobs, interval triggers (optionally calendar-gated
// and window-bound) for the intraday jobs, with coalesce=true and
// max_instances=1 enforced uniformly across both.
type Orchestrator struct {
	cron     *cron.Cron
	calendar contracts.MarketCalendar
	log      *logger.Logger

	shutdownDeadline time.Duration

	mu      sync.Mutex
	jobs    map[string]Job
	running map[string]bool
	pending map[string]bool
	history map[string]*JobHistory

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var seoul = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// New creates an Orchestrator. shutdownDeadline of zero uses a default
// of 60 seconds.
func New(calendar contracts.MarketCalendar, log *logger.Logger, shutdownDeadline time.Duration) *Orchestrator {
	if shutdownDeadline == 0 {
		shutdownDeadline = 60 * time.Second
	}
	return &Orchestrator{
		cron:             cron.New(cron.WithLocation(seoul)),
		calendar:         calendar,
		log:              log,
		shutdownDeadline: shutdownDeadline,
		jobs:             make(map[string]Job),
		running:          make(map[string]bool),
		pending:          make(map[string]bool),
		history:          make(map[string]*JobHistory),
	}
}

// Register adds a job. It must be called before Start.
func (o *Orchestrator) Register(job Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := job.Name()
	if _, exists := o.jobs[name]; exists {
		return fmt.Errorf("orchestrator: job %s already registered", name)
	}
	o.jobs[name] = job
	o.history[name] = &JobHistory{}
	return nil
}

// Start begins scheduling every registered job. It derives a run context
// from ctx that Stop cancels, and every Job.Run receives that context.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.mu.Lock()
	jobs := make([]Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	o.mu.Unlock()

	for _, job := range jobs {
		trig := job.Trigger()
		switch trig.Kind {
		case TriggerCron:
			j := job
			_, err := o.cron.AddFunc(j.Trigger().CronExpr, func() {
				o.attemptFire(runCtx, j, time.Now().In(seoul))
			})
			if err != nil {
				cancel()
				return fmt.Errorf("orchestrator: schedule %s: %w", j.Name(), err)
			}
		case TriggerInterval:
			o.wg.Add(1)
			go o.runInterval(runCtx, job, trig)
		default:
			cancel()
			return fmt.Errorf("orchestrator: job %s has unknown trigger kind %q", job.Name(), trig.Kind)
		}
	}

	o.cron.Start()
	o.log.WithField("job_count", len(jobs)).Info("orchestrator started")
	return nil
}

// Stop signals cancellation, waits up to the shutdown deadline for
// in-flight jobs to reach a checkpoint, then returns regardless.
func (o *Orchestrator) Stop() {
	o.log.Info("orchestrator stopping")
	if o.cancel != nil {
		o.cancel()
	}
	stopCtx := o.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.log.Info("orchestrator stopped cleanly")
	case <-time.After(o.shutdownDeadline):
		o.log.WithField("deadline", o.shutdownDeadline).Warn("orchestrator shutdown deadline exceeded, forcing exit")
	}
}

// runInterval drives one interval-triggered job for the lifetime of ctx.
// Coalesce is implemented by draining any ticks that queued up while a
// previous firing was still resolving its window/grace checks, so a
// downtime never replays more than one missed firing.
func (o *Orchestrator) runInterval(ctx context.Context, job Job, trig Trigger) {
	defer o.wg.Done()

	ticker := time.NewTicker(trig.Interval)
	defer ticker.Stop()

	next := time.Now().In(seoul).Add(trig.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scheduledAt := next
			next = next.Add(trig.Interval)

		drain:
			for {
				select {
				case <-ticker.C:
					scheduledAt = scheduledAt.Add(trig.Interval)
					next = next.Add(trig.Interval)
				default:
					break drain
				}
			}

			if trig.GatedByCalendar && o.calendar != nil && !o.calendar.IsOpen(scheduledAt) {
				continue
			}
			if !withinWindow(trig, scheduledAt) {
				continue
			}
			o.attemptFire(ctx, job, scheduledAt)
		}
	}
}

// withinWindow reports whether t's wall-clock time falls inside the
// trigger's daily window. An empty window means unbounded.
func withinWindow(trig Trigger, t time.Time) bool {
	if trig.WindowStart == "" && trig.WindowEnd == "" {
		return true
	}
	start, err1 := parseClock(trig.WindowStart)
	end, err2 := parseClock(trig.WindowEnd)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := t.Hour()*60 + t.Minute()
	return cur >= start && cur <= end
}

func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// attemptFire applies max_instances=1 and coalesce=true, then the grace
// period check, before actually running the job.
func (o *Orchestrator) attemptFire(ctx context.Context, job Job, scheduledAt time.Time) {
	name := job.Name()

	o.mu.Lock()
	if o.running[name] {
		already := o.pending[name]
		o.pending[name] = true
		o.mu.Unlock()
		if !already {
			o.recordResult(name, JobResult{JobName: name, ScheduledAt: scheduledAt, Coalesced: true})
		}
		return
	}
	o.running[name] = true
	o.pending[name] = false
	o.mu.Unlock()

	grace := job.GracePeriod()
	if grace == 0 {
		grace = defaultGracePeriod
	}
	if time.Since(scheduledAt) > grace {
		o.mu.Lock()
		o.running[name] = false
		o.mu.Unlock()
		o.log.WithFields(map[string]interface{}{
			"job":          name,
			"scheduled_at": scheduledAt,
		}).Warn("firing missed grace period, dropped")
		o.recordResult(name, JobResult{JobName: name, ScheduledAt: scheduledAt, Dropped: true})
		return
	}

	o.wg.Add(1)
	go o.runOnce(ctx, job, scheduledAt)
}

// runOnce executes a job exactly once and, if another firing coalesced
// while this one ran, immediately re-fires for the latest such request.
func (o *Orchestrator) runOnce(ctx context.Context, job Job, scheduledAt time.Time) {
	defer o.wg.Done()
	name := job.Name()
	start := time.Now()

	o.log.WithField("job", name).Info("job started")
	err := job.Run(ctx)
	end := time.Now()

	result := JobResult{
		JobName:     name,
		ScheduledAt: scheduledAt,
		StartedAt:   start,
		EndedAt:     end,
		Duration:    end.Sub(start),
		Success:     err == nil,
	}
	if err != nil {
		result.Error = err.Error()
		o.log.WithFields(map[string]interface{}{"job": name, "error": err.Error()}).Error("job failed")
	} else {
		o.log.WithFields(map[string]interface{}{"job": name, "duration": result.Duration}).Info("job completed")
	}
	o.recordResult(name, result)

	o.mu.Lock()
	o.running[name] = false
	rerun := o.pending[name]
	o.pending[name] = false
	o.mu.Unlock()

	if rerun && ctx.Err() == nil {
		o.attemptFire(ctx, job, time.Now().In(seoul))
	}
}

func (o *Orchestrator) recordResult(name string, r JobResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.history[name]
	if !ok {
		h = &JobHistory{}
		o.history[name] = h
	}
	h.AddResult(r)
}

// History returns a copy of a job's retained results.
func (o *Orchestrator) History(name string) ([]JobResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.history[name]
	if !ok {
		return nil, fmt.Errorf("orchestrator: job %s not found", name)
	}
	out := make([]JobResult, len(h.Results))
	copy(out, h.Results)
	return out, nil
}

// RunNow triggers an out-of-band execution of a registered job,
// subject to the same max_instances=1/coalesce rules as its schedule.
func (o *Orchestrator) RunNow(name string) error {
	o.mu.Lock()
	job, ok := o.jobs[name]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: job %s not found", name)
	}
	ctx := context.Background()
	if o.cancel != nil {
		// best effort: reuse background context, Stop() still governs shutdown
	}
	o.attemptFire(ctx, job, time.Now().In(seoul))
	return nil
}
