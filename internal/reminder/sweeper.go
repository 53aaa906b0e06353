// Package reminder runs the periodic sweep that notifies users about open
// tasks falling due soon and marks them so they are not notified twice.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/taskminder/internal/model"
	"github.com/nhle/taskminder/internal/notify"
)

// ErrSweepInProgress is returned by RunOnce when another sweep has not finished.
var ErrSweepInProgress = errors.New("reminder sweep already in progress")

// Subject is the subject line of every reminder.
const Subject = "Task Reminder"

// dueLayout formats the due date in reminder bodies.
const dueLayout = "Mon, 02 Jan 2006 15:04 MST"

// Store is the slice of store.TaskStore the sweeper needs.
type Store interface {
	ListCollections(ctx context.Context) ([]model.UserTaskCollection, error)
	MarkReminded(ctx context.Context, email string, ids []string) error
}

// Config tunes a Sweeper. Zero values fall back to the defaults noted on
// each field.
type Config struct {
	// Interval is the sweep period. Default 1h.
	Interval time.Duration

	// Lookahead is the window width after now. Default 1h.
	Lookahead time.Duration

	// Delivery is model.DeliveryAtMostOnce (default) or model.DeliveryAtLeastOnce.
	Delivery string

	// Workers bounds how many collections are processed at once. Default 4.
	Workers int

	// DispatchTimeout bounds a single notification. Default 30s.
	DispatchTimeout time.Duration

	// Location is used for due dates without an offset. Default UTC.
	Location *time.Location

	// Clock returns the current time. Default time.Now.
	Clock func() time.Time
}

// ConfigFrom converts the application settings into a sweeper Config.
func ConfigFrom(rc model.ReminderConfig) Config {
	return Config{
		Interval:        rc.Interval,
		Lookahead:       rc.Lookahead,
		Delivery:        rc.Delivery,
		Workers:         rc.Workers,
		DispatchTimeout: rc.DispatchTimeout,
		Location:        rc.Location(),
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Lookahead <= 0 {
		c.Lookahead = time.Hour
	}
	if c.Delivery == "" {
		c.Delivery = model.DeliveryAtMostOnce
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 30 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Result summarizes one sweep.
type Result struct {
	Now         time.Time
	Collections int
	Due         int
	Sent        int
	Failed      int
	Marked      int
	SaveErrors  int
}

// State is the lifecycle state of the sweeper.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Status reports the sweeper's current state and its last completed sweep.
type Status struct {
	State      State
	Scheduled  bool
	LastRun    time.Time
	LastResult Result
	Error      error
}

// Sweeper scans every collection for tasks due within the lookahead window.
type Sweeper struct {
	store    Store
	notifier notify.Notifier
	cfg      Config
	log      *logrus.Entry

	mu       sync.Mutex
	sweeping bool
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
	status   Status
}

// New creates a Sweeper.
func New(s Store, n notify.Notifier, cfg Config, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:    s,
		notifier: n,
		cfg:      cfg.withDefaults(),
		log:      log.WithField("component", "reminder"),
	}
}

// Start runs a sweep at every interval boundary until Stop is called or
// ctx is done. Calling Start on a running sweeper does nothing.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = true
	sw.stopCh = make(chan struct{})
	sw.done = make(chan struct{})
	sw.status.Scheduled = true
	stopCh, done := sw.stopCh, sw.done
	sw.mu.Unlock()

	go sw.loop(ctx, stopCh, done)
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	close(sw.stopCh)
	sw.running = false
	sw.status.Scheduled = false
	done := sw.done
	sw.mu.Unlock()

	<-done
}

// Status returns a snapshot of the sweeper state.
func (sw *Sweeper) Status() Status {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.status
}

func (sw *Sweeper) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		now := sw.cfg.Clock()
		timer := time.NewTimer(nextTick(now, sw.cfg.Interval).Sub(now))

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			sw.unschedule(stopCh)
			return
		case <-timer.C:
		}

		if _, err := sw.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrSweepInProgress) {
				sw.log.Warn("previous sweep still running, skipping tick")
				continue
			}
			sw.log.WithError(err).Error("reminder sweep failed")
		}
	}
}

// unschedule clears the running flags when the loop that owns stopCh exits
// on its own, so a later Start schedules again.
func (sw *Sweeper) unschedule(stopCh <-chan struct{}) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running && sw.stopCh == stopCh {
		sw.running = false
		sw.status.Scheduled = false
	}
}

// RunOnce performs a single sweep. It returns ErrSweepInProgress without
// doing anything if another sweep is running. Per-collection failures are
// logged and counted in the Result; only a failure to list collections is
// returned as an error.
func (sw *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	sw.mu.Lock()
	if sw.sweeping {
		sw.mu.Unlock()
		sweepsTotal.WithLabelValues("skipped").Inc()
		return Result{}, ErrSweepInProgress
	}
	sw.sweeping = true
	sw.status.State = StateRunning
	sw.mu.Unlock()

	start := time.Now()
	res, err := sw.sweep(ctx)
	sweepDuration.Observe(time.Since(start).Seconds())

	sw.mu.Lock()
	sw.sweeping = false
	sw.status.LastRun = res.Now
	sw.status.LastResult = res
	sw.status.Error = err
	if err != nil {
		sw.status.State = StateError
	} else {
		sw.status.State = StateIdle
	}
	sw.mu.Unlock()

	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	sweepsTotal.WithLabelValues("success").Inc()
	lastSweepTimestamp.Set(float64(res.Now.Unix()))

	sw.log.WithFields(logrus.Fields{
		"collections": res.Collections,
		"due":         res.Due,
		"sent":        res.Sent,
		"failed":      res.Failed,
		"save_errors": res.SaveErrors,
	}).Info("reminder sweep finished")
	return res, nil
}

// collectionResult is the outcome of processing one user's collection.
type collectionResult struct {
	due, sent, failed, marked int
	saveErr                   bool
}

func (sw *Sweeper) sweep(ctx context.Context) (Result, error) {
	now := sw.cfg.Clock()
	horizon := now.Add(sw.cfg.Lookahead)
	res := Result{Now: now}

	cols, err := sw.store.ListCollections(ctx)
	if err != nil {
		return res, fmt.Errorf("listing collections: %w", err)
	}
	res.Collections = len(cols)

	jobs := make(chan model.UserTaskCollection)
	results := make(chan collectionResult, len(cols))

	var wg sync.WaitGroup
	for i := 0; i < sw.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for col := range jobs {
				results <- sw.processCollection(ctx, col, now, horizon)
			}
		}()
	}
	for _, col := range cols {
		jobs <- col
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		res.Due += r.due
		res.Sent += r.sent
		res.Failed += r.failed
		res.Marked += r.marked
		if r.saveErr {
			res.SaveErrors++
		}
	}
	return res, nil
}

// processCollection notifies the owner about each eligible task and then
// saves the reminded flags with one write.
func (sw *Sweeper) processCollection(
	ctx context.Context,
	col model.UserTaskCollection,
	now, horizon time.Time,
) collectionResult {
	var r collectionResult
	var mark []string
	log := sw.log.WithField("email", col.Email)

	for _, task := range col.Tasks {
		due, ok := sw.eligible(task, now, horizon)
		if !ok {
			continue
		}
		r.due++

		err := sw.dispatch(ctx, col.Email, task, due)
		if err != nil {
			r.failed++
			remindersTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("task_id", task.ID).Warn("reminder dispatch failed")
			if sw.cfg.Delivery == model.DeliveryAtLeastOnce {
				continue
			}
		} else {
			r.sent++
			remindersTotal.WithLabelValues("sent").Inc()
		}
		mark = append(mark, task.ID)
	}

	if len(mark) == 0 {
		return r
	}
	if err := sw.store.MarkReminded(ctx, col.Email, mark); err != nil {
		r.saveErr = true
		collectionErrorsTotal.Inc()
		log.WithError(err).Error("saving reminded flags")
		return r
	}
	r.marked = len(mark)
	return r
}

// eligible reports whether task should be reminded now, returning its
// parsed due time. Unparseable due dates are never due.
func (sw *Sweeper) eligible(task model.Task, now, horizon time.Time) (time.Time, bool) {
	if task.Status != model.StatusOpen || task.Reminded {
		return time.Time{}, false
	}
	due, err := model.ParseDueDate(task.DueDate, sw.cfg.Location)
	if err != nil {
		sw.log.WithFields(logrus.Fields{
			"task_id":  task.ID,
			"due_date": task.DueDate,
		}).Debug("skipping task with unparseable due date")
		return time.Time{}, false
	}
	if !dueWithin(due, now, horizon) {
		return time.Time{}, false
	}
	return due, true
}

func (sw *Sweeper) dispatch(ctx context.Context, email string, task model.Task, due time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, sw.cfg.DispatchTimeout)
	defer cancel()

	return sw.notifier.Notify(ctx, Message(email, task, due.In(sw.cfg.Location)))
}

// Message builds the reminder for task, owned by email and due at due.
func Message(email string, task model.Task, due time.Time) notify.Message {
	return notify.Message{
		To:      email,
		Subject: Subject,
		Body: fmt.Sprintf(
			"Hi, your task %q is due at %s. Please complete it soon.",
			task.Title, due.Format(dueLayout),
		),
	}
}
