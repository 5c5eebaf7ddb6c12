package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"medbuddy/internal/events"
	"medbuddy/internal/reminder"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("scheduler stopped")

type Store interface {
	Get(ctx context.Context, id uint64) (reminder.Reminder, error)
	List(ctx context.Context) ([]reminder.Reminder, error)
	ListByStatus(ctx context.Context, status string) ([]reminder.Reminder, error)
	Transition(ctx context.Context, id uint64, from, to string) (bool, error)
}

type Gateway interface {
	PlaceCall(ctx context.Context, medication, message string) error
}

type Publisher interface {
	Publish(ev events.Event)
}

// Scheduler owns the timers for scheduled reminders. At most one timer exists
// per reminder id. Each firing runs on its own goroutine; the table lock is
// never held across the call or the store write.
//
// Cancel is best effort once a timer has fired and the call is in flight:
// the call completes and the status settles to completed or failed.
type Scheduler struct {
	store Store
	gw    Gateway
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	actions map[uint64]*action
	stopped bool
	firing  sync.WaitGroup

	// serializes snapshot and publish so events leave in snapshot order
	broadcastMu sync.Mutex
}

func New(store Store, gw Gateway, pub Publisher, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:   store,
		gw:      gw,
		pub:     pub,
		log:     log,
		now:     time.Now,
		actions: map[uint64]*action{},
	}
}

// Schedule parses timeText and arms a timer for id, replacing any existing one.
func (s *Scheduler) Schedule(id uint64, medication, timeText string) error {
	runAt, err := ParseTime(timeText, s.now())
	if err != nil {
		s.log.Warn("unparseable reminder time", zap.Uint64("reminder_id", id), zap.String("time", timeText))
		return fmt.Errorf("%w: %q", err, timeText)
	}
	return s.ScheduleAt(id, medication, runAt)
}

// ScheduleAt arms a timer for id at runAt. A runAt in the past fires right away.
func (s *Scheduler) ScheduleAt(id uint64, medication string, runAt time.Time) error {
	a := &action{ReminderID: id, Medication: medication, RunAt: runAt}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	replaced := false
	if old, ok := s.actions[id]; ok {
		old.timer.Stop()
		replaced = true
	}

	delay := runAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	a.timer = time.AfterFunc(delay, func() { s.fire(a) })
	s.actions[id] = a

	s.log.Info("reminder scheduled",
		zap.Uint64("reminder_id", id),
		zap.String("medication", medication),
		zap.Time("run_at", runAt),
		zap.Bool("replaced", replaced),
	)
	return nil
}

// Cancel disarms the timer for id. It reports whether one was pending;
// cancelling an unknown, fired or cancelled id is not an error.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	a, ok := s.actions[id]
	if ok {
		a.timer.Stop()
		delete(s.actions, id)
	}
	s.mu.Unlock()

	if ok {
		s.log.Info("reminder timer cancelled", zap.Uint64("reminder_id", id))
	}
	return ok
}

// Pending lists reminder ids with an armed timer, ascending.
func (s *Scheduler) Pending() []uint64 {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.actions))
	for id := range s.actions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Broadcast publishes the current reminder list read fresh from the store.
// Concurrent callers publish one at a time, each with a snapshot no older
// than the one published before it.
func (s *Scheduler) Broadcast(ctx context.Context) {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	rows, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("broadcast skipped, cannot list reminders", zap.Error(err))
		return
	}
	s.pub.Publish(events.Event{Type: events.RemindersUpdated, Data: rows})
}

// Restore re-arms every reminder still marked scheduled, using its stored run
// time. Rows without one (imported from the older table layout) fall back to
// parsing their time text; rows whose text does not parse are left unarmed.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	rows, err := s.store.ListByStatus(ctx, reminder.StatusScheduled)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if r.RunAt.IsZero() {
			err = s.Schedule(r.ID, r.Medication, r.Time)
			if errors.Is(err, ErrInvalidTimeFormat) {
				continue
			}
		} else {
			err = s.ScheduleAt(r.ID, r.Medication, r.RunAt)
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Stop disarms all timers and waits for in-flight firings to settle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, a := range s.actions {
		a.timer.Stop()
		delete(s.actions, id)
	}
	s.mu.Unlock()

	s.firing.Wait()
}

func (s *Scheduler) fire(a *action) {
	s.mu.Lock()
	cur, ok := s.actions[a.ReminderID]
	if !ok || cur != a || s.stopped {
		// replaced or cancelled after the timer went off
		s.mu.Unlock()
		return
	}
	delete(s.actions, a.ReminderID)
	s.firing.Add(1)
	s.mu.Unlock()

	defer s.firing.Done()
	s.execute(context.Background(), a)
}

func (s *Scheduler) execute(ctx context.Context, a *action) {
	log := s.log.With(zap.Uint64("reminder_id", a.ReminderID), zap.String("medication", a.Medication))

	r, err := s.store.Get(ctx, a.ReminderID)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		log.Info("reminder deleted before firing")
		return
	case err != nil:
		log.Error("cannot read reminder before firing, calling anyway", zap.Error(err))
	case r.Status != reminder.StatusScheduled:
		log.Info("reminder no longer scheduled, skipping call", zap.String("status", r.Status))
		return
	}

	status := reminder.StatusCompleted
	if err := s.placeCall(ctx, a.Medication); err != nil {
		log.Error("reminder call failed", zap.Error(err))
		status = reminder.StatusFailed
	}

	changed, err := s.store.Transition(ctx, a.ReminderID, reminder.StatusScheduled, status)
	if err != nil {
		log.Error("cannot record reminder outcome", zap.String("status", status), zap.Error(err))
	} else if !changed {
		log.Info("reminder status settled elsewhere", zap.String("outcome", status))
	} else {
		log.Info("reminder fired", zap.String("status", status))
	}

	s.Broadcast(ctx)
}

func (s *Scheduler) placeCall(ctx context.Context, medication string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("call gateway panic: %v", p)
		}
	}()
	return s.gw.PlaceCall(ctx, medication, "")
}
