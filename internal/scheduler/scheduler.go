// Package scheduler owns every live timer: one recurring daily trigger per
// scheduled team and two one-shot timers per open standup. Jobs are keyed
// by a typed (kind, entity id) pair rendered as a gocron tag; replace and
// cancel are the only mutations and neither interrupts an in-flight run.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/standupbuddy/standupbuddy/internal/schedule"
)

// Kind identifies the job family a key belongs to.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindReminder Kind = "reminder"
	KindSummary  Kind = "summary"
)

// Key is the stable identity of one logical job.
type Key struct {
	Kind Kind
	ID   string
}

// Tag renders the key as the gocron tag.
func (k Key) Tag() string {
	return string(k.Kind) + ":" + k.ID
}

// Scheduler wraps a gocron scheduler with keyed registration.
//
// Daily triggers are chained one-shots: each firing computes the next
// instant from the schedule resolver and re-arms itself. A generation
// counter per key makes the re-arm yield to any replace or cancel that
// happened while the job body was running, so cancelled schedules stay
// cancelled without ever interrupting the run that already started.
type Scheduler struct {
	s   *gocron.Scheduler
	now func() time.Time

	mu   sync.Mutex
	gens map[string]uint64
}

// New creates a stopped Scheduler; call Start to begin firing jobs.
func New() *Scheduler {
	return &Scheduler{
		s:    gocron.NewScheduler(time.UTC),
		now:  time.Now,
		gens: make(map[string]uint64),
	}
}

// Start begins executing scheduled jobs asynchronously.
func (sc *Scheduler) Start() {
	sc.s.StartAsync()
}

// Stop halts the scheduler. Running jobs finish.
func (sc *Scheduler) Stop() {
	sc.s.Stop()
}

// Len returns the number of registered jobs, for the health surface.
func (sc *Scheduler) Len() int {
	return len(sc.s.Jobs())
}

// ReplaceDaily cancels any existing daily trigger for the entity and arms a
// new one firing at the schedule's next trigger instant, forever.
func (sc *Scheduler) ReplaceDaily(entityID string, spec schedule.Spec, fn func()) error {
	key := Key{Kind: KindDaily, ID: entityID}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gens[key.Tag()]++
	_ = sc.s.RemoveByTag(key.Tag())
	return sc.armDailyLocked(key, sc.gens[key.Tag()], spec, fn)
}

// CancelDaily removes the entity's daily trigger without a replacement.
// A run that already fired is unaffected.
func (sc *Scheduler) CancelDaily(entityID string) error {
	key := Key{Kind: KindDaily, ID: entityID}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gens[key.Tag()]++
	_ = sc.s.RemoveByTag(key.Tag())
	return nil
}

// armDailyLocked registers the next one-shot occurrence. Callers hold sc.mu.
func (sc *Scheduler) armDailyLocked(key Key, gen uint64, spec schedule.Spec, fn func()) error {
	next := schedule.NextTrigger(sc.now(), spec)
	if next.IsZero() {
		return nil
	}

	_, err := sc.s.Every(1).Day().StartAt(next).LimitRunsTo(1).Tag(key.Tag()).Do(func() {
		fn()
		sc.rearmDaily(key, gen, spec, fn)
	})
	if err != nil {
		return err
	}

	slog.Debug("daily trigger armed", "key", key.Tag(), "next", next)
	return nil
}

func (sc *Scheduler) rearmDaily(key Key, gen uint64, spec schedule.Spec, fn func()) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Replaced or cancelled while this run was executing: the newer
	// registration (or the cancellation) owns the key now.
	if sc.gens[key.Tag()] != gen {
		return
	}

	_ = sc.s.RemoveByTag(key.Tag())
	if err := sc.armDailyLocked(key, gen, spec, fn); err != nil {
		slog.Error("failed to re-arm daily trigger", "key", key.Tag(), "error", err)
	}
}

// scheduleOnce arms a one-shot job firing once after delay. One-shots are
// never rescheduled or cancelled; they unregister themselves after firing
// since a run-limited job otherwise stays in the scheduler forever.
func (sc *Scheduler) scheduleOnce(key Key, delay time.Duration, fn func()) (string, error) {
	tag := key.Tag()
	_, err := sc.s.Every(1).Day().StartAt(sc.now().Add(delay)).LimitRunsTo(1).Tag(tag).Do(func() {
		fn()
		_ = sc.s.RemoveByTag(tag)
	})
	if err != nil {
		return "", err
	}
	return tag, nil
}

// ScheduleReminder arms the reminder one-shot for a standup.
func (sc *Scheduler) ScheduleReminder(entityID string, delay time.Duration, fn func()) (string, error) {
	return sc.scheduleOnce(Key{Kind: KindReminder, ID: entityID}, delay, fn)
}

// ScheduleSummary arms the summary one-shot for a standup.
func (sc *Scheduler) ScheduleSummary(entityID string, delay time.Duration, fn func()) (string, error) {
	return sc.scheduleOnce(Key{Kind: KindSummary, ID: entityID}, delay, fn)
}
