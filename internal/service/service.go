// Package service implements the reminder lifecycle: creation with
// store-level deduplication, the PENDING→FIRED transition, and fan-out to
// notification sinks.
//
// The Service is the single choke point between the delay queue and the
// store: it is the only component allowed to mutate reminder status. The
// queue hands back bare IDs when entries come due; the service resolves each
// ID against the store with a conditional update, so a stale queue entry
// (crash-recovery races, duplicate schedules) degrades to a silent no-op
// instead of a duplicate notification.
//
// Data flow:
//
//	client → Service.AddReminder → Store (conditional insert) → Queue.Push
//	       → [time passes] → Queue fires id → due channel → Service.OnReminderDue
//	       → Store (CAS to FIRED) → Sink.ReminderFired
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sneh-joshi/remindd/internal/clock"
	"github.com/sneh-joshi/remindd/internal/metrics"
	"github.com/sneh-joshi/remindd/internal/scheduler"
	"github.com/sneh-joshi/remindd/internal/store"
	"github.com/sneh-joshi/remindd/internal/types"
)

// ─── Error sentinels ──────────────────────────────────────────────────────────

var (
	// ErrValidation is returned by AddReminder for malformed input. No store
	// or queue interaction has happened when this is returned.
	ErrValidation = errors.New("service: invalid reminder")

	// ErrInconsistentState is returned when the store rejected an insert as a
	// duplicate but no PENDING reminder with that name can be found. Under
	// single-writer discipline this cannot happen; it indicates a collaborator
	// contract violation and is not retried.
	ErrInconsistentState = errors.New("service: conflicting insert but no pending reminder found")
)

// maxNameLen is the upper bound on reminder name length, in characters.
const maxNameLen = 256

// dueBuffer sizes the channel between the queue's fire callback and the due
// worker. Large enough that a burst of simultaneous fires never blocks the
// timer goroutine behind a slow store write.
const dueBuffer = 1024

// ─── Collaborator contracts ───────────────────────────────────────────────────

// Sink receives fired-reminder events. Fire-and-forget: the service does not
// depend on any return value, and delivery to external subscribers is
// at-least-once at best.
type Sink interface {
	ReminderFired(ev types.FiredEvent)
}

// MultiSink fans each fired event out to every sink in order. The durable
// sink (journal) should come first so an event is recorded before any
// broadcast attempt.
type MultiSink []Sink

func (m MultiSink) ReminderFired(ev types.FiredEvent) {
	for _, s := range m {
		s.ReminderFired(ev)
	}
}

// ─── Request / Response types ─────────────────────────────────────────────────

// Result is the outcome of AddReminder. Created is false when an existing
// PENDING reminder with the same name was returned instead of creating a new
// one.
type Result struct {
	Reminder *types.Reminder
	Created  bool
}

// ─── Option / functional options ─────────────────────────────────────────────

// Option is a functional option for the Service.
type Option func(*Service)

// WithMetrics attaches a metrics.Registry so lifecycle events increment the
// relevant counters.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Service) { s.metrics = reg }
}

// WithCatchUp controls what Bootstrap does with reminders that came due while
// the process was down. Enabled (the default) schedules them so they fire
// immediately; disabled leaves them PENDING and logs each one for manual
// reconciliation.
func WithCatchUp(enabled bool) Option {
	return func(s *Service) { s.catchUp = enabled }
}

// ─── Service ──────────────────────────────────────────────────────────────────

// Service orchestrates the reminder lifecycle between queue, store, and sink.
//
// All methods are safe for concurrent use.
type Service struct {
	queue scheduler.Queue
	store store.Store
	sink  Sink
	clk   clock.Clock

	metrics *metrics.Registry
	catchUp bool

	due chan string
	wg  sync.WaitGroup
}

// New creates a Service. Call Start to begin consuming due reminders, then
// Bootstrap to load the PENDING set, before the gateway accepts input.
func New(q scheduler.Queue, st store.Store, sink Sink, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		queue:   q,
		store:   st,
		sink:    sink,
		clk:     clk,
		catchUp: true,
		due:     make(chan string, dueBuffer),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the due worker and wires the queue's fire callback into it.
// The callback only enqueues the ID, keeping store and sink I/O off the
// queue's timer path; the worker processes IDs strictly in fire order, and a
// failure on one reminder never stops the ones behind it.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.dueWorker(ctx)

	s.queue.Start(ctx, func(id string) {
		select {
		case s.due <- id:
		case <-ctx.Done():
		}
	})
}

// Stop waits for the due worker to exit. Cancel the Start context first.
func (s *Service) Stop() {
	s.wg.Wait()
}

func (s *Service) dueWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.due:
			if err := s.OnReminderDue(id); err != nil {
				slog.Error("reminder due handling failed", "id", id, "err", err)
			}
		}
	}
}

// Bootstrap loads all PENDING reminders from the store into the queue.
// Called once at process startup; in-memory queue state is rebuilt from
// durable PENDING records, never persisted itself.
func (s *Service) Bootstrap() error {
	pending, err := s.store.List(types.StatusPending)
	if err != nil {
		return fmt.Errorf("service: bootstrap list pending: %w", err)
	}

	nowMs := s.clk.Now().UnixMilli()
	items := make([]scheduler.Item, 0, len(pending))
	skipped := 0
	for _, r := range pending {
		if !s.catchUp && r.At <= nowMs {
			slog.Warn("skipping overdue reminder at bootstrap (catch_up disabled)",
				"id", r.ID, "name", r.Name, "at", r.AtTime())
			skipped++
			continue
		}
		items = append(items, scheduler.Item{ID: r.ID, At: r.At})
	}

	s.queue.Load(items)
	slog.Info("bootstrap complete", "scheduled", len(items), "skipped_overdue", skipped)
	return nil
}

// AddReminder validates input, then attempts an atomic "insert unless a
// PENDING reminder with this name exists" against the store.
//
// On a fresh insert the reminder is pushed into the queue and returned with
// Created=true. On a conflict the existing PENDING reminder is returned with
// Created=false and nothing is pushed — retried or duplicate creation
// requests for a still-pending name are no-ops referencing the original.
func (s *Service) AddReminder(name, atISO string) (*Result, error) {
	atMs, err := s.validate(name, atISO)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ValidationErrs.Add(1)
		}
		return nil, err
	}

	rem, err := s.store.InsertIfNotExists(name, atMs)
	if err != nil {
		return nil, fmt.Errorf("service: insert reminder: %w", err)
	}
	if rem != nil {
		s.queue.Push(rem.ID, rem.At)
		if s.metrics != nil {
			s.metrics.Created.Add(1)
		}
		slog.Info("reminder created", "id", rem.ID, "name", rem.Name, "at", rem.AtTime())
		return &Result{Reminder: rem, Created: true}, nil
	}

	existing, err := s.store.GetPendingByName(name)
	if errors.Is(err, store.ErrNotFound) {
		// The store reported a conflict moments ago, yet no PENDING record
		// exists now. A collaborator broke the single-writer contract.
		return nil, fmt.Errorf("%w: name %q", ErrInconsistentState, name)
	}
	if err != nil {
		return nil, fmt.Errorf("service: fetch existing reminder: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Duplicates.Add(1)
	}
	slog.Info("returning existing pending reminder", "id", existing.ID, "name", existing.Name)
	return &Result{Reminder: existing, Created: false}, nil
}

// OnReminderDue handles one due reminder by ID. The store transition is
// conditional: if the record is no longer PENDING (already fired, or unknown
// — a stale queue entry from a crash-recovery race) this is a silent no-op
// and nothing is notified.
func (s *Service) OnReminderDue(id string) error {
	firedAt := s.clk.Now().UnixMilli()

	rem, err := s.store.SetFiredStatus(id, firedAt)
	if err != nil {
		return fmt.Errorf("service: set fired status for %s: %w", id, err)
	}
	if rem == nil {
		// Expected under crash-recovery races; not a failure.
		if s.metrics != nil {
			s.metrics.StaleFires.Add(1)
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.Fired.Add(1)
	}
	slog.Info("reminder fired", "id", rem.ID, "name", rem.Name,
		"at", rem.AtTime(), "fired_at", time.UnixMilli(rem.FiredAt).UTC())

	s.sink.ReminderFired(types.FiredEvent{
		ID:      rem.ID,
		Name:    rem.Name,
		At:      rem.At,
		FiredAt: rem.FiredAt,
	})
	return nil
}

// validate checks the AddReminder arguments and returns the parsed fire time
// in UTC milliseconds.
func (s *Service) validate(name, atISO string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return 0, fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLen)
	}

	at, err := time.Parse(time.RFC3339, atISO)
	if err != nil {
		return 0, fmt.Errorf("%w: at %q is not a valid RFC 3339 timestamp", ErrValidation, atISO)
	}

	atMs := at.UnixMilli()
	if atMs <= s.clk.Now().UnixMilli() {
		return 0, fmt.Errorf("%w: at must be strictly in the future", ErrValidation)
	}
	return atMs, nil
}
