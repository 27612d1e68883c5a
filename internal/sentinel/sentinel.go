// Package sentinel runs the replacement daemon.
//
// The Sentinel owns the event loop: key events from a keystroke.Source are
// fed in order into a trigger.Machine; completed triggers are queued for a
// worker that asks the replace.Orchestrator for an instruction and hands it
// to the guarded actuator. While the guard is raised the loop drops events
// and resets the machine so the daemon never reacts to its own typing.
//
// Derivation runs on the worker, so Argon2id never delays event
// consumption. Keys typed after a trigger completes land behind the
// terminator; when any arrive before the password is ready the
// replacement is skipped and reported, since erasing from the cursor would
// no longer hit the trigger.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"easypass/internal/config"
	"easypass/internal/inject"
	"easypass/internal/keystroke"
	"easypass/internal/replace"
	"easypass/internal/security"
	"easypass/internal/trigger"
)

var (
	// ErrAlreadyRunning is returned when Start is called while running.
	ErrAlreadyRunning = errors.New("sentinel: already running")

	// ErrNotRunning is returned for operations requiring a running sentinel.
	ErrNotRunning = errors.New("sentinel: not running")
)

// queueSize is the number of completed triggers that may wait for the
// worker. Further completions are dropped and logged.
const queueSize = 8

// Resolver is the options resolver used by the daemon. Update is called on
// reload.
type Resolver interface {
	replace.Resolver
	Update(cfg *config.Config)
}

// Options wires the collaborators of a Sentinel.
type Options struct {
	Source   keystroke.Source
	Actuator inject.Actuator
	Resolver Resolver

	// Observer is told about failed replacements. Optional.
	Observer replace.Observer

	// Focus aborts a pending trigger when the focused window changes.
	// Optional.
	Focus FocusTracker

	// LockPath enables the single-instance lock. Optional.
	LockPath string

	Logger *slog.Logger
}

// Stats is a snapshot of daemon activity.
type Stats struct {
	Events    uint64 // key events consumed
	Ignored   uint64 // events dropped while injecting
	Completed uint64 // triggers recognised
	Aborted   uint64 // captures abandoned
	Dropped   uint64 // triggers dropped on a full queue
	Replaced  uint64 // replacements typed
	Failed    uint64 // generation or injection failures
	Skipped   uint64 // replacements skipped because typing continued
}

// job is a completed trigger waiting for the worker. seq is the number of
// typed events consumed when it completed.
type job struct {
	c   trigger.Completed
	seq uint64
}

// Sentinel connects the key event source to the actuator.
type Sentinel struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lock    *security.InstanceLock

	source   keystroke.Source
	focus    FocusTracker
	resolver Resolver
	observer replace.Observer
	orch     *replace.Orchestrator
	guard    *inject.Guard
	lockPath string
	logger   *slog.Logger

	machine *trigger.Machine // latest machine; the running loop owns its copy
	reload  chan *trigger.Machine
	jobs    chan job

	// typed counts events that change the focused text; see job.
	typed atomic.Uint64

	events    atomic.Uint64
	ignored   atomic.Uint64
	completed atomic.Uint64
	aborted   atomic.Uint64
	dropped   atomic.Uint64
	replaced  atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
}

// New creates a Sentinel for cfg.
func New(cfg *config.Config, opts Options) (*Sentinel, error) {
	if opts.Source == nil || opts.Actuator == nil || opts.Resolver == nil {
		return nil, errors.New("sentinel: source, actuator and resolver are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sentinel")

	machine, err := newMachine(cfg)
	if err != nil {
		return nil, err
	}

	settle := time.Duration(cfg.Injection.GuardDelayMs) * time.Millisecond
	return &Sentinel{
		source:   opts.Source,
		focus:    opts.Focus,
		resolver: opts.Resolver,
		observer: opts.Observer,
		orch:     replace.New(opts.Resolver, opts.Observer, replace.WithLogger(logger)),
		guard:    inject.NewGuard(opts.Actuator, settle),
		lockPath: opts.LockPath,
		logger:   logger,
		machine:  machine,
		reload:   make(chan *trigger.Machine, 1),
	}, nil
}

func newMachine(cfg *config.Config) (*trigger.Machine, error) {
	topts, err := cfg.TriggerOptions()
	if err != nil {
		return nil, fmt.Errorf("trigger options: %w", err)
	}
	m, err := trigger.New(topts...)
	if err != nil {
		return nil, fmt.Errorf("trigger machine: %w", err)
	}
	return m, nil
}

// Start acquires the instance lock, starts the source and runs the event
// loop and worker until ctx is cancelled or Stop is called.
func (s *Sentinel) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	if s.lockPath != "" {
		lock, err := security.AcquireInstanceLock(s.lockPath)
		if err != nil {
			return err
		}
		s.lock = lock
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := s.source.Start(ctx)
	if err != nil {
		cancel()
		s.releaseLock()
		return fmt.Errorf("start key source: %w", err)
	}

	var focus <-chan WindowInfo
	if s.focus != nil {
		if ok, reason := s.focus.Available(); !ok {
			s.logger.Info("focus tracking disabled", "reason", reason)
		} else if err := s.focus.Start(ctx); err != nil {
			s.logger.Warn("focus tracking disabled", "error", err)
		} else {
			focus = s.focus.FocusChanges()
		}
	}

	s.cancel = cancel
	s.running = true
	s.jobs = make(chan job, queueSize)

	s.wg.Add(2)
	go s.eventLoop(ctx, s.machine, events, focus)
	go s.worker(ctx, s.jobs)

	s.logger.Info("sentinel started")
	return nil
}

// Stop stops the source, waits for the loop and worker to exit and
// releases the instance lock.
func (s *Sentinel) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()

	err := s.source.Stop()
	if s.focus != nil {
		s.focus.Stop()
	}
	s.wg.Wait()
	s.releaseLock()

	st := s.Stats()
	s.logger.Info("sentinel stopped",
		"completed", st.Completed,
		"replaced", st.Replaced,
		"failed", st.Failed,
	)
	return err
}

func (s *Sentinel) releaseLock() {
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.logger.Warn("release instance lock", "error", err)
		}
		s.lock = nil
	}
}

// Reload applies a new configuration. The trigger machine is rebuilt and
// swapped in by the event loop, which discards any pending capture; the
// resolver picks up the new settings immediately.
func (s *Sentinel) Reload(cfg *config.Config) error {
	machine, err := newMachine(cfg)
	if err != nil {
		return err
	}
	s.resolver.Update(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine = machine
	if !s.running {
		return nil
	}
	// Replace a reload the loop has not picked up yet.
	select {
	case <-s.reload:
	default:
	}
	s.reload <- machine
	s.logger.Info("configuration reloaded")
	return nil
}

// Stats returns activity counters.
func (s *Sentinel) Stats() Stats {
	return Stats{
		Events:    s.events.Load(),
		Ignored:   s.ignored.Load(),
		Completed: s.completed.Load(),
		Aborted:   s.aborted.Load(),
		Dropped:   s.dropped.Load(),
		Replaced:  s.replaced.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
	}
}

// eventLoop is the only goroutine touching the machine while running.
func (s *Sentinel) eventLoop(ctx context.Context, machine *trigger.Machine, events <-chan keystroke.Event, focus <-chan WindowInfo) {
	defer s.wg.Done()
	defer close(s.jobs)

	for {
		select {
		case <-ctx.Done():
			return

		case machine = <-s.reload:

		case _, ok := <-focus:
			if !ok {
				focus = nil
				continue
			}
			s.feed(ctx, machine, trigger.Special(trigger.KeyFocusChange))

		case ev, ok := <-events:
			if !ok {
				return
			}
			// A reload requested before this event was read applies to it.
			select {
			case machine = <-s.reload:
			default:
			}
			s.events.Add(1)
			if s.guard.Active() {
				s.ignored.Add(1)
				machine.Reset()
				continue
			}
			s.feed(ctx, machine, ev.Trigger())
		}
	}
}

func (s *Sentinel) feed(ctx context.Context, machine *trigger.Machine, ev trigger.Event) {
	seq := s.typed.Load()
	if ev.Key != trigger.KeyModifier {
		seq = s.typed.Add(1)
	}

	before := machine.Stats()
	c, ok := machine.Feed(ev)
	after := machine.Stats()
	s.aborted.Add(after.Aborted - before.Aborted)

	if !ok {
		return
	}
	s.completed.Add(1)
	select {
	case s.jobs <- job{c: c, seq: seq}:
	case <-ctx.Done():
	default:
		s.dropped.Add(1)
		s.logger.Warn("replacement queue full, trigger dropped", "site", c.Site)
	}
}

func (s *Sentinel) worker(ctx context.Context, jobs <-chan job) {
	defer s.wg.Done()

	for j := range jobs {
		if ctx.Err() != nil {
			continue
		}
		s.replace(ctx, j)
	}
}

func (s *Sentinel) replace(ctx context.Context, j job) {
	c := j.c
	instr, ok := s.orch.Handle(ctx, c)
	if !ok {
		s.failed.Add(1)
		return
	}
	defer instr.Wipe()

	if n := s.typed.Load() - j.seq; n > 0 {
		s.skipped.Add(1)
		s.logger.Info("replacement skipped, typing continued", "site", c.Site, "keys", n)
		if s.observer != nil {
			s.observer.Observe(replace.Report{
				Kind: replace.KindInterrupted,
				Site: c.Site,
				Mode: c.Mode,
				Err:  fmt.Errorf("%w: %d keys after the terminator", replace.ErrInterrupted, n),
				At:   time.Now(),
			})
		}
		return
	}

	edit := inject.Edit{Keep: instr.KeepCount, Delete: instr.DeleteCount, Text: instr.Insert}
	if err := s.guard.Apply(ctx, edit); err != nil {
		s.failed.Add(1)
		s.logger.Error("injection failed", "site", c.Site, "error", err)
		return
	}
	s.replaced.Add(1)
	s.logger.Debug("replacement typed", "site", c.Site, "mode", c.Mode.String())
}
