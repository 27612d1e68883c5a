// Package replace turns a completed trigger into a replacement instruction:
// how many characters to erase and which password to type in their place.
package replace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"easypass/internal/charset"
	"easypass/internal/derive"
	"easypass/internal/generator"
	"easypass/internal/trigger"
)

// Resolver supplies the generation options for a site. The returned
// MasterKey is borrowed and must stay valid until Generate returns.
type Resolver interface {
	Resolve(site string) (generator.Options, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(site string) (generator.Options, error)

// Resolve calls f(site).
func (f ResolverFunc) Resolve(site string) (generator.Options, error) { return f(site) }

// Observer is told about failed replacements.
type Observer interface {
	Observe(Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

// Observe calls f(r).
func (f ObserverFunc) Observe(r Report) { f(r) }

// Observers fans a report out to several observers.
type Observers []Observer

// Observe forwards r to every observer.
func (obs Observers) Observe(r Report) {
	for _, o := range obs {
		if o != nil {
			o.Observe(r)
		}
	}
}

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindDerivation
	KindRender
	KindInterrupted // typing continued before the replacement was typed
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDerivation:
		return "derivation"
	case KindRender:
		return "render"
	case KindInterrupted:
		return "interrupted"
	default:
		return "internal"
	}
}

// errPanic marks a generator that panicked.
var errPanic = errors.New("generator panicked")

// ErrInterrupted is reported when keys arrive between a trigger and its
// replacement, so the trigger is no longer right before the cursor.
var ErrInterrupted = errors.New("typing continued after the trigger")

// Classify maps an error from resolution or generation onto a Kind.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, generator.ErrConfig):
		return KindConfig
	case errors.Is(err, derive.ErrInvalidParameters),
		errors.Is(err, derive.ErrEmptyMasterKey),
		errors.Is(err, derive.ErrEmptySite):
		return KindDerivation
	case errors.Is(err, charset.ErrInsufficientMaterial),
		errors.Is(err, charset.ErrNoClasses),
		errors.Is(err, charset.ErrLengthTooShort):
		return KindRender
	case errors.Is(err, ErrInterrupted):
		return KindInterrupted
	default:
		return KindInternal
	}
}

// Report describes one failed replacement. It never carries secret
// material.
type Report struct {
	Kind Kind
	Site string
	Mode derive.Mode
	Err  error
	At   time.Time
}

// Message returns a one-line description suitable for a notification.
func (r Report) Message() string {
	switch r.Kind {
	case KindConfig:
		return fmt.Sprintf("No password for %q: %v", r.Site, r.Err)
	case KindInterrupted:
		return fmt.Sprintf("Password for %q not typed: keep still until it appears", r.Site)
	default:
		return fmt.Sprintf("Password generation for %q failed (%s)", r.Site, r.Kind)
	}
}

// Instruction tells the actuator what to do: keep the KeepCount
// characters before the cursor, erase the DeleteCount before them and type
// Insert there. Insert belongs to the receiver, which wipes it after
// typing.
type Instruction struct {
	KeepCount   int
	DeleteCount int
	Insert      generator.Password
}

// Wipe zeroes the inserted text.
func (i Instruction) Wipe() { i.Insert.Wipe() }

// Stats counts orchestrator outcomes.
type Stats struct {
	Handled   uint64
	Succeeded uint64
	Failed    uint64
}

// Orchestrator produces instructions for completed triggers.
type Orchestrator struct {
	resolver Resolver
	observer Observer
	generate func(generator.Options) (generator.Password, error)
	logger   *slog.Logger

	handled   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator replaces generator.Generate.
func WithGenerator(fn func(generator.Options) (generator.Password, error)) Option {
	return func(o *Orchestrator) { o.generate = fn }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator. observer may be nil.
func New(resolver Resolver, observer Observer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		observer: observer,
		generate: generator.Generate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type result struct {
	pw  generator.Password
	err error
}

// Handle resolves options for c, synthesises the password on a separate
// goroutine and returns the instruction. It returns false when anything
// failed, in which case the observer has been told and the typed text
// must be left alone. A cancelled ctx also returns false but is not
// reported.
func (o *Orchestrator) Handle(ctx context.Context, c trigger.Completed) (Instruction, bool) {
	o.handled.Add(1)

	opts, err := o.resolver.Resolve(c.Site)
	if err != nil {
		o.fail(c, fmt.Errorf("resolve: %w", err))
		return Instruction{}, false
	}
	opts.Site = c.Site
	opts.Mode = c.Mode

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		pw, err := o.generate(opts)
		done <- result{pw: pw, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		go func() {
			r := <-done
			r.pw.Wipe()
		}()
		o.failed.Add(1)
		o.logger.Debug("replacement cancelled", "site", c.Site, "error", ctx.Err())
		return Instruction{}, false
	case res = <-done:
	}

	if res.err != nil {
		res.pw.Wipe()
		o.fail(c, res.err)
		return Instruction{}, false
	}
	if len(res.pw) == 0 {
		o.fail(c, errors.New("generator returned an empty password"))
		return Instruction{}, false
	}

	o.succeeded.Add(1)
	o.logger.Debug("replacement ready",
		"site", c.Site,
		"mode", c.Mode.String(),
		"delete_count", c.DeleteCount(),
		"length", res.pw.Len(),
	)
	return Instruction{KeepCount: c.KeepCount(), DeleteCount: c.DeleteCount(), Insert: res.pw}, true
}

// Stats returns outcome counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Handled:   o.handled.Load(),
		Succeeded: o.succeeded.Load(),
		Failed:    o.failed.Load(),
	}
}

func (o *Orchestrator) fail(c trigger.Completed, err error) {
	o.failed.Add(1)
	if o.observer == nil {
		return
	}
	o.observer.Observe(Report{
		Kind: Classify(err),
		Site: c.Site,
		Mode: c.Mode,
		Err:  err,
		At:   time.Now(),
	})
}

// LogObserver logs reports.
type LogObserver struct {
	Logger *slog.Logger
}

// Observe logs r. Configuration problems are warnings; everything else
// is an error.
func (l LogObserver) Observe(r Report) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelError
	if r.Kind == KindConfig || r.Kind == KindInterrupted {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "replacement failed",
		"kind", r.Kind.String(),
		"site", r.Site,
		"mode", r.Mode.String(),
		"error", r.Err,
	)
}
