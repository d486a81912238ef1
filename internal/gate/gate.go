// Package gate is the single choke point for pearl state transitions.
//
// A transition is proposed to every registered observer in order. Any
// observer may cancel it (and a later one may un-cancel it); the flag is read
// once dispatch completes. Only an uncancelled transition is committed, and
// only a committed transition reaches the sinks.
package gate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

const tracerName = "github.com/Maxopoly/ExilePearl/internal/gate"

// Kind is the type of a proposed transition.
type Kind int

const (
	KindNew Kind = iota + 1
	KindFreed
)

func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// Transition is the intent announced to observers.
type Transition struct {
	kind      Kind
	pearl     pearl.Pearl
	cancelled bool
}

// Kind returns the transition type.
func (t *Transition) Kind() Kind { return t.kind }

// Pearl returns a copy of the candidate pearl.
func (t *Transition) Pearl() pearl.Pearl { return t.pearl }

// Cancelled reports whether the transition is currently vetoed.
func (t *Transition) Cancelled() bool { return t.cancelled }

// SetCancelled sets or clears the veto.
func (t *Transition) SetCancelled(cancel bool) { t.cancelled = cancel }

// Observer is notified of every proposed transition before it is committed.
// Observers run synchronously on the caller's goroutine.
type Observer interface {
	OnTransition(ctx context.Context, t *Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t *Transition)

func (f ObserverFunc) OnTransition(ctx context.Context, t *Transition) { f(ctx, t) }

// Sink is told about committed transitions. Errors are logged and otherwise
// ignored: the in-memory commit already happened.
type Sink interface {
	OnCommitted(ctx context.Context, kind Kind, p pearl.Pearl) error
}

// Mutation applies a transition to the registry.
type Mutation func(p pearl.Pearl) error

type registration struct {
	id       uint64
	observer Observer
}

// Gate dispatches transitions to observers and commits them.
type Gate struct {
	mu        sync.RWMutex
	nextID    uint64
	observers []registration
	sinks     []Sink
	log       zerolog.Logger
	tracer    trace.Tracer
}

// New creates a Gate that reports commits to sinks.
func New(log zerolog.Logger, sinks ...Sink) *Gate {
	return &Gate{
		sinks:  sinks,
		log:    log.With().Str("component", "gate").Logger(),
		tracer: otel.Tracer(tracerName),
	}
}

// Register adds an observer after all existing ones. The returned function
// removes it again.
func (g *Gate) Register(o Observer) (unregister func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID
	g.observers = append(g.observers, registration{id: id, observer: o})

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, r := range g.observers {
			if r.id == id {
				g.observers = append(g.observers[:i:i], g.observers[i+1:]...)
				return
			}
		}
	}
}

// ProposeAndCommit announces the transition and, unless an observer vetoes
// it, applies mutate and notifies the sinks. It returns true only when the
// mutation was committed. A vetoed transition returns (false, nil); a failed
// mutation returns its error and nothing is committed. Sinks get a context
// that keeps ctx's values but not its cancellation: once the mutation is
// applied, a cancelled caller must not keep the commit out of storage.
func (g *Gate) ProposeAndCommit(ctx context.Context, kind Kind, p pearl.Pearl, mutate Mutation) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "gate.propose", trace.WithAttributes(
		attribute.String("pearl.transition", kind.String()),
		attribute.String("pearl.player_id", p.PlayerID.String()),
	))
	defer span.End()

	t := &Transition{kind: kind, pearl: p}

	g.mu.RLock()
	observers := make([]registration, len(g.observers))
	copy(observers, g.observers)
	g.mu.RUnlock()

	for _, r := range observers {
		r.observer.OnTransition(ctx, t)
	}

	span.SetAttributes(attribute.Bool("pearl.cancelled", t.cancelled))
	if t.cancelled {
		g.log.Debug().Str("transition", kind.String()).Stringer("player", p.PlayerID).Msg("gate: transition vetoed")
		return false, nil
	}

	if err := mutate(p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	committed := context.WithoutCancel(ctx)
	for _, s := range g.sinks {
		if err := s.OnCommitted(committed, kind, p); err != nil {
			g.log.Error().Err(err).Str("transition", kind.String()).Stringer("player", p.PlayerID).Msg("gate: sink failed")
		}
	}
	return true, nil
}
