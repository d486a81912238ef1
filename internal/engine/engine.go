// Package engine runs the exile and release workflows and the periodic
// health decay on top of the pearl registry.
//
// All mutations are serialised by one mutex, reproducing the single logical
// game thread. Reads bypass the mutex and go straight to registry snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Maxopoly/ExilePearl/internal/gate"
	"github.com/Maxopoly/ExilePearl/internal/metrics"
	"github.com/Maxopoly/ExilePearl/internal/pearl"
	"github.com/Maxopoly/ExilePearl/internal/registry"
)

// NameLookup resolves a player's current display name. An unknown player
// resolves to "".
type NameLookup interface {
	NameFor(ctx context.Context, id uuid.UUID) (string, error)
}

// Persistence is the durable side of the registry. It is also registered as
// a gate sink so committed transitions reach storage.
type Persistence interface {
	gate.Sink
	LoadAll(ctx context.Context) ([]pearl.Pearl, error)
	SaveHealth(ctx context.Context, p pearl.Pearl) error
}

// Settings supplies gameplay values. The engine asks on every exile and
// tick and never caches the answers; config.PearlConfig is a fixed value.
type Settings interface {
	PearlHealthStart() int
	PearlHealthDecayAmount() int
}

// Options wires an Engine.
type Options struct {
	Registry *registry.Registry
	Gate     *gate.Gate
	Store    Persistence
	Names    NameLookup
	Settings Settings
	Metrics  *metrics.Metrics // optional
	Logger   zerolog.Logger
	Now      func() time.Time // optional, defaults to time.Now
}

// DecayReport summarises one decay pass.
type DecayReport struct {
	Decayed int `json:"decayed"`
	Freed   int `json:"freed"`
}

// Engine orchestrates exile, release and decay.
type Engine struct {
	mu       sync.Mutex
	registry *registry.Registry
	gate     *gate.Gate
	store    Persistence
	names    NameLookup
	settings Settings
	metrics  *metrics.Metrics
	factory  *pearl.Factory
	log      zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an Engine. Every dependency except Metrics is required.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("registry is required")
	case opts.Gate == nil:
		return nil, errors.New("gate is required")
	case opts.Store == nil:
		return nil, errors.New("store is required")
	case opts.Names == nil:
		return nil, errors.New("name lookup is required")
	case opts.Settings == nil:
		return nil, errors.New("settings is required")
	}

	return &Engine{
		registry: opts.Registry,
		gate:     opts.Gate,
		store:    opts.Store,
		names:    opts.Names,
		settings: opts.Settings,
		metrics:  opts.Metrics,
		factory:  pearl.NewFactory(opts.Now),
		log:      opts.Logger.With().Str("component", "engine").Logger(),
		stopCh:   make(chan struct{}),
	}, nil
}

// Load replaces the registry contents with what the store holds.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pearls, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load pearls: %w", err)
	}
	if err := e.registry.Load(pearls); err != nil {
		return err
	}
	e.observeActive()
	e.log.Info().Int("pearls", len(pearls)).Msg("engine: loaded pearls")
	return nil
}

// Observe registers a veto observer for exile and release transitions.
// Observers run while the engine holds its mutation lock: they may read
// engine state but must not call Exile, Free or DecayTick.
func (e *Engine) Observe(o gate.Observer) (unregister func()) {
	return e.gate.Register(o)
}

// Exile binds exiledID to a new pearl held by killerID. It returns nil
// without error when the player is already exiled or an observer vetoed it.
func (e *Engine) Exile(ctx context.Context, exiledID, killerID uuid.UUID) (*pearl.Pearl, error) {
	if exiledID == uuid.Nil || killerID == uuid.Nil {
		return nil, fmt.Errorf("exile: player ids required: %w", pearl.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.IsActive(exiledID) {
		return nil, nil
	}

	exiledName, err := e.nameOf(ctx, exiledID)
	if err != nil {
		return nil, err
	}
	killerName, err := e.nameOf(ctx, killerID)
	if err != nil {
		return nil, err
	}

	p, err := e.factory.Create(exiledID, exiledName, killerID, killerName, e.settings.PearlHealthStart())
	if err != nil {
		return nil, err
	}

	committed, err := e.gate.ProposeAndCommit(ctx, gate.KindNew, p, e.registry.Insert)
	if err != nil {
		return nil, fmt.Errorf("exile %s: %w", exiledID, err)
	}
	if !committed {
		e.vetoed(gate.KindNew, p)
		return nil, nil
	}

	e.observeActive()
	e.log.Info().Stringer("player", p.PlayerID).Str("name", p.PlayerName).Str("killer", p.KillerName).Msg("engine: player exiled")
	return &p, nil
}

// Free releases the player bound by p. It returns false without error when
// the pearl is no longer active or an observer vetoed the release.
func (e *Engine) Free(ctx context.Context, p *pearl.Pearl, reason pearl.FreeReason) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("free: pearl required: %w", pearl.ErrInvalidArgument)
	}
	if !reason.Valid() {
		return false, fmt.Errorf("free: reason %q: %w", reason, pearl.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.free(ctx, p.PlayerID, reason)
}

// FreeByID is Free for callers that only hold the player id.
func (e *Engine) FreeByID(ctx context.Context, id uuid.UUID, reason pearl.FreeReason) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("free: player id required: %w", pearl.ErrInvalidArgument)
	}
	return e.Free(ctx, &pearl.Pearl{PlayerID: id}, reason)
}

// free must be called with e.mu held.
func (e *Engine) free(ctx context.Context, id uuid.UUID, reason pearl.FreeReason) (bool, error) {
	current, ok := e.registry.ByID(id)
	if !ok {
		return false, nil
	}
	candidate := current.Freed(reason)

	committed, err := e.gate.ProposeAndCommit(ctx, gate.KindFreed, candidate, func(p pearl.Pearl) error {
		return e.registry.Remove(p.PlayerID)
	})
	if err != nil {
		return false, fmt.Errorf("free %s: %w", id, err)
	}
	if !committed {
		e.vetoed(gate.KindFreed, candidate)
		return false, nil
	}

	e.observeActive()
	e.log.Info().Stringer("player", id).Str("name", candidate.PlayerName).Str("reason", string(reason)).Msg("engine: player freed")
	return true, nil
}

// Pearls returns a snapshot of every active pearl.
func (e *Engine) Pearls() []pearl.Pearl { return e.registry.All() }

// Pearl returns the active pearl for a player.
func (e *Engine) Pearl(id uuid.UUID) (pearl.Pearl, bool) { return e.registry.ByID(id) }

// PearlByName returns the active pearl for a player name, ignoring case.
func (e *Engine) PearlByName(name string) (pearl.Pearl, bool) { return e.registry.ByName(name) }

// SearchByName returns active pearls whose player name starts with prefix.
func (e *Engine) SearchByName(prefix string) []pearl.Pearl { return e.registry.ByNamePrefix(prefix) }

// IsExiled reports whether the player is bound to an active pearl.
func (e *Engine) IsExiled(id uuid.UUID) bool { return e.registry.IsActive(id) }

func (e *Engine) nameOf(ctx context.Context, id uuid.UUID) (string, error) {
	name, err := e.names.NameFor(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve name for %s: %w", id, err)
	}
	if name == "" {
		return id.String(), nil
	}
	return name, nil
}

func (e *Engine) vetoed(kind gate.Kind, p pearl.Pearl) {
	if e.metrics != nil {
		e.metrics.IncrementVetoes(kind)
	}
	e.log.Info().Str("transition", kind.String()).Stringer("player", p.PlayerID).Msg("engine: transition vetoed")
}

func (e *Engine) observeActive() {
	if e.metrics != nil {
		e.metrics.SetActive(e.registry.Len())
	}
}
