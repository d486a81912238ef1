package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Maxopoly/ExilePearl/internal/gate"
	"github.com/Maxopoly/ExilePearl/internal/metrics"
	"github.com/Maxopoly/ExilePearl/internal/pearl"
	"github.com/Maxopoly/ExilePearl/internal/registry"
)

type committed struct {
	kind  gate.Kind
	pearl pearl.Pearl
}

type fakeStore struct {
	mu        sync.Mutex
	stored    []pearl.Pearl
	committed []committed
	health    map[uuid.UUID]int
	loadErr   error
	doneCalls int
}

func (s *fakeStore) LoadAll(context.Context) ([]pearl.Pearl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, s.loadErr
}

func (s *fakeStore) OnCommitted(ctx context.Context, kind gate.Kind, p pearl.Pearl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		s.doneCalls++
		return ctx.Err()
	}
	s.committed = append(s.committed, committed{kind: kind, pearl: p})
	return nil
}

func (s *fakeStore) SaveHealth(ctx context.Context, p pearl.Pearl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		s.doneCalls++
		return ctx.Err()
	}
	if s.health == nil {
		s.health = make(map[uuid.UUID]int)
	}
	s.health[p.PlayerID] = p.Health
	return nil
}

func (s *fakeStore) commits() []committed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]committed(nil), s.committed...)
}

func (s *fakeStore) savedHealth(id uuid.UUID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[id]
	return h, ok
}

type fakeNames struct {
	names map[uuid.UUID]string
	err   error
}

func (n *fakeNames) NameFor(_ context.Context, id uuid.UUID) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	return n.names[id], nil
}

type fakeSettings struct {
	start int
	decay int
}

func (s fakeSettings) PearlHealthStart() int       { return s.start }
func (s fakeSettings) PearlHealthDecayAmount() int { return s.decay }

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	store    *fakeStore
	names    *fakeNames
	settings *fakeSettings
	metrics  *metrics.Metrics
	engine   *Engine

	alice, bob, carol uuid.UUID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.alice, s.bob, s.carol = uuid.New(), uuid.New(), uuid.New()
	s.store = &fakeStore{}
	s.names = &fakeNames{names: map[uuid.UUID]string{
		s.alice: "Alice",
		s.bob:   "Bob",
		s.carol: "Carol",
	}}
	s.settings = &fakeSettings{start: 10, decay: 1}
	s.metrics = metrics.New()

	reg, err := registry.New()
	s.Require().NoError(err)

	s.engine, err = New(Options{
		Registry: reg,
		Gate:     gate.New(zerolog.Nop(), s.store, s.metrics),
		Store:    s.store,
		Names:    s.names,
		Settings: s.settings,
		Metrics:  s.metrics,
		Logger:   zerolog.Nop(),
	})
	s.Require().NoError(err)
	s.T().Cleanup(s.engine.Stop)
}

func (s *EngineSuite) exile(exiled, killer uuid.UUID) pearl.Pearl {
	p, err := s.engine.Exile(s.ctx, exiled, killer)
	s.Require().NoError(err)
	s.Require().NotNil(p)
	return *p
}

func (s *EngineSuite) veto(kind gate.Kind) {
	s.engine.Observe(gate.ObserverFunc(func(_ context.Context, t *gate.Transition) {
		if t.Kind() == kind {
			t.SetCancelled(true)
		}
	}))
}

func (s *EngineSuite) TestNeverExiledLookups() {
	_, ok := s.engine.Pearl(s.alice)
	s.False(ok)
	_, ok = s.engine.PearlByName("Alice")
	s.False(ok)
	s.False(s.engine.IsExiled(s.alice))
	s.Empty(s.engine.Pearls())
}

func (s *EngineSuite) TestExile() {
	s.Run("commits and is visible by id and name", func() {
		p := s.exile(s.alice, s.bob)

		s.Equal("Alice", p.PlayerName)
		s.Equal("Bob", p.KillerName)
		s.Equal(10, p.Health)
		s.Equal(pearl.FreeReasonNone, p.FreeReason)

		byID, ok := s.engine.Pearl(s.alice)
		s.Require().True(ok)
		byName, ok := s.engine.PearlByName("alice")
		s.Require().True(ok)
		s.Equal(byID, byName)
		s.Equal(p, byID)
		s.True(s.engine.IsExiled(s.alice))

		commits := s.store.commits()
		s.Require().Len(commits, 1)
		s.Equal(gate.KindNew, commits[0].kind)
		s.Equal(p, commits[0].pearl)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.PearlsExiled))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ActivePearls))
	})

	s.Run("duplicate exile does nothing", func() {
		proposals := 0
		unregister := s.engine.Observe(gate.ObserverFunc(func(context.Context, *gate.Transition) { proposals++ }))
		defer unregister()

		p, err := s.engine.Exile(s.ctx, s.alice, s.carol)
		s.Require().NoError(err)
		s.Nil(p)
		s.Zero(proposals, "already exiled players never reach the gate")
		s.Len(s.store.commits(), 1)

		current, _ := s.engine.Pearl(s.alice)
		s.Equal("Bob", current.KillerName)
	})
}

func (s *EngineSuite) TestExileUnknownNameFallsBackToID() {
	stranger := uuid.New()
	p := s.exile(stranger, s.bob)
	s.Equal(stranger.String(), p.PlayerName)
}

func (s *EngineSuite) TestExileInvalidArguments() {
	_, err := s.engine.Exile(s.ctx, uuid.Nil, s.bob)
	s.ErrorIs(err, pearl.ErrInvalidArgument)
	_, err = s.engine.Exile(s.ctx, s.alice, uuid.Nil)
	s.ErrorIs(err, pearl.ErrInvalidArgument)
	s.Empty(s.store.commits())
}

func (s *EngineSuite) TestExileNameLookupFailure() {
	s.names.err = errors.New("players table unavailable")

	p, err := s.engine.Exile(s.ctx, s.alice, s.bob)
	s.Error(err)
	s.Nil(p)
	s.False(s.engine.IsExiled(s.alice))
}

func (s *EngineSuite) TestVetoedExile() {
	s.veto(gate.KindNew)

	p, err := s.engine.Exile(s.ctx, s.alice, s.bob)
	s.Require().NoError(err)
	s.Nil(p)

	s.False(s.engine.IsExiled(s.alice))
	_, ok := s.engine.PearlByName("Alice")
	s.False(ok)
	s.Empty(s.store.commits())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Vetoes.WithLabelValues("new")))
}

func (s *EngineSuite) TestObserverSeesPreTransitionState() {
	var sawActive bool
	var candidate pearl.Pearl
	s.engine.Observe(gate.ObserverFunc(func(_ context.Context, t *gate.Transition) {
		sawActive = s.engine.IsExiled(t.Pearl().PlayerID)
		candidate = t.Pearl()
	}))

	p := s.exile(s.alice, s.bob)
	s.False(sawActive)
	s.Equal(p, candidate)
}

func (s *EngineSuite) TestFree() {
	p := s.exile(s.alice, s.bob)

	freed, err := s.engine.Free(s.ctx, &p, pearl.FreeReasonPearlDestroyed)
	s.Require().NoError(err)
	s.True(freed)

	s.False(s.engine.IsExiled(s.alice))
	_, ok := s.engine.PearlByName("Alice")
	s.False(ok)

	commits := s.store.commits()
	s.Require().Len(commits, 2)
	s.Equal(gate.KindFreed, commits[1].kind)
	s.Equal(pearl.FreeReasonPearlDestroyed, commits[1].pearl.FreeReason)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PearlsFreed.WithLabelValues("pearl_destroyed")))

	s.Run("freeing again reports false", func() {
		freed, err := s.engine.Free(s.ctx, &p, pearl.FreeReasonPearlDestroyed)
		s.Require().NoError(err)
		s.False(freed)
		s.Len(s.store.commits(), 2)
	})

	s.Run("player can be exiled again", func() {
		s.exile(s.alice, s.carol)
	})
}

func (s *EngineSuite) TestFreeByID() {
	s.exile(s.alice, s.bob)

	freed, err := s.engine.FreeByID(s.ctx, s.alice, pearl.FreeReasonForceFreed)
	s.Require().NoError(err)
	s.True(freed)

	_, err = s.engine.FreeByID(s.ctx, uuid.Nil, pearl.FreeReasonForceFreed)
	s.ErrorIs(err, pearl.ErrInvalidArgument)
}

func (s *EngineSuite) TestFreeInvalidArguments() {
	p := s.exile(s.alice, s.bob)

	_, err := s.engine.Free(s.ctx, nil, pearl.FreeReasonOther)
	s.ErrorIs(err, pearl.ErrInvalidArgument)
	_, err = s.engine.Free(s.ctx, &p, pearl.FreeReasonNone)
	s.ErrorIs(err, pearl.ErrInvalidArgument)
	_, err = s.engine.Free(s.ctx, &p, pearl.FreeReason("teleported"))
	s.ErrorIs(err, pearl.ErrInvalidArgument)
	s.True(s.engine.IsExiled(s.alice))
}

func (s *EngineSuite) TestVetoedFree() {
	p := s.exile(s.alice, s.bob)
	s.veto(gate.KindFreed)

	freed, err := s.engine.Free(s.ctx, &p, pearl.FreeReasonFreedByPlayer)
	s.Require().NoError(err)
	s.False(freed)

	current, ok := s.engine.Pearl(s.alice)
	s.Require().True(ok)
	s.Equal(p, current)
	_, ok = s.engine.PearlByName("Alice")
	s.True(ok)
	s.Len(s.store.commits(), 1)
}

func (s *EngineSuite) TestCommitsPersistAfterCallerCancels() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.engine.Observe(gate.ObserverFunc(func(context.Context, *gate.Transition) { cancel() }))

	p, err := s.engine.Exile(ctx, s.alice, s.bob)
	s.Require().NoError(err)
	s.Require().NotNil(p)

	freed, err := s.engine.FreeByID(ctx, s.alice, pearl.FreeReasonForceFreed)
	s.Require().NoError(err)
	s.True(freed)

	commits := s.store.commits()
	s.Require().Len(commits, 2)
	s.Equal(gate.KindNew, commits[0].kind)
	s.Equal(gate.KindFreed, commits[1].kind)
	s.Zero(s.store.doneCalls)
}

func (s *EngineSuite) TestDecayPersistsWithCancelledContext() {
	s.exile(s.alice, s.bob)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	s.Equal(1, s.engine.DecayTick(ctx).Decayed)
	saved, ok := s.store.savedHealth(s.alice)
	s.Require().True(ok)
	s.Equal(9, saved)
	s.Zero(s.store.doneCalls)
}

func (s *EngineSuite) TestSnapshotUnaffectedByMutation() {
	s.exile(s.alice, s.bob)
	snapshot := s.engine.Pearls()

	s.exile(s.carol, s.bob)
	_, err := s.engine.FreeByID(s.ctx, s.alice, pearl.FreeReasonOther)
	s.Require().NoError(err)
	s.engine.DecayTick(s.ctx)

	s.Require().Len(snapshot, 1)
	s.Equal(s.alice, snapshot[0].PlayerID)
	s.Equal(10, snapshot[0].Health)
}

func (s *EngineSuite) TestDecayToRelease() {
	s.exile(s.alice, s.bob)

	for tick := 1; tick <= 9; tick++ {
		report := s.engine.DecayTick(s.ctx)
		s.Equal(DecayReport{Decayed: 1}, report)

		p, ok := s.engine.Pearl(s.alice)
		s.Require().True(ok, "tick %d", tick)
		s.Equal(10-tick, p.Health)

		saved, ok := s.store.savedHealth(s.alice)
		s.Require().True(ok)
		s.Equal(10-tick, saved)
	}

	report := s.engine.DecayTick(s.ctx)
	s.Equal(DecayReport{Decayed: 1, Freed: 1}, report)
	s.False(s.engine.IsExiled(s.alice))

	commits := s.store.commits()
	last := commits[len(commits)-1]
	s.Equal(gate.KindFreed, last.kind)
	s.Equal(pearl.FreeReasonHealthDecay, last.pearl.FreeReason)
	s.Equal(0, last.pearl.Health)

	s.Equal(DecayReport{}, s.engine.DecayTick(s.ctx))
	s.Len(s.store.commits(), len(commits), "further ticks leave a freed player alone")
}

func (s *EngineSuite) TestDecayIsIndependentPerPearl() {
	s.exile(s.alice, s.carol)
	s.exile(s.bob, s.carol)
	s.settings.decay = 3

	report := s.engine.DecayTick(s.ctx)
	s.Equal(2, report.Decayed)

	for _, id := range []uuid.UUID{s.alice, s.bob} {
		p, ok := s.engine.Pearl(id)
		s.Require().True(ok)
		s.Equal(7, p.Health)
	}
}

func (s *EngineSuite) TestSettingsReadEachTick() {
	s.exile(s.alice, s.bob)

	s.engine.DecayTick(s.ctx)
	s.settings.decay = 4
	s.engine.DecayTick(s.ctx)

	p, ok := s.engine.Pearl(s.alice)
	s.Require().True(ok)
	s.Equal(5, p.Health)
}

func (s *EngineSuite) TestDecayOvershootClampsAndFrees() {
	s.exile(s.alice, s.bob)
	s.settings.decay = 25

	report := s.engine.DecayTick(s.ctx)
	s.Equal(1, report.Freed)

	commits := s.store.commits()
	s.Equal(0, commits[len(commits)-1].pearl.Health)
}

func (s *EngineSuite) TestVetoedDecayReleaseIsRetried() {
	s.settings.start = 1
	s.exile(s.alice, s.bob)

	allow := false
	s.engine.Observe(gate.ObserverFunc(func(_ context.Context, t *gate.Transition) {
		if t.Kind() == gate.KindFreed && !allow {
			t.SetCancelled(true)
		}
	}))

	report := s.engine.DecayTick(s.ctx)
	s.Equal(0, report.Freed)
	p, ok := s.engine.Pearl(s.alice)
	s.Require().True(ok)
	s.Equal(0, p.Health)

	allow = true
	report = s.engine.DecayTick(s.ctx)
	s.Equal(1, report.Freed)
	s.False(s.engine.IsExiled(s.alice))
}

func (s *EngineSuite) TestDecaySkipsPearlsFreedMidTick() {
	s.settings.start = 1
	s.exile(s.alice, s.carol)
	s.exile(s.bob, s.carol)

	report := s.engine.DecayTick(s.ctx)
	s.Equal(DecayReport{Decayed: 2, Freed: 2}, report)
	s.Empty(s.engine.Pearls())
}

func (s *EngineSuite) TestDecayDisabled() {
	s.exile(s.alice, s.bob)
	s.settings.decay = 0

	s.Equal(DecayReport{}, s.engine.DecayTick(s.ctx))
	p, _ := s.engine.Pearl(s.alice)
	s.Equal(10, p.Health)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DecayTicks))
}

func (s *EngineSuite) TestLoadRoundTrip() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	s.store.stored = []pearl.Pearl{
		{PlayerID: s.alice, PlayerName: "Alice", KillerID: s.bob, KillerName: "Bob", Health: 4, CreatedAt: now},
		{PlayerID: s.carol, PlayerName: "Carol", KillerID: s.bob, KillerName: "Bob", Health: 9, CreatedAt: now},
	}

	s.Require().NoError(s.engine.Load(s.ctx))
	s.ElementsMatch(s.store.stored, s.engine.Pearls())
	s.Equal(2.0, testutil.ToFloat64(s.metrics.ActivePearls))
	s.Empty(s.store.commits(), "loading is not a transition")

	s.store.stored = nil
	s.Require().NoError(s.engine.Load(s.ctx))
	s.Empty(s.engine.Pearls(), "load replaces, never merges")
}

func (s *EngineSuite) TestLoadFailureKeepsState() {
	s.exile(s.alice, s.bob)
	s.store.loadErr = errors.New("disk gone")

	s.Error(s.engine.Load(s.ctx))
	s.True(s.engine.IsExiled(s.alice))
}

func (s *EngineSuite) TestSearchByName() {
	s.exile(s.alice, s.bob)
	s.exile(s.carol, s.bob)

	found := s.engine.SearchByName("al")
	s.Require().Len(found, 1)
	s.Equal(s.alice, found[0].PlayerID)
}

func (s *EngineSuite) TestDecayTimer() {
	s.exile(s.alice, s.bob)
	s.engine.StartDecayTimer(5 * time.Millisecond)

	s.Eventually(func() bool {
		p, ok := s.engine.Pearl(s.alice)
		return ok && p.Health < 10
	}, time.Second, 5*time.Millisecond)

	s.engine.Stop()
	s.engine.Stop()
}

func TestNewRequiresDependencies(t *testing.T) {
	reg, err := registry.New()
	require.NoError(t, err)
	g := gate.New(zerolog.Nop())
	full := Options{
		Registry: reg,
		Gate:     g,
		Store:    &fakeStore{},
		Names:    &fakeNames{},
		Settings: fakeSettings{start: 10, decay: 1},
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"registry", func(o *Options) { o.Registry = nil }},
		{"gate", func(o *Options) { o.Gate = nil }},
		{"store", func(o *Options) { o.Store = nil }},
		{"name lookup", func(o *Options) { o.Names = nil }},
		{"settings", func(o *Options) { o.Settings = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := full
			tt.mutate(&opts)
			_, err := New(opts)
			require.ErrorContains(t, err, tt.name+" is required")
		})
	}

	e, err := New(full)
	require.NoError(t, err)
	e.Stop()
}
