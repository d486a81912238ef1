package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
	"github.com/Maxopoly/ExilePearl/internal/registry"
)

// Decay algorithm:
//   - The active set is snapshotted at tick start; the amount is read once.
//   - Each pearl still active loses amount health, floored at zero.
//   - A pearl at zero is freed with reason health_decay. If that release is
//     vetoed the pearl stays at zero and the release is retried next tick.
//   - Health writes to the store are best-effort and not cancelled with ctx:
//     the registry already holds the new value.

// DecayTick runs one decay pass over every active pearl.
func (e *Engine) DecayTick(ctx context.Context) DecayReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report DecayReport
	if e.metrics != nil {
		e.metrics.IncrementDecayTicks()
	}

	amount := e.settings.PearlHealthDecayAmount()
	if amount <= 0 {
		return report
	}

	for _, snap := range e.registry.All() {
		current, ok := e.registry.ByID(snap.PlayerID)
		if !ok {
			continue
		}

		next := current.Decayed(amount)
		if err := e.registry.Update(next); err != nil {
			if !errors.Is(err, registry.ErrNotActive) {
				e.log.Error().Err(err).Stringer("player", next.PlayerID).Msg("decay: update failed")
			}
			continue
		}
		report.Decayed++

		if err := e.store.SaveHealth(context.WithoutCancel(ctx), next); err != nil {
			e.log.Warn().Err(err).Stringer("player", next.PlayerID).Msg("decay: save health failed")
		}

		if !next.Exhausted() {
			continue
		}
		freed, err := e.free(ctx, next.PlayerID, pearl.FreeReasonHealthDecay)
		if err != nil {
			e.log.Error().Err(err).Stringer("player", next.PlayerID).Msg("decay: release failed")
			continue
		}
		if freed {
			report.Freed++
		}
	}

	if report.Decayed > 0 {
		e.log.Debug().Int("decayed", report.Decayed).Int("freed", report.Freed).Msg("decay: tick complete")
	}
	return report
}

// StartDecayTimer runs DecayTick every interval until Stop is called.
func (e *Engine) StartDecayTimer(interval time.Duration) {
	if interval <= 0 {
		e.log.Warn().Dur("interval", interval).Msg("decay: timer disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.DecayTick(context.Background())
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines. It is safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
