// Package arbiter owns the single accelerator slot shared by the text and
// vision models. At most one model is resident at a time; switching classes
// waits for in-flight turns on the current model and then swaps.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ltl/internal/domain"
	"ltl/internal/metrics"
)

// Slot is a snapshot of the accelerator occupant.
type Slot struct {
	Class    domain.ResourceClass `json:"class"`
	Name     string               `json:"name,omitempty"`
	LoadedAt time.Time            `json:"loaded_at,omitempty"`
	Holders  int                  `json:"holders"`
}

// AcquireResult reports what Acquire had to do. It also carries a hold on the
// resident model that keeps other classes from swapping it out until Done.
type AcquireResult struct {
	Loaded  bool
	Swapped bool
	Class   domain.ResourceClass

	release func()
}

// Done drops the hold taken by Acquire. Safe to call more than once.
func (r *AcquireResult) Done() {
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// Arbiter serializes load and unload calls against one ModelLoader.
type Arbiter struct {
	loader domain.ModelLoader
	logger *slog.Logger

	mu      sync.Mutex
	slot    Slot
	holders int
	gen     uint64        // bumped by Release so stale holds are ignored
	idle    chan struct{} // closed when holders drops to zero
}

func New(loader domain.ModelLoader, logger *slog.Logger) *Arbiter {
	return &Arbiter{loader: loader, logger: logger}
}

// Acquire makes (class, name) the resident model. A same-model request
// succeeds immediately; a different model is swapped in once nothing holds
// the current one. The lock is held only while deciding and swapping, never
// while waiting for holders or while callers run inference.
func (a *Arbiter) Acquire(ctx context.Context, class domain.ResourceClass, name string) (AcquireResult, error) {
	if class == domain.ResourceNone {
		return AcquireResult{}, fmt.Errorf("acquire: %w: no resource class", domain.ErrResourceUnavailable)
	}

	for {
		if err := ctx.Err(); err != nil {
			return AcquireResult{}, err
		}

		a.mu.Lock()
		if a.slot.Class == class && a.slot.Name == name {
			res := AcquireResult{Class: class, release: a.holdLocked()}
			a.mu.Unlock()
			return res, nil
		}

		if a.holders == 0 {
			res, err := a.swapLocked(ctx, class, name)
			a.mu.Unlock()
			return res, err
		}

		idle := a.idle
		a.mu.Unlock()

		a.logger.Debug("waiting for slot", "want", class, "resident", a.Current())
		select {
		case <-idle:
		case <-ctx.Done():
			return AcquireResult{}, ctx.Err()
		}
	}
}

// swapLocked unloads whatever is resident and loads the requested model.
// Caller holds a.mu and has checked that there are no holders.
func (a *Arbiter) swapLocked(ctx context.Context, class domain.ResourceClass, name string) (AcquireResult, error) {
	prev := a.slot
	swapped := prev.Class != domain.ResourceNone
	start := time.Now()

	if swapped {
		if err := a.loader.Unload(ctx, prev.Class, prev.Name); err != nil {
			a.logger.Warn("unload before swap failed", "class", prev.Class, "model", prev.Name, "error", err)
		}
		a.setSlotLocked(Slot{})
	}

	if err := a.loader.Load(ctx, class, name); err != nil {
		a.setSlotLocked(Slot{})
		metrics.ResourceFailures.Inc()
		a.logger.Error("model load failed", "class", class, "model", name, "error", err)
		return AcquireResult{}, fmt.Errorf("load %s model %q: %w: %w", class, name, domain.ErrResourceUnavailable, err)
	}

	a.setSlotLocked(Slot{Class: class, Name: name, LoadedAt: time.Now()})
	metrics.ResourceLoads.Inc()
	if swapped {
		metrics.ResourceSwaps.Inc()
	}
	a.logger.Info("model loaded",
		"class", class, "model", name,
		"swapped_from", prev.Class, "duration", time.Since(start))

	return AcquireResult{Loaded: true, Swapped: swapped, Class: class, release: a.holdLocked()}, nil
}

func (a *Arbiter) holdLocked() func() {
	if a.holders == 0 {
		a.idle = make(chan struct{})
	}
	a.holders++
	gen := a.gen
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if gen != a.gen || a.holders == 0 {
				return
			}
			a.holders--
			if a.holders == 0 {
				close(a.idle)
			}
		})
	}
}

func (a *Arbiter) setSlotLocked(s Slot) {
	a.slot = s
	metrics.ResidentClass.Set(int64(s.Class))
}

// Release unloads whatever is resident and empties the slot. Outstanding
// holds are discarded. Releasing an empty slot is a no-op.
func (a *Arbiter) Release(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.releaseLocked(ctx)
}

func (a *Arbiter) releaseLocked(ctx context.Context) error {
	if a.holders > 0 {
		a.holders = 0
		close(a.idle)
	}
	a.gen++

	prev := a.slot
	if prev.Class == domain.ResourceNone {
		return nil
	}
	a.setSlotLocked(Slot{})

	if err := a.loader.Unload(ctx, prev.Class, prev.Name); err != nil {
		a.logger.Warn("model unload failed", "class", prev.Class, "model", prev.Name, "error", err)
		return fmt.Errorf("unload %s model %q: %w", prev.Class, prev.Name, err)
	}
	a.logger.Info("model released", "class", prev.Class, "model", prev.Name)
	return nil
}

// ReleaseIdle releases the slot only when class is resident and no turn holds
// it. It reports whether a release happened.
func (a *Arbiter) ReleaseIdle(ctx context.Context, class domain.ResourceClass) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.slot.Class != class || class == domain.ResourceNone || a.holders > 0 {
		return false, nil
	}
	return true, a.releaseLocked(ctx)
}

// Current returns the resident class.
func (a *Arbiter) Current() domain.ResourceClass {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slot.Class
}

// Snapshot returns the slot state including the number of holders.
func (a *Arbiter) Snapshot() Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.slot
	s.Holders = a.holders
	return s
}
