package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
)

// worker is the critical section of one module. Every field below view is
// owned by the loop goroutine.
type worker struct {
	s     *Scheduler
	id    string
	queue chan func(context.Context)
	stop  chan struct{}
	out   *outbox

	// view is the last committed module, readable without queueing. The
	// module it points to is never modified.
	view atomic.Pointer[module.Module]

	module   *module.Module
	timers   map[string]*pinTimer
	degraded map[string]bool
	gen      uint64
}

// pinTimer is the single pending evaluation of an auto pin.
type pinTimer struct {
	gen   uint64
	timer Timer
}

func newWorker(s *Scheduler, m *module.Module) *worker {
	w := &worker{
		s:        s,
		id:       m.ID,
		queue:    make(chan func(context.Context), s.cfg.QueueDepth),
		stop:     make(chan struct{}),
		out:      newOutbox(s.ctx, m.ID, s.sink, s.logger),
		module:   m,
		timers:   make(map[string]*pinTimer),
		degraded: make(map[string]bool),
	}
	w.view.Store(m)
	return w
}

func (w *worker) loop() {
	defer w.s.wg.Done()
	for {
		select {
		case <-w.stop:
			for id := range w.timers {
				w.cancelTimer(id)
			}
			close(w.out.quit)
			return
		case task := <-w.queue:
			task(w.s.ctx)
		}
	}
}

// submit queues fn and waits for its result. fn runs with the caller's
// context; if that is cancelled before fn starts, fn is skipped. If it
// ends while fn runs, submit returns at once without fn's result.
func (w *worker) submit(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	task := func(context.Context) {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn(ctx)
	}

	select {
	case w.queue <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return ErrClosed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return ErrClosed
	}
}

// post queues fn without waiting. Used by timers and sensor readings.
func (w *worker) post(fn func(context.Context)) {
	select {
	case w.queue <- fn:
	case <-w.stop:
	}
}

func (w *worker) begin() *Tx {
	return &Tx{Module: w.module.DeepCopy(), Now: w.s.now(), s: w.s}
}

// commit persists tx and makes it the cached module, then reconciles
// timers and emits directives. On failure nothing changes.
func (w *worker) commit(ctx context.Context, tx *Tx) error {
	if err := w.s.store.Save(ctx, tx.Module); err != nil {
		w.s.metrics.StoreFailure(w.id)
		if !errors.Is(err, module.ErrStore) {
			err = fmt.Errorf("%w: %w", module.ErrStore, err)
		}
		return err
	}

	old := w.module
	w.module = tx.Module
	w.view.Store(tx.Module)
	w.reconcile(old, tx)
	w.publish(tx)
	return nil
}

// reconcile brings timers in line with the cached module: auto pins whose
// mode, policy or arm time changed (or that were forced by a transition,
// or have no timer) are re-armed; every other timer is cancelled.
func (w *worker) reconcile(old *module.Module, tx *Tx) {
	forced := make(map[string]bool)
	for _, c := range tx.changes {
		if c.t.Rearm || c.t.Disarm {
			forced[c.pinID] = true
		}
	}

	live := make(map[string]bool, len(w.module.Pins))
	for i := range w.module.Pins {
		p := &w.module.Pins[i]
		live[p.ID] = true
		if p.Mode != automation.ModeAuto || p.Policy == nil {
			w.disarm(p.ID)
			continue
		}
		if _, ok := p.Policy.(automation.ThresholdPolicy); !ok {
			delete(w.degraded, p.ID)
		}
		_, armed := w.timers[p.ID]
		if forced[p.ID] || !armed || pinChanged(old, p) {
			w.arm(p, tx.Now, 0)
		}
	}
	for id := range w.timers {
		if !live[id] {
			w.disarm(id)
		}
	}
	for id := range w.degraded {
		if !live[id] {
			delete(w.degraded, id)
		}
	}

	w.s.indexSensors(w.id, w.module.SensorIDs())
}

func pinChanged(old *module.Module, p *module.Pin) bool {
	prev, err := old.Pin(p.ID)
	if err != nil {
		return true
	}
	return prev.Mode != p.Mode || prev.Policy != p.Policy || !prev.ArmedAt.Equal(p.ArmedAt)
}

// arm replaces the pin's timer. A positive delay overrides the policy's
// own schedule.
func (w *worker) arm(p *module.Pin, now time.Time, delay time.Duration) {
	w.cancelTimer(p.ID)

	d := delay
	if d <= 0 {
		var ok bool
		if d, ok = w.nextEvaluation(p, now); !ok {
			return
		}
	}

	w.gen++
	gen, pinID := w.gen, p.ID
	w.timers[pinID] = &pinTimer{
		gen: gen,
		timer: w.s.clock.AfterFunc(d, func() {
			w.post(func(ctx context.Context) { w.fire(ctx, pinID, gen) })
		}),
	}
}

// nextEvaluation returns how long until p must be evaluated again.
func (w *worker) nextEvaluation(p *module.Pin, now time.Time) (time.Duration, bool) {
	switch pol := p.Policy.(type) {
	case automation.DurationPolicy:
		deadline, _ := automation.Deadline(pol, p.ArmedAt)
		return max(deadline.Sub(now), 0), true
	case automation.WindowPolicy:
		return untilNextTick(now, w.s.cfg.WindowTick), true
	case automation.ThresholdPolicy:
		return w.s.cfg.StalenessCheckInterval, true
	default:
		return 0, false
	}
}

// disarm cancels the pin's timer and forgets its degraded status.
func (w *worker) disarm(pinID string) {
	w.cancelTimer(pinID)
	delete(w.degraded, pinID)
}

func (w *worker) cancelTimer(pinID string) {
	if pt, ok := w.timers[pinID]; ok {
		pt.timer.Stop()
		delete(w.timers, pinID)
	}
}

// fire handles a timer. Firings from a cancelled or replaced timer carry
// an old generation and are dropped.
func (w *worker) fire(ctx context.Context, pinID string, gen uint64) {
	pt, ok := w.timers[pinID]
	if !ok || pt.gen != gen {
		w.s.logger.Debug("discarding stale timer", "module_id", w.id, "pin_id", pinID)
		return
	}
	delete(w.timers, pinID)

	w.reevaluate(ctx, func(tx *Tx) {
		if pin, err := tx.Module.Pin(pinID); err == nil {
			tx.reevaluatePin(pin)
		}
	})
}

// reevaluate runs an automated evaluation. Nothing is saved unless an
// output changed or a duration expired. If the save fails the affected
// pins are retried after the configured delay.
func (w *worker) reevaluate(ctx context.Context, eval func(tx *Tx)) {
	tx := w.begin()
	eval(tx)

	if !tx.dirty {
		w.reconcile(w.module, tx)
		for _, c := range tx.changes {
			w.trackDegraded(c)
		}
		return
	}

	if err := w.commit(ctx, tx); err != nil {
		w.s.logger.Error("persisting automated transition failed",
			"module_id", w.id, "error", err, "retry_in", w.s.cfg.StoreRetryDelay)
		for i := range w.module.Pins {
			p := &w.module.Pins[i]
			if _, armed := w.timers[p.ID]; !armed && p.Mode == automation.ModeAuto {
				w.arm(p, tx.Now, w.s.cfg.StoreRetryDelay)
			}
		}
	}
}

// restore re-evaluates every auto pin after a restart and re-sends every
// pin's output.
func (w *worker) restore(ctx context.Context) error {
	tx := w.begin()
	for i := range tx.Module.Pins {
		p := &tx.Module.Pins[i]
		if p.Mode != automation.ModeAuto {
			tx.record(p.ID, automation.Transition{From: p.Mode, To: p.Mode, Output: p.Output}, module.CauseRestore, true)
			continue
		}
		t := p.Reevaluate(tx.Input(p.Policy))
		cause := module.CauseRestore
		if t.Expired {
			cause = module.CauseExpiry
		}
		tx.record(p.ID, t, cause, true)
	}

	if tx.dirty {
		return w.commit(ctx, tx)
	}
	w.reconcile(w.module, tx)
	w.publish(tx)
	return nil
}

// publish hands the directives of a committed operation to the outbox in
// order and updates degraded-policy tracking.
func (w *worker) publish(tx *Tx) {
	for _, c := range tx.changes {
		w.trackDegraded(c)
		if !c.emit {
			continue
		}
		w.s.metrics.Transition(w.id, c.cause, c.t.Output)
		if w.s.sink == nil {
			continue
		}
		d := Directive{
			ModuleID: w.id,
			PinID:    c.pinID,
			State:    c.t.To,
			Output:   c.t.Output,
			Cause:    c.cause,
			At:       tx.Now,
		}
		w.out.push(outboxItem{d: d})
	}
}

// trackDegraded logs and counts a threshold policy going without fresh
// readings, once per episode.
func (w *worker) trackDegraded(c change) {
	if !c.t.Stale {
		if w.degraded[c.pinID] {
			delete(w.degraded, c.pinID)
			w.s.logger.Info("sensor policy recovered", "module_id", w.id, "pin_id", c.pinID)
		}
		return
	}
	if w.degraded[c.pinID] {
		return
	}
	w.degraded[c.pinID] = true
	w.s.metrics.StaleEvaluation(w.id, c.pinID)
	w.s.logger.Warn("sensor policy degraded: no fresh reading",
		"module_id", w.id, "pin_id", c.pinID, "staleness_bound", w.s.cfg.StalenessBound)
}
