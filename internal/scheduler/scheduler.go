package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("scheduler: closed")

const (
	defaultWindowTick      = time.Minute
	defaultStalenessCheck  = 15 * time.Second
	defaultQueueDepth      = 64
	defaultStoreRetryDelay = 5 * time.Second
)

// Directive is a physical output command for one pin, emitted after the
// transition that produced it has been persisted.
type Directive struct {
	ModuleID string            `json:"module_id"`
	PinID    string            `json:"pin_id"`
	State    automation.Mode   `json:"state"`
	Output   automation.Output `json:"output"`
	Cause    string            `json:"cause"`
	At       time.Time         `json:"at"`
}

// Sink receives output directives. Each module's directives are delivered
// in commit order from a goroutine of their own. Failures are logged; they
// never undo the committed transition.
type Sink interface {
	Dispatch(ctx context.Context, d Directive) error
}

// Config tunes evaluation and timers.
type Config struct {
	// WindowTick is the re-evaluation period of window policies.
	WindowTick time.Duration

	// StalenessBound is the maximum age of a reading a threshold policy
	// accepts. Zero disables the check.
	StalenessBound time.Duration

	// StalenessCheckInterval is the re-evaluation period of threshold
	// policies between readings.
	StalenessCheckInterval time.Duration

	// QueueDepth bounds pending work per module. Submitters block when full.
	QueueDepth int

	// StoreRetryDelay delays the next evaluation of a pin whose automated
	// transition failed to persist.
	StoreRetryDelay time.Duration

	// Location is the site timezone used for time-of-day windows.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.WindowTick <= 0 {
		c.WindowTick = defaultWindowTick
	}
	if c.StalenessCheckInterval <= 0 {
		c.StalenessCheckInterval = defaultStalenessCheck
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.StoreRetryDelay <= 0 {
		c.StoreRetryDelay = defaultStoreRetryDelay
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Deps holds the collaborators of a Scheduler. Store and Readings are
// required; the rest default to no-ops.
type Deps struct {
	Store    module.Store
	Readings *automation.ReadingCache
	Sink     Sink
	Metrics  Metrics
	Logger   Logger
	Clock    Clock
}

// Scheduler owns one worker per module.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Scheduler struct {
	cfg      Config
	store    module.Store
	readings *automation.ReadingCache
	sink     Sink
	metrics  Metrics
	logger   Logger
	clock    Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	sensorMu      sync.RWMutex
	sensorModules map[string]map[string]struct{} // sensorID -> moduleIDs
	moduleSensors map[string][]string            // moduleID -> sensorIDs
}

// New creates a Scheduler. Workers start lazily on first use or in Restore.
func New(cfg Config, deps Deps) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:           cfg.withDefaults(),
		store:         deps.Store,
		readings:      deps.Readings,
		sink:          deps.Sink,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		clock:         deps.Clock,
		ctx:           ctx,
		cancel:        cancel,
		workers:       make(map[string]*worker),
		sensorModules: make(map[string]map[string]struct{}),
		moduleSensors: make(map[string][]string),
	}
	if s.readings == nil {
		s.readings = automation.NewReadingCache(0)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	return s
}

// Execute runs fn inside moduleID's critical section against a working
// copy of the module, persists the result and returns a copy of the
// committed module. If fn fails nothing is saved. If the save fails the
// error wraps module.ErrStore and the working copy is discarded.
func (s *Scheduler) Execute(ctx context.Context, moduleID string, fn func(tx *Tx) error) (*module.Module, error) {
	w, err := s.worker(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	var committed *module.Module
	err = w.submit(ctx, func(ctx context.Context) error {
		tx := w.begin()
		if err := fn(tx); err != nil {
			return err
		}
		if err := w.commit(ctx, tx); err != nil {
			return err
		}
		committed = w.module.DeepCopy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// View returns a copy of the module as last committed. Unlike Snapshot it
// does not wait behind queued operations.
func (s *Scheduler) View(ctx context.Context, moduleID string) (*module.Module, error) {
	w, err := s.worker(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	return w.view.Load().DeepCopy(), nil
}

// Snapshot returns a copy of the module as of every operation queued
// before it.
func (s *Scheduler) Snapshot(ctx context.Context, moduleID string) (*module.Module, error) {
	w, err := s.worker(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	var snap *module.Module
	err = w.submit(ctx, func(context.Context) error {
		snap = w.module.DeepCopy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// HandleReading records a raw sensor reading and queues re-evaluation of
// the threshold policies watching its sensor. Readings older than the
// latest one already known are recorded for history only. It reports
// whether the reading became the sensor's latest.
func (s *Scheduler) HandleReading(r automation.Reading) bool {
	if r.SensorID == "" {
		return false
	}
	if !s.readings.Record(r) {
		return false
	}

	s.sensorMu.RLock()
	ids := make([]string, 0, len(s.sensorModules[r.SensorID]))
	for id := range s.sensorModules[r.SensorID] {
		ids = append(ids, id)
	}
	s.sensorMu.RUnlock()

	for _, id := range ids {
		w := s.lookup(id)
		if w == nil {
			continue
		}
		sensorID := r.SensorID
		w.post(func(ctx context.Context) {
			w.reevaluate(ctx, func(tx *Tx) { tx.ReevaluateSensor(sensorID) })
		})
	}
	return true
}

// Restore loads every module from the store, re-arms its automated pins
// and re-sends each pin's output. Durations that expired while the
// process was down revert to off and are persisted.
func (s *Scheduler) Restore(ctx context.Context) error {
	modules, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing modules: %w", err)
	}

	var errs []error
	for _, m := range modules {
		w, err := s.adopt(m)
		if err != nil {
			return err
		}
		if err := w.submit(ctx, w.restore); err != nil {
			s.logger.Error("restoring module failed", "module_id", m.ID, "error", err)
			errs = append(errs, fmt.Errorf("module %s: %w", m.ID, err))
		}
	}
	s.logger.Info("scheduler restored", "modules", len(modules), "failed", len(errs))
	return errors.Join(errs...)
}

// Flush waits until every directive committed so far has been handed to
// the sink.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		if err := w.out.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every worker and cancels all timers. Work queued but not yet
// started fails with ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	s.cancel()
	for _, w := range workers {
		close(w.stop)
	}
	s.wg.Wait()
}

// ArmedPins returns the IDs of pins with a live timer, for diagnostics.
func (s *Scheduler) ArmedPins(ctx context.Context, moduleID string) ([]string, error) {
	w, err := s.worker(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = w.submit(ctx, func(context.Context) error {
		for _, p := range w.module.Pins {
			if _, ok := w.timers[p.ID]; ok {
				ids = append(ids, p.ID)
			}
		}
		return nil
	})
	return ids, err
}

// worker returns the worker for moduleID, loading the module on first use.
func (s *Scheduler) worker(ctx context.Context, moduleID string) (*worker, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if w := s.lookup(moduleID); w != nil {
		return w, nil
	}

	m, err := s.store.Load(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	return s.adopt(m)
}

// adopt starts a worker caching m unless one already exists.
func (s *Scheduler) adopt(m *module.Module) (*worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if w, ok := s.workers[m.ID]; ok {
		return w, nil
	}

	w := newWorker(s, m)
	s.workers[m.ID] = w
	s.wg.Add(2)
	go w.loop()
	go func() {
		defer s.wg.Done()
		w.out.run()
	}()
	return w, nil
}

func (s *Scheduler) lookup(moduleID string) *worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers[moduleID]
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// indexSensors records which sensors moduleID's threshold policies watch.
func (s *Scheduler) indexSensors(moduleID string, sensorIDs []string) {
	s.sensorMu.Lock()
	defer s.sensorMu.Unlock()

	for _, id := range s.moduleSensors[moduleID] {
		delete(s.sensorModules[id], moduleID)
		if len(s.sensorModules[id]) == 0 {
			delete(s.sensorModules, id)
		}
	}
	for _, id := range sensorIDs {
		if s.sensorModules[id] == nil {
			s.sensorModules[id] = make(map[string]struct{})
		}
		s.sensorModules[id][moduleID] = struct{}{}
	}
	if len(sensorIDs) == 0 {
		delete(s.moduleSensors, moduleID)
		return
	}
	s.moduleSensors[moduleID] = sensorIDs
}

// now returns the current time in the site timezone.
func (s *Scheduler) now() time.Time {
	return s.clock.Now().In(s.cfg.Location)
}
