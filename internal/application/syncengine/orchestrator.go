package syncengine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/tracing"
)

// DefaultInterval is the schedule used before Start sets one.
const DefaultInterval = 15 * time.Minute

// Cycle triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerForced    = "forced"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)

// Report summarizes one cycle.
type Report struct {
	CycleID     string    `json:"cycleId"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Pulled      int       `json:"pulled"`
	Pushed      int       `json:"pushed"`
	Conflicts   int       `json:"conflicts"`
	Resolved    []string  `json:"resolved,omitempty"`
	Parked      []string  `json:"parked,omitempty"`
	Failed      []string  `json:"failed,omitempty"`
	IndexPushed bool      `json:"indexPushed"`
	Error       string    `json:"error,omitempty"`
}

// Duration returns how long the cycle ran.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       syncstate.State `json:"state"`
	Running     bool            `json:"running"`
	Scheduled   bool            `json:"scheduled"`
	QueueLength int             `json:"queueLength"`
	Parked      []string        `json:"parked,omitempty"`
}

// Orchestrator runs sync cycles one at a time, on demand or on a schedule.
// All coordination with other components goes through the local store.
type Orchestrator struct {
	store    *localstore.Store
	remote   ports.RemoteDocumentStore
	queue    *Queue
	resolver *Resolver
	registry *conflict.Registry
	logger   *logging.Logger
	tracer   *tracing.Tracer
	now      func() time.Time
	lockPath string
	backend  string

	running atomic.Bool
	cycles  sync.WaitGroup

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	hooks    []func(context.Context, *Report)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLockPath makes every cycle hold an exclusive file lock at path, so
// separate processes sharing a cache never sync at the same time.
func WithLockPath(path string) Option {
	return func(o *Orchestrator) {
		o.lockPath = path
	}
}

// WithSkewTolerance sets how much newer a local page must be to win a merge.
func WithSkewTolerance(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.resolver.skew = d
	}
}

// WithInterval sets the schedule used for nextSync before Start is called.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.interval = d
	}
}

// WithBackendName labels logs with the remote backend.
func WithBackendName(name string) Option {
	return func(o *Orchestrator) {
		o.backend = name
	}
}

// New builds an orchestrator and normalizes a sync record left in the
// syncing state by a process that died mid-cycle.
func New(ctx context.Context, store *localstore.Store, remote ports.RemoteDocumentStore, registry *conflict.Registry, opts ...Option) (*Orchestrator, error) {
	queue := NewQueue(store)
	o := &Orchestrator{
		store:    store,
		remote:   remote,
		queue:    queue,
		resolver: NewResolver(store, remote, queue),
		registry: registry,
		logger:   logging.Default(),
		tracer:   tracing.Default(),
		now:      time.Now,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.queue.now = o.now
	o.resolver.now = o.now
	o.resolver.logger = o.logger
	o.resolver.tracer = o.tracer

	if err := o.recover(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) recover(ctx context.Context) error {
	if o.lockPath != "" {
		// A live cycle in another process holds the lock; its record is not stale.
		lock := flock.New(o.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return errors.Storage("acquire sync lock", err)
		}
		if !locked {
			return nil
		}
		defer func() { _ = lock.Unlock() }()
	}
	return o.store.UpdateState(ctx, func(s *syncstate.State) error {
		if s.Recover() {
			s.Record(syncstate.NewEvent("", syncstate.EventWarning, o.now(),
				"previous sync cycle was interrupted", nil))
			o.logger.Warn("recovered interrupted sync cycle")
		}
		return nil
	})
}

// Queue returns the pending-change queue.
func (o *Orchestrator) Queue() *Queue {
	return o.queue
}

// Resolver returns the conflict resolver.
func (o *Orchestrator) Resolver() *Resolver {
	return o.resolver
}

// Registry returns the strategy registry.
func (o *Orchestrator) Registry() *conflict.Registry {
	return o.registry
}

// IsRunning reports whether a cycle is in flight in this process.
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// Start runs a cycle now and then every interval. Calling Start again
// replaces the schedule; a cycle already in flight keeps running.
func (o *Orchestrator) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	o.mu.Lock()
	first := o.cancel == nil
	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.interval = interval
	o.mu.Unlock()

	if first {
		o.trigger(ctx, TriggerStartup)
	}
	go o.schedule(ctx, interval, done)
}

func (o *Orchestrator) schedule(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.trigger(ctx, TriggerScheduled)
		}
	}
}

// Stop cancels the schedule. It does not interrupt a cycle in flight.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until no cycle is in flight.
func (o *Orchestrator) Wait() {
	o.cycles.Wait()
}

// ForceSync starts a cycle in the background. It returns false, and does
// nothing, when a cycle is already running.
func (o *Orchestrator) ForceSync() bool {
	return o.trigger(context.Background(), TriggerForced)
}

// trigger claims the cycle slot and runs a cycle on its own goroutine. The
// cycle context is detached from ctx so that Stop never preempts it.
func (o *Orchestrator) trigger(ctx context.Context, trigger string) bool {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Debug("sync cycle skipped, another is running", "trigger", trigger)
		return false
	}
	o.cycles.Add(1)
	go func() {
		defer o.cycles.Done()
		defer o.running.Store(false)
		_, _ = o.runCycle(context.WithoutCancel(ctx), trigger)
	}()
	return true
}

// RunCycle runs one cycle synchronously. It fails with ErrCycleInProgress
// when a cycle is already running in this or another process.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, errors.ErrCycleInProgress
	}
	o.cycles.Add(1)
	defer o.cycles.Done()
	defer o.running.Store(false)
	return o.runCycle(ctx, TriggerManual)
}

func (o *Orchestrator) currentInterval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interval
}

func (o *Orchestrator) runCycle(ctx context.Context, trigger string) (*Report, error) {
	report := &Report{
		CycleID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: o.now(),
	}
	interval := o.currentInterval()

	if o.lockPath != "" {
		lock := flock.New(o.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			err = errors.Storage("acquire sync lock", err)
			o.abort(ctx, report, err, interval)
			return nil, err
		}
		if !locked {
			o.logger.Info("sync cycle skipped, lock held by another process", "lock", o.lockPath)
			o.abort(ctx, report, errors.ErrCycleInProgress, interval)
			return nil, errors.ErrCycleInProgress
		}
		defer func() { _ = lock.Unlock() }()
	}

	ctx = logging.WithCycleID(ctx, report.CycleID)
	if o.backend != "" {
		ctx = logging.WithBackend(ctx, o.backend)
	}
	ctx, span := o.tracer.StartCycleSpan(ctx, report.CycleID, trigger)
	logging.LogCycleStart(ctx, o.logger, trigger)

	err := o.store.UpdateState(ctx, func(s *syncstate.State) error {
		if err := s.Transition(syncstate.StatusSyncing); err != nil {
			return err
		}
		s.LastSyncAttempt = report.StartedAt.UTC()
		s.Interval = interval
		return nil
	})
	if err != nil {
		o.abort(ctx, report, err, interval)
		logging.LogCycleFailed(ctx, o.logger, err, o.now().Sub(report.StartedAt))
		span.EndWithError(err)
		return nil, err
	}

	cycleErr := o.execute(ctx, report, span)
	report.FinishedAt = o.now()
	if cycleErr != nil {
		report.Error = cycleErr.Error()
	}

	if err := o.finish(ctx, report, cycleErr, interval); err != nil {
		o.logger.ErrorContext(ctx, "failed to record sync cycle outcome", "error", err)
		if cycleErr == nil {
			cycleErr = err
		}
	}

	defer o.notify(ctx, report)
	if cycleErr != nil {
		logging.LogCycleFailed(ctx, o.logger, cycleErr, report.Duration())
		span.EndWithError(cycleErr)
		return report, cycleErr
	}
	logging.LogCycleComplete(ctx, o.logger, report.Duration(), report.Pulled, report.Pushed, report.Conflicts)
	span.SetOutcome(report.Pulled, report.Pushed, len(report.Resolved), len(report.Parked))
	span.End()
	return report, nil
}

// OnCycle registers fn to run after every cycle that got past the lock,
// successful or not. Hooks run on the cycle goroutine.
func (o *Orchestrator) OnCycle(fn func(ctx context.Context, r *Report)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, fn)
}

func (o *Orchestrator) notify(ctx context.Context, r *Report) {
	o.mu.Lock()
	hooks := slices.Clone(o.hooks)
	o.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx, r)
	}
}

// finish moves the status machine out of Syncing. The schedule is always
// advanced, whatever the outcome.
func (o *Orchestrator) finish(ctx context.Context, report *Report, cycleErr error, interval time.Duration) error {
	finished := report.FinishedAt.UTC()
	err := o.store.UpdateState(ctx, func(s *syncstate.State) error {
		s.NextSync = finished.Add(interval)

		if cycleErr != nil {
			if err := s.Transition(syncstate.StatusError); err != nil {
				return err
			}
			s.ErrorCount++
			s.LastError = cycleErr.Error()
			s.Record(syncstate.NewEvent(report.CycleID, syncstate.EventError, finished,
				"sync cycle failed", map[string]string{
					"trigger": report.Trigger,
					"error":   cycleErr.Error(),
					"code":    string(errors.CodeOf(cycleErr)),
				}))
			return s.Transition(syncstate.StatusIdle)
		}

		if err := s.Transition(syncstate.StatusIdle); err != nil {
			return err
		}
		s.LastSync = finished
		if len(report.Failed) == 0 {
			s.ErrorCount = 0
			s.LastError = ""
		}
		s.Record(syncstate.NewEvent(report.CycleID, syncstate.EventSuccess, finished,
			"sync cycle completed", successDetails(report)))
		return nil
	})
	if err != nil {
		return err
	}
	if cycleErr == nil {
		return o.store.TouchLastSync(ctx, finished)
	}
	return nil
}

// abort records a cycle that stopped before entering Syncing. The status
// is left as it was, but the schedule still advances. A cycle skipped because
// another process holds the lock is not counted as an error.
func (o *Orchestrator) abort(ctx context.Context, report *Report, cycleErr error, interval time.Duration) {
	finished := o.now().UTC()
	err := o.store.UpdateState(ctx, func(s *syncstate.State) error {
		s.NextSync = finished.Add(interval)
		if errors.Is(cycleErr, errors.ErrCycleInProgress) {
			return nil
		}
		s.LastSyncAttempt = report.StartedAt.UTC()
		s.ErrorCount++
		s.LastError = cycleErr.Error()
		s.Record(syncstate.NewEvent(report.CycleID, syncstate.EventError, finished,
			"sync cycle aborted", map[string]string{
				"trigger": report.Trigger,
				"error":   cycleErr.Error(),
				"code":    string(errors.CodeOf(cycleErr)),
			}))
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to record aborted sync cycle", "error", err)
	}
}

func successDetails(r *Report) map[string]string {
	details := map[string]string{
		"trigger":   r.Trigger,
		"pulled":    strconv.Itoa(r.Pulled),
		"pushed":    strconv.Itoa(r.Pushed),
		"conflicts": strconv.Itoa(r.Conflicts),
	}
	if len(r.Resolved) > 0 {
		details["resolved"] = strings.Join(r.Resolved, ",")
	}
	if len(r.Parked) > 0 {
		details["parked"] = strings.Join(r.Parked, ",")
	}
	if len(r.Failed) > 0 {
		details["failed"] = strings.Join(r.Failed, ",")
	}
	return details
}

// GetStatus returns the persisted sync record with live engine state.
func (o *Orchestrator) GetStatus(ctx context.Context) (*Status, error) {
	state, err := o.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	scheduled := o.cancel != nil
	o.mu.Unlock()

	st := &Status{
		State:       *state,
		Running:     o.running.Load(),
		Scheduled:   scheduled,
		QueueLength: len(state.PendingChanges),
	}
	for id := range state.Manual {
		st.Parked = append(st.Parked, id)
	}
	sort.Strings(st.Parked)
	return st, nil
}

// History returns up to n events, newest first.
func (o *Orchestrator) History(ctx context.Context, n int) ([]syncstate.Event, error) {
	state, err := o.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	return state.RecentEvents(n), nil
}

// ParkedConflicts returns the items waiting for an operator, sorted by id.
func (o *Orchestrator) ParkedConflicts(ctx context.Context) ([]conflict.Item, error) {
	state, err := o.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]conflict.Item, 0, len(state.Manual))
	for _, it := range state.Manual {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// ReleaseConflict clears a parked item. The next cycle settles it once with
// strategy and then returns to the registry for that id.
func (o *Orchestrator) ReleaseConflict(ctx context.Context, id string, strategy conflict.Strategy) error {
	if !strategy.IsValid() || strategy == conflict.StrategyManual {
		return errors.NewError(errors.CodeValidation,
			fmt.Sprintf("strategy %q cannot settle a parked conflict", strategy), errors.ErrUnknownStrategy)
	}
	released := false
	err := o.store.UpdateState(ctx, func(s *syncstate.State) error {
		released = s.Release(id, strategy)
		if released {
			s.Record(syncstate.NewEvent("", syncstate.EventConflict, o.now(),
				fmt.Sprintf("conflict %s released as %s", id, strategy),
				map[string]string{"id": id, "strategy": string(strategy)}))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !released {
		return errors.WithContext(
			errors.NewError(errors.CodeNotFound, fmt.Sprintf("no parked conflict %q", id), errors.ErrNotFound),
			"id", id)
	}
	return nil
}
