package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/naresh-chaudhary/tw-tasks-executor/kafka/producer"
	"github.com/naresh-chaudhary/tw-tasks-executor/pgrepo"
	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/processing"
	"github.com/naresh-chaudhary/tw-tasks-executor/taskstore"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/bucket"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/lifecycle"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/metrics"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/triggerer"
)

// Config is everything engine.New needs beyond its collaborators.
type Config struct {
	Triggering   triggering.Config
	Brokers      []string
	Task         taskstore.Config
	Resurrection taskstore.ScannerConfig

	// BucketCapacity overrides processing.DefaultCapacity per bucket id;
	// a bucket absent from this map gets the default.
	BucketCapacity map[string]int
}

// Engine is the triggering core's composition root. It implements
// protocol.Lifecycle (and fmt.Stringer, for application.Component) so it
// can be registered directly with application.New.
type Engine struct {
	cfg Config
	log protocol.Logger

	db       *pgrepo.DB
	store    *taskstore.Store
	metrics  *metrics.Metrics
	executor processing.Executor

	processing *processing.Service
	lifecycle  *lifecycle.Controller
	producer   *producer.Producer
	triggerer  *triggerer.Triggerer
	scanner    *taskstore.Scanner
	dispatch   *dispatcher
	buckets    map[string]*bucket.ConsumerBucket
}

// New builds an Engine wiring every configured bucket. executor is the
// external task-processing callback (out of scope for this core, see
// processing.Executor); registry resolves task types to buckets; db is an
// already-started pgrepo.DB; prod is an already-constructed (not yet
// necessarily started) producer; reg receives this engine's metrics.
func New(
	cfg Config,
	registry triggering.HandlerRegistry,
	executor processing.Executor,
	db *pgrepo.DB,
	prod *producer.Producer,
	reg prometheus.Registerer,
	log protocol.Logger,
	precond triggerer.Precondition,
) (*Engine, error) {
	if err := cfg.Triggering.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid triggering config: %w", err)
	}
	if log == nil {
		log = protocol.NopLogger{}
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := metrics.New(reg)
	store := taskstore.New(db, cfg.Task)
	procSvc := processing.New(executor, log)
	lc := lifecycle.New(log)
	disp := newDispatcher()
	procSvc.OnCompletion(disp.dispatch)

	var opts []triggerer.Option
	if precond != nil {
		opts = append(opts, triggerer.WithPrecondition(precond))
	}
	trig := triggerer.New(cfg.Triggering, registry, procSvc, prod, store, m, log, opts...)

	scanner := taskstore.NewScanner(cfg.Resurrection, store, trig.Trigger, log)

	e := &Engine{
		cfg:        cfg,
		log:        log,
		db:         db,
		store:      store,
		metrics:    m,
		executor:   executor,
		processing: procSvc,
		lifecycle:  lc,
		producer:   prod,
		triggerer:  trig,
		scanner:    scanner,
		dispatch:   disp,
		buckets:    make(map[string]*bucket.ConsumerBucket),
	}

	for id, bc := range cfg.Triggering.Buckets {
		capacity := cfg.BucketCapacity[id]
		procSvc.ConfigureBucket(id, capacity)

		b := bucket.New(cfg.Brokers, cfg.Triggering, bc, procSvc, m, log)
		e.buckets[id] = b
		disp.register(id, b.OnTaskCompleted)
		lc.Register(id, b, bc.AutoStartProcessing)
	}

	return e, nil
}

// String implements fmt.Stringer, so Engine can be registered as an
// application.Component.
func (e *Engine) String() string { return "triggering-engine" }

// Trigger exposes the wired Triggerer for callers outside this package
// (e.g. an HTTP or RPC layer that accepts a task id and triggers it).
func (e *Engine) Trigger(ctx context.Context, task triggering.Task) error {
	return e.triggerer.Trigger(ctx, task)
}

// StartTasksProcessing starts a single bucket on demand, for a host
// application exposing manual bucket control.
func (e *Engine) StartTasksProcessing(ctx context.Context, bucketID string) error {
	return e.lifecycle.StartTasksProcessing(ctx, bucketID)
}

// StopTasksProcessing stops a single bucket on demand, returning a channel
// closed once the stop completes.
func (e *Engine) StopTasksProcessing(ctx context.Context, bucketID string) <-chan struct{} {
	return e.lifecycle.StopTasksProcessing(ctx, bucketID)
}

// Start brings up every auto-start bucket's consumer group and the
// resurrection scanner.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.lifecycle.ApplicationStarted(ctx); err != nil {
		return fmt.Errorf("engine: start buckets: %w", err)
	}
	if err := e.scanner.Start(ctx); err != nil {
		return fmt.Errorf("engine: start resurrection scanner: %w", err)
	}
	return nil
}

// Stop drains every bucket through STOP_IN_PROGRESS and stops the
// resurrection scanner.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycle.PrepareForShutdown(ctx)
	return e.scanner.Stop(ctx)
}

// GetTasksProcessingState reports bucketID's current lifecycle state.
func (e *Engine) GetTasksProcessingState(bucketID string) (lifecycle.State, bool) {
	return e.lifecycle.GetTasksProcessingState(bucketID)
}

// PrepareForShutdown stops every bucket ahead of process exit, for a host
// application that wants to drain before calling Stop. It leaves the
// resurrection scanner running; Stop performs the same bucket drain and
// also stops the scanner. This is exposed separately since CanShutdown
// only makes sense once called.
func (e *Engine) PrepareForShutdown(ctx context.Context) {
	e.lifecycle.PrepareForShutdown(ctx)
}

// CanShutdown reports whether every bucket has fully drained following a
// PrepareForShutdown call.
func (e *Engine) CanShutdown() bool {
	return e.lifecycle.CanShutdown()
}

// dispatcher fans a single triggering.CompletionListener out to the
// per-bucket listener registered by each ConsumerBucket, since
// triggering.ProcessingService supports only one listener process-wide but
// each bucket owns its own offset tracker and must only hear about its own
// completions.
type dispatcher struct {
	mu        sync.RWMutex
	listeners map[string]triggering.CompletionListener
}

func newDispatcher() *dispatcher {
	return &dispatcher{listeners: make(map[string]triggering.CompletionListener)}
}

func (d *dispatcher) register(bucketID string, listener triggering.CompletionListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[bucketID] = listener
}

func (d *dispatcher) dispatch(bucketID, topic string, partition int32, offset int64, sameProcessTrigger bool) {
	d.mu.RLock()
	listener, ok := d.listeners[bucketID]
	d.mu.RUnlock()
	if !ok {
		return
	}
	listener(bucketID, topic, partition, offset, sameProcessTrigger)
}
