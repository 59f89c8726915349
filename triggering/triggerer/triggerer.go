package triggerer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/naresh-chaudhary/tw-tasks-executor/internal/obslog"
	"github.com/naresh-chaudhary/tw-tasks-executor/kafka"
	"github.com/naresh-chaudhary/tw-tasks-executor/kafka/producer"
	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/metrics"
)

// Precondition is an optional caller-supplied assertion run before every
// Trigger call, e.g. "must not be called from within an active
// transaction". A nil Precondition skips the check.
type Precondition func(ctx context.Context) error

// Triggerer is the triggering engine's public entry point.
type Triggerer struct {
	config       triggering.Config
	registry     triggering.HandlerRegistry
	processing   triggering.ProcessingService
	producer     *producer.Producer
	store        triggering.TaskStore
	metrics      *metrics.Metrics
	log          protocol.Logger
	throttled    *obslog.Throttled
	precondition Precondition
}

// Option configures a Triggerer at construction time.
type Option func(*Triggerer)

// WithPrecondition installs an assertion run before every Trigger call.
func WithPrecondition(p Precondition) Option {
	return func(t *Triggerer) { t.precondition = p }
}

// New builds a Triggerer. config, registry, processing, producer and store
// are all required collaborators; metrics and log may be nil.
func New(
	config triggering.Config,
	registry triggering.HandlerRegistry,
	processing triggering.ProcessingService,
	prod *producer.Producer,
	store triggering.TaskStore,
	m *metrics.Metrics,
	log protocol.Logger,
	opts ...Option,
) *Triggerer {
	if log == nil {
		log = protocol.NopLogger{}
	}
	t := &Triggerer{
		config:     config,
		registry:   registry,
		processing: processing,
		producer:   prod,
		store:      store,
		metrics:    m,
		log:        log,
		throttled:  obslog.New(log, 1, 3),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trigger resolves task to a handler and bucket and hands it off for
// processing, either in-process or over the bucket's trigger topic.
func (t *Triggerer) Trigger(ctx context.Context, task triggering.Task) error {
	if t.precondition != nil {
		if err := t.precondition(ctx); err != nil {
			return fmt.Errorf("trigger precondition: %w", err)
		}
	}

	handler, ok := t.registry.Resolve(task.Type)
	if !ok {
		t.markError(ctx, task, "no handler registered")
		return fmt.Errorf("%w: %q", triggering.ErrNoHandler, task.Type)
	}

	bucketID := handler.BucketID()
	bc, ok := t.config.Bucket(bucketID)
	if !ok {
		t.markError(ctx, task, "bucket not configured")
		return fmt.Errorf("%w: %q", triggering.ErrBucketNotFound, bucketID)
	}

	msg := task.ToTriggerMessage()
	topic := t.config.Topic(bucketID)

	if bc.TriggerInSameProcess {
		tt := triggering.TaskTriggering{Task: msg, BucketID: bucketID, Topic: topic}
		if resp := t.processing.AddTaskForProcessing(ctx, tt, true); resp == triggering.ProcessingOK {
			if t.metrics != nil {
				t.metrics.TriggersReceived.WithLabelValues(bucketID).Inc()
			}
			return nil
		}
		// FULL (or any other response) falls through to the broker path.
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal trigger message: %w", err)
	}

	key, err := randomKey()
	if err != nil {
		return fmt.Errorf("generate trigger key: %w", err)
	}

	t.producer.Produce(ctx, kafka.Message{Key: key, Value: payload, Topic: topic}, func(_ *kafka.Message, err error) {
		if err != nil {
			t.throttled.Error(ctx, "trigger/"+bucketID, "trigger produce failed", "bucket", bucketID, "task_id", task.ID, "err", err)
			return
		}
		t.log.Debug(ctx, "trigger produced", "bucket", bucketID, "task_id", task.ID)
	})

	return nil
}

// markError sets task ERROR when no handler or bucket could be resolved for
// it, tolerating a stale version on the store since the task may have
// already moved on.
func (t *Triggerer) markError(ctx context.Context, task triggering.Task, reason string) {
	if t.store == nil {
		return
	}
	if err := t.store.SetStatus(ctx, task.ID, task.Version, triggering.TaskStatusError); err != nil {
		t.log.Warn(ctx, "mark task error failed", "task_id", task.ID, "reason", reason, "err", err)
		if t.metrics != nil {
			t.metrics.FailedStatusChanges.WithLabelValues(triggering.DefaultBucketID).Inc()
		}
		return
	}
	if t.metrics != nil {
		t.metrics.TasksMarkedError.WithLabelValues(triggering.DefaultBucketID).Inc()
	}
}

// randomKey produces a non-null random 16-bit key, big-endian
// encoded. Its only job is to defeat the producer's sticky batch
// partitioner by giving every send distinct per-send entropy; the specific
// encoding doesn't matter beyond "two non-zero-width random bytes".
func randomKey() ([]byte, error) {
	for {
		var b [2]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		if v := binary.BigEndian.Uint16(b[:]); v != 0 {
			return b[:], nil
		}
	}
}
