package bucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/naresh-chaudhary/tw-tasks-executor/internal/obslog"
	"github.com/naresh-chaudhary/tw-tasks-executor/kafka/admin"
	"github.com/naresh-chaudhary/tw-tasks-executor/pipeline"
	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/metrics"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering/offsettracker"
)

// replicationFactor is used when a bucket's trigger topic has to be
// created. Production clusters are expected to run with a broker default
// that overrides this; it only matters for fresh, unconfigured brokers.
const replicationFactor = 1

// ConsumerBucket is a single bucket's consumer group and poll loop.
// Implements protocol.Lifecycle.
type ConsumerBucket struct {
	bucketID string
	topics   []string
	groupID  string
	brokers  []string

	fetchSize    int32
	partitions   int32
	pollTimeout  time.Duration
	commitEvery  time.Duration
	awaitTimeout time.Duration
	restartDelay time.Duration
	resetTo      *time.Duration

	processing triggering.ProcessingService
	metrics    *metrics.Metrics
	log        protocol.Logger
	throttled  *obslog.Throttled

	client  *kgo.Client
	tracker *offsettracker.Tracker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a ConsumerBucket from the shared triggering config and a
// single bucket's configuration. It does not start consuming; call Start.
func New(
	brokers []string,
	cfg triggering.Config,
	bc triggering.BucketConfig,
	processing triggering.ProcessingService,
	m *metrics.Metrics,
	log protocol.Logger,
) *ConsumerBucket {
	if log == nil {
		log = protocol.NopLogger{}
	}

	bucketID := bc.ID
	if bucketID == "" {
		bucketID = triggering.DefaultBucketID
	}

	topics := append([]string{cfg.Topic(bucketID)}, cfg.TopicAliases(bucketID)...)

	return &ConsumerBucket{
		bucketID:     bucketID,
		topics:       topics,
		groupID:      cfg.GroupIDFor(bc),
		brokers:      brokers,
		fetchSize:    bc.FetchSize,
		partitions:   bc.PartitionsCount,
		pollTimeout:  triggering.GenericMediumDelay,
		commitEvery:  triggering.GenericMediumDelay,
		awaitTimeout: triggering.GenericMediumDelay,
		restartDelay: triggering.GenericMediumDelay,
		resetTo:      bc.AutoResetOffsetToDuration,
		processing:   processing,
		metrics:      m,
		log:          log,
		throttled:    obslog.New(log, 1, 3),
		tracker:      offsettracker.New(),
	}
}

// Start ensures the bucket's topics exist, opens the consumer group, and
// begins the poll loop in the background. Implements protocol.Lifecycle.
func (b *ConsumerBucket) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return errors.New("bucket already started")
	}

	client, err := b.openClient(ctx)
	if err != nil {
		return fmt.Errorf("create kafka client for bucket %q: %w", b.bucketID, err)
	}
	b.client = client

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.started = true

	if b.metrics != nil {
		b.metrics.PollingBuckets.Inc()
	}

	b.wg.Add(1)
	go b.supervise(loopCtx)

	b.log.Info(ctx, "bucket started", "bucket", b.bucketID, "topics", b.topics, "group_id", b.groupID)
	return nil
}

// openClient opens a new consumer group client for this bucket and ensures
// its topics exist, tolerating a failed ensure by proceeding with whatever
// topology already exists. Used both by Start and by supervise when
// reopening a consumer after a crash.
func (b *ConsumerBucket) openClient(ctx context.Context) (*kgo.Client, error) {
	client, err := kgo.NewClient(b.kgoOpts()...)
	if err != nil {
		return nil, err
	}

	adminClient := admin.New(client)
	ensureFuncs := make([]pipeline.Func, 0, len(b.topics))
	for _, topic := range b.topics {
		topic := topic
		ensureFuncs = append(ensureFuncs, func(ctx context.Context) error {
			return adminClient.EnsureTopic(ctx, topic, b.partitions, replicationFactor)
		})
	}
	var ensureErr error
	pipeline.New(ctx, ensureFuncs...).Run(func(err error) { ensureErr = err })
	if ensureErr != nil {
		b.log.Warn(ctx, "ensure topic failed, proceeding with existing topology",
			"bucket", b.bucketID, "topics", b.topics, "err", ensureErr)
	}

	return client, nil
}

// Stop signals the poll loop to exit, waits for it to drain and issue a
// final synchronous commit, then leaves the group. Implements
// protocol.Lifecycle.
func (b *ConsumerBucket) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.log.Warn(ctx, "bucket stop timed out waiting for poll loop", "bucket", b.bucketID)
		return ctx.Err()
	}

	b.mu.Lock()
	client := b.client
	b.started = false
	b.mu.Unlock()

	client.LeaveGroup()
	client.Close()

	if b.metrics != nil {
		b.metrics.PollingBuckets.Dec()
	}

	b.log.Info(ctx, "bucket stopped", "bucket", b.bucketID)
	return nil
}

func (b *ConsumerBucket) kgoOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(b.brokers...),
		kgo.ConsumerGroup(b.groupID),
		kgo.ConsumeTopics(b.topics...),
		kgo.Balancers(kgo.CooperativeStickyBalancer(), kgo.RangeBalancer()),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(b.onPartitionsAssigned),
		kgo.OnPartitionsRevoked(b.onPartitionsRevokedOrLost),
		kgo.OnPartitionsLost(b.onPartitionsRevokedOrLost),
	}
	return opts
}

func (b *ConsumerBucket) onPartitionsAssigned(ctx context.Context, cl *kgo.Client, assigned map[string][]int32) {
	b.log.Info(ctx, "partitions assigned", "bucket", b.bucketID, "assigned", assigned)

	if b.resetTo == nil {
		return
	}

	ts := time.Now().Add(-*b.resetTo).UnixMilli()
	offsets := make(map[string]map[int32]kgo.Offset, len(assigned))
	for topic, partitions := range assigned {
		po := make(map[int32]kgo.Offset, len(partitions))
		for _, p := range partitions {
			po[p] = kgo.NewOffset().AfterMilli(ts)
		}
		offsets[topic] = po
	}
	cl.SetOffsets(offsets)
}

// onPartitionsRevokedOrLost commits whatever is safely commitable and then
// drops tracker state for the partitions this node no longer owns, so a
// later reassignment starts clean instead of carrying stale backlog.
func (b *ConsumerBucket) onPartitionsRevokedOrLost(ctx context.Context, cl *kgo.Client, affected map[string][]int32) {
	b.log.Info(ctx, "partitions revoked or lost", "bucket", b.bucketID, "affected", affected)

	b.commitStaged(ctx, cl, false)

	for _, partitions := range affected {
		for _, p := range partitions {
			b.tracker.Forget(p)
		}
	}
}

// supervise owns the poll loop's lifetime across crashes: it runs the loop
// until either ctx is cancelled (clean exit) or the loop itself fails, in
// which case the dead consumer is closed, a fresh one opened after a
// restartDelay backoff, and the loop resumed. This is the bucket's
// self-healing boundary -- a worker exception never propagates past here.
func (b *ConsumerBucket) supervise(ctx context.Context) {
	defer b.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		crashErr := b.runRecoverable(ctx)
		if crashErr == nil {
			return
		}

		b.throttled.Error(ctx, "worker/"+b.bucketID, "poll loop crashed, closing and reopening consumer",
			"bucket", b.bucketID, "err", crashErr)

		b.mu.Lock()
		dead := b.client
		b.mu.Unlock()
		dead.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.restartDelay):
		}

		client, err := b.openClient(ctx)
		for err != nil {
			b.log.Error(ctx, "failed to reopen consumer after crash, retrying", "bucket", b.bucketID, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.restartDelay):
			}
			client, err = b.openClient(ctx)
		}

		b.mu.Lock()
		b.client = client
		b.mu.Unlock()
	}
}

// runRecoverable runs the poll loop, converting any panic into a returned
// error instead of taking the process down -- the "unhandled worker
// exception" case supervise restarts from.
func (b *ConsumerBucket) runRecoverable(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	b.run(ctx)
	return nil
}

// run is the poll loop: poll a bounded batch, register each record's
// offset, hand it to processing with backpressure, and commit whatever the
// offset tracker has staged on a cadence. Returns (via panic, not a return
// value) on anything runRecoverable should treat as a crash; a clean
// ctx-cancellation return is the only normal exit.
func (b *ConsumerBucket) run(ctx context.Context) {
	commitTicker := time.NewTicker(b.commitEvery)
	defer commitTicker.Stop()

	for {
		b.mu.Lock()
		client := b.client
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			b.commitStaged(context.Background(), client, true)
			return
		case <-commitTicker.C:
			b.commitStaged(ctx, client, false)
		default:
		}

		pollCtx, cancel := context.WithTimeout(ctx, b.pollTimeout)
		fetches := client.PollRecords(pollCtx, int(b.fetchSize))
		cancel()

		if ctx.Err() != nil {
			b.commitStaged(context.Background(), client, true)
			return
		}

		for _, fetchErr := range fetches.Errors() {
			b.log.Error(ctx, "fetch error",
				"bucket", b.bucketID, "topic", fetchErr.Topic, "partition", fetchErr.Partition, "err", fetchErr.Err)
		}

		records := fetches.Records()
		unprocessed := len(records)
		if b.metrics != nil {
			b.metrics.UnprocessedFetchedRecord.WithLabelValues(b.bucketID).Set(float64(unprocessed))
		}

		for _, record := range records {
			b.tracker.RegisterPolled(record.Partition, record.Offset)
			if b.metrics != nil {
				b.metrics.TriggersReceived.WithLabelValues(b.bucketID).Inc()
			}
			b.handle(ctx, record)

			unprocessed--
			if b.metrics != nil {
				b.metrics.UnprocessedFetchedRecord.WithLabelValues(b.bucketID).Set(float64(unprocessed))
			}
		}

		if b.metrics != nil {
			b.metrics.Offsets.WithLabelValues(b.bucketID).Set(float64(b.tracker.OutstandingTotal()))
		}
	}
}

func (b *ConsumerBucket) handle(ctx context.Context, record *kgo.Record) {
	var msg triggering.TriggerMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		b.log.Error(ctx, "malformed trigger message, skipping",
			"bucket", b.bucketID, "topic", record.Topic, "partition", record.Partition, "offset", record.Offset, "err", err)
		b.tracker.ReleaseCompleted(record.Partition, record.Offset)
		return
	}

	tt := triggering.TaskTriggering{
		Task:      msg,
		BucketID:  b.bucketID,
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
	}

	for {
		since := b.processing.Version(b.bucketID)
		resp := b.processing.AddTaskForProcessing(ctx, tt, false)
		if resp == triggering.ProcessingOK {
			return
		}
		if ctx.Err() != nil {
			return
		}
		b.processing.AwaitSlot(ctx, b.bucketID, since, b.awaitTimeout)
	}
}

// OnTaskCompleted is the triggering.CompletionListener this bucket
// registers with its ProcessingService, releasing the offset for
// non-same-process triggers so it can be drained toward a commit.
func (b *ConsumerBucket) OnTaskCompleted(bucketID, topic string, partition int32, offset int64, sameProcessTrigger bool) {
	if sameProcessTrigger || bucketID != b.bucketID {
		return
	}
	if known := b.tracker.ReleaseCompleted(partition, offset); !known && b.metrics != nil {
		b.metrics.AlreadyCommittedOffsets.WithLabelValues(b.bucketID).Inc()
	}
	if b.metrics != nil {
		b.metrics.OffsetsCompleted.WithLabelValues(b.bucketID).Set(float64(b.tracker.CompletedPending(partition)))
	}
}

// commitStaged commits whatever the offset tracker has staged. wait selects
// CommitOffsetsSync, which returns only once the commit is done, over the
// asynchronous CommitOffsets.
func (b *ConsumerBucket) commitStaged(ctx context.Context, cl *kgo.Client, wait bool) {
	staged := b.tracker.DrainCommitable()
	if len(staged) == 0 {
		return
	}

	offsets := make(map[string]map[int32]kgo.EpochOffset, len(b.topics))
	for _, topic := range b.topics {
		po := make(map[int32]kgo.EpochOffset, len(staged))
		for partition, offset := range staged {
			po[partition] = kgo.EpochOffset{Epoch: -1, Offset: offset}
		}
		offsets[topic] = po
	}

	if b.metrics != nil {
		b.metrics.OffsetsToBeCommitted.WithLabelValues(b.bucketID).Set(float64(len(staged)))
	}

	commit := cl.CommitOffsets
	if wait {
		commit = cl.CommitOffsetsSync
	}
	commit(ctx, offsets, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			if b.metrics != nil {
				b.metrics.FailedCommits.WithLabelValues(b.bucketID).Inc()
			}
			if isRebalanceClassCommitError(err) {
				b.log.Debug(ctx, "commit offsets deferred", "bucket", b.bucketID, "err", err)
			} else {
				b.throttled.Error(ctx, "commit/"+b.bucketID, "commit offsets failed", "bucket", b.bucketID, "err", err)
			}
			return
		}
		if b.metrics != nil {
			b.metrics.Commits.WithLabelValues(b.bucketID).Inc()
			b.metrics.OffsetsToBeCommitted.WithLabelValues(b.bucketID).Set(0)
		}
	})
}

// isRebalanceClassCommitError reports whether err is a rebalance or
// retriable broker condition -- expected to clear on its own -- rather
// than a genuine commit failure worth surfacing at error level.
func isRebalanceClassCommitError(err error) bool {
	return errors.Is(err, kerr.RebalanceInProgress) ||
		errors.Is(err, kerr.ReassignmentInProgress) ||
		errors.Is(err, kerr.CommitFailed) ||
		kerr.IsRetriable(err)
}
