package triggering

import (
	"fmt"
	"strings"
	"time"

	stderrors "errors"
)

// DefaultBucketID is substituted whenever a caller passes an empty bucket
// id to an operation that accepts one.
const DefaultBucketID = "default"

// GenericMediumDelay bounds the poll loop's broker poll timeout, the
// backpressure condition-variable wait, and the consumer-restart backoff.
// A single shared constant keeps those three waits from drifting apart,
// which matters for staying well below max.poll.interval.ms while a
// bucket's processing slots are full.
const GenericMediumDelay = 5 * time.Second

var (
	ErrNoGroupID       = stderrors.New("triggering: group id is required")
	ErrBucketNotFound  = stderrors.New("triggering: bucket not configured")
	ErrNoHandler       = stderrors.New("triggering: no handler registered for task type")
	ErrDuplicateBucket = stderrors.New("triggering: duplicate bucket id")
)

// BucketConfig is the per-bucket configuration surface.
type BucketConfig struct {
	// ID is the bucket's configuration key. Empty means DefaultBucketID.
	ID string `yaml:"id"`

	// PartitionsCount is the trigger topic's configured partition count.
	PartitionsCount int32 `yaml:"triggering_topic_partitions_count" default:"6"`

	// FetchSize caps kgo's max.poll.records-equivalent per bucket poll.
	FetchSize int32 `yaml:"triggers_fetch_size" default:"200"`

	// TriggerInSameProcess enables the in-process fast path.
	TriggerInSameProcess bool `yaml:"trigger_in_same_process"`

	// TriggerSameTaskInAllNodes makes every node its own consumer group
	// for this bucket, by appending the node's client id to the group id.
	TriggerSameTaskInAllNodes bool `yaml:"trigger_same_task_in_all_nodes"`

	// AutoStartProcessing starts this bucket's poll loop on application start.
	AutoStartProcessing bool `yaml:"auto_start_processing" default:"true"`

	// AutoResetOffsetToDuration, if set, installs a rebalance listener that
	// seeks newly assigned partitions to now-duration instead of relying on
	// the broker's auto.offset.reset.
	AutoResetOffsetToDuration *time.Duration `yaml:"auto_reset_offset_to_duration"`
}

// Config is the top-level triggering engine configuration.
type Config struct {
	GroupID                 string                  `yaml:"group_id"`
	ClientID                string                  `yaml:"client_id"`
	KafkaTopicsNamespace    string                  `yaml:"kafka_topics_namespace"`
	KafkaDataCenterPrefixes []string                `yaml:"kafka_data_center_prefixes"`
	AutoResetOffsetTo       string                  `yaml:"auto_reset_offset_to" default:"latest"`
	Buckets                 map[string]BucketConfig `yaml:"buckets"`
}

// Validate checks required fields and normalizes bucket ids/keys.
func (c *Config) Validate() error {
	if c.GroupID == "" {
		return ErrNoGroupID
	}

	if c.Buckets == nil {
		c.Buckets = map[string]BucketConfig{}
	}
	normalized := make(map[string]BucketConfig, len(c.Buckets))
	for key, bucket := range c.Buckets {
		id := bucket.ID
		if id == "" {
			id = key
		}
		if id == "" {
			id = DefaultBucketID
		}
		bucket.ID = id
		if _, exists := normalized[id]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateBucket, id)
		}
		if bucket.PartitionsCount <= 0 {
			bucket.PartitionsCount = 1
		}
		if bucket.FetchSize <= 0 {
			bucket.FetchSize = 200
		}
		normalized[id] = bucket
	}
	c.Buckets = normalized

	return nil
}

// Bucket returns the configuration for bucketID, substituting
// DefaultBucketID for an empty id, and reports whether it is configured.
func (c *Config) Bucket(bucketID string) (BucketConfig, bool) {
	if bucketID == "" {
		bucketID = DefaultBucketID
	}
	b, ok := c.Buckets[bucketID]
	return b, ok
}

// GroupIDFor returns the consumer group id a bucket should use: the shared
// group id, or a node-private variant when the bucket requires every node
// to receive every message.
func (c *Config) GroupIDFor(bucket BucketConfig) string {
	if bucket.TriggerSameTaskInAllNodes {
		return fmt.Sprintf("%s.%s", c.GroupID, c.ClientID)
	}
	return c.GroupID
}

// Topic returns the primary trigger topic name for a bucket id:
// "[<namespace>.]twTasks.<groupId>.executeTask[.<bucketId>]".
func (c *Config) Topic(bucketID string) string {
	if bucketID == "" {
		bucketID = DefaultBucketID
	}

	name := fmt.Sprintf("twTasks.%s.executeTask", c.GroupID)
	if bucketID != DefaultBucketID {
		name = fmt.Sprintf("%s.%s", name, bucketID)
	}
	if c.KafkaTopicsNamespace != "" {
		name = fmt.Sprintf("%s.%s", c.KafkaTopicsNamespace, name)
	}
	return name
}

// TopicAliases returns one data-center-prefixed alias per configured
// prefix, to additionally subscribe to on the consume side.
func (c *Config) TopicAliases(bucketID string) []string {
	base := c.Topic(bucketID)
	if len(c.KafkaDataCenterPrefixes) == 0 {
		return nil
	}
	aliases := make([]string, 0, len(c.KafkaDataCenterPrefixes))
	for _, prefix := range c.KafkaDataCenterPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		aliases = append(aliases, fmt.Sprintf("%s.%s", prefix, base))
	}
	return aliases
}
