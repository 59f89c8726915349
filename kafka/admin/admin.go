// Package admin provides idempotent topic provisioning on top of franz-go's
// admin client, used by trigger buckets to ensure their topic exists with
// the configured partition count before a consumer subscribes.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Client wraps kadm.Client with the single operation the triggering engine
// needs: ensure a topic exists with at least the given partition count.
type Client struct {
	adm *kadm.Client
}

// New wraps an existing kgo.Client with an admin client. The kgo.Client is
// not owned by Client and is not closed by it.
func New(cl *kgo.Client) *Client {
	return &Client{adm: kadm.NewClient(cl)}
}

// EnsureTopic creates topic with partitions partitions if it does not
// already exist. If it exists with fewer partitions, it is grown to match;
// existing data and consumer offsets are untouched either way. It never
// shrinks a topic, since Kafka cannot reduce partition counts.
func (c *Client) EnsureTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	existing, err := c.adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	detail, ok := existing[topic]
	if !ok || detail.Err != nil {
		created, err := c.adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
		if err != nil {
			return fmt.Errorf("create topic %q: %w", topic, err)
		}
		if res, ok := created[topic]; ok && res.Err != nil && !isTopicExists(res.Err) {
			return fmt.Errorf("create topic %q: %w", topic, res.Err)
		}
		return nil
	}

	current := int32(len(detail.Partitions))
	if current >= partitions {
		return nil
	}

	resp, err := c.adm.CreatePartitions(ctx, int(partitions), topic)
	if err != nil {
		return fmt.Errorf("grow topic %q to %d partitions: %w", topic, partitions, err)
	}
	if res, ok := resp[topic]; ok && res.Err != nil {
		return fmt.Errorf("grow topic %q to %d partitions: %w", topic, partitions, res.Err)
	}
	return nil
}

// isTopicExists reports whether err represents Kafka's TOPIC_ALREADY_EXISTS,
// which is a benign race when two nodes provision the same bucket topic
// concurrently at startup.
func isTopicExists(err error) bool {
	return errors.Is(err, kerr.TopicAlreadyExists)
}
