// Package kafka holds the wire types shared by every Kafka-facing package
// in this module: Message and Header, used by the producer and by the
// triggering engine's per-bucket consumer groups alike.
//
// Producer example:
//
//	producer, err := producer.New(producer.WithConfig(cfg.Producer))
//	msg := kafka.Message{Key: []byte("key"), Value: []byte("value")}
//	producer.Produce(ctx, msg, nil)
//
// Consumption happens per processing bucket via triggering/bucket, which
// owns its own consumer group lifecycle rather than a single shared
// consumer type.
package kafka
