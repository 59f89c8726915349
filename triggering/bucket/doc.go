// Package bucket implements ConsumerBucket: the per-bucket Kafka consumer
// group and poll loop that turns "task available" records into processing
// handoffs, tracks out-of-order completion via offsettracker, and commits
// offsets on a cadence with a synchronous commit at shutdown.
package bucket
