// Package triggerer implements Trigger, the triggering engine's one public
// entry point: resolve a handler and bucket for a task, attempt the
// same-process fast path when the bucket allows it, and otherwise publish a
// trigger message to the bucket's topic.
package triggerer
