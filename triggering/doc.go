// Package triggering defines the shared domain types of the task-execution
// triggerer: the task/bucket/config model, trigger topic naming, the wire
// message format, and the interfaces the core depends on but does not
// implement (handler registry, processing service, task store).
//
// Concrete implementations of those collaborators live in sibling packages
// (processing, taskstore) to keep this package free of their dependencies.
package triggering
