// Package taskstore adapts pgrepo's pool wrapper into the task persistence
// surface the triggering engine needs: the narrow triggering.TaskStore
// interface (SetStatus) plus the broader queries the resurrection scanner
// runs against the same table.
package taskstore
