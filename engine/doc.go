// Package engine is the triggering core's composition root: it wires
// triggering.Config's buckets to a processing.Service, one
// triggering/bucket.ConsumerBucket and triggering/lifecycle registration
// each, a triggering/triggerer.Triggerer, and a taskstore.Scanner, and
// exposes the result as a single protocol.Lifecycle component for
// application.New's component list.
package engine
