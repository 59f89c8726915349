package protocol

import "context"

// Lifecycle is implemented by components that need an explicit start/stop
// sequence, e.g. database pools, broker clients, background workers.
// Start must block until the component is ready to serve; Stop must be
// idempotent and safe to call on a component that never started.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
