package lifecycle

import "context"

// Component is the lifecycle contract for long-running parts of the service
// (tracing provider, config watcher, API server). The manager starts
// components in dependency order and stops them in reverse.
type Component interface {
	// Start initializes and starts the component. The context can signal
	// shutdown or carry a deadline. Must be safe to call once per manager
	// run; returns an error if initialization fails.
	Start(ctx context.Context) error

	// Stop gracefully stops the component, letting in-flight work finish
	// within the context deadline. Errors are reported but must not block
	// other components from stopping.
	Stop(ctx context.Context) error

	// Name returns the human-readable component name used in logs.
	// Must be non-empty.
	Name() string
}
