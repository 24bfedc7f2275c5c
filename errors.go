package wheelnet

import "github.com/pkg/errors"

// Sentinel errors returned by this package. Wrapped causes from the
// poller, acceptor, and connection layers are attached with
// github.com/pkg/errors so logs carry the full causal chain.
var (
	// errStop is returned by a task posted by Reactor.Stop to unwind
	// Polling cleanly; Reactor.Run treats it as a normal return, not a
	// failure.
	errStop = errors.New("wheelnet: reactor stopped")

	// ErrDetached is logged by the Reactor when EnableWrite/DisableWrite
	// reaches a Handle that is not attached; it is not returned to the
	// caller.
	ErrDetached = errors.New("wheelnet: handle is detached")

	// ErrAlreadyAttached is logged by the Reactor when Attach reaches a
	// Handle that is already Attached; it is not returned to the caller.
	ErrAlreadyAttached = errors.New("wheelnet: handle already attached")

	// ErrConnectionClosed is returned by Send on a Connection whose
	// on_close has already fired. Per spec, sends after close are
	// dropped silently by the caller of Send, not surfaced as an error
	// to the application event loop; Send itself still reports it so
	// callers can avoid queuing wasted work.
	ErrConnectionClosed = errors.New("wheelnet: connection closed")

	// ErrPoolStopped is returned by LoopPool.Pick after Stop.
	ErrPoolStopped = errors.New("wheelnet: loop pool stopped")
)
