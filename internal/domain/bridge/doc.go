/*
Package bridge turns a fire-and-forget code injection primitive into
request/response calls.

Each call gets a fresh id, registers a waiter, frames the caller's code so it
reports back through the host's callback, injects it once and waits for the
first of callback, deadline or cancellation. Errors carry a stable Category
so transports can map them without inspecting text:

	outcome, err := b.Call(ctx, "main", "document.title", 0)
	switch {
	case errors.Is(err, bridge.ErrTimeout):
	case errors.Is(err, bridge.ErrInjectionFailed):
	case err == nil && !outcome.Success:
		// the code itself threw
	}

The bridge is also the host's Sink: callbacks resolve waiters and console
lines go to the relay.
*/
package bridge
