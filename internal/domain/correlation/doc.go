/*
Package correlation tracks calls that are in flight into the sandbox.

The sandbox can only be reached through a one-way injection primitive, and it
answers out of band through a callback carrying the call id it was given. The
Registry is the table joining the two: Register creates a one-shot slot for a
call id, Resolve fills it when the callback arrives, and Evict drops it when
the caller gives up.

Resolve and Evict race whenever a callback arrives close to a deadline. Both
take the entry out of the table under one lock, so exactly one of them wins
and the other reports false. A false Resolve is expected and harmless: it is
a late callback for a call that already timed out.
*/
package correlation
