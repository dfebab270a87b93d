/*
Package resilience guards calls to an optional dependency with a circuit
breaker.

The bridge uses it around NATS publishes: when the server goes away the
mirror sheds messages at once instead of failing each publish in turn.

# States

	Closed --[Threshold consecutive failures]--> Open
	Open   --[Cooldown elapsed, next call]-----> HalfOpen (one probe)
	HalfOpen --[probe succeeds]--> Closed
	HalfOpen --[probe fails]-----> Open

Calls made while open return ErrOpen; calls made while the probe runs
return ErrProbing. Neither counts as a failure.

Example Usage:

	b := resilience.New("nats-mirror", resilience.Config{Threshold: 3, Cooldown: 5 * time.Second})
	err := b.Do(func() error {
		return nc.Publish(subject, data)
	})
*/
package resilience
