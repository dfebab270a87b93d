/*
Package relay fans push traffic out to live subscribers.

Console lines, application events and the bridge's own logs are published
once and copied into every matching subscriber's bounded queue. Publishing
never waits on a subscriber: a full queue loses its oldest message, and a
subscriber whose queue stays full for too many deliveries in a row is
disconnected. Console and log streams tolerate loss; a stalled reader
holding up the application does not.

Named sub-streams are filters chosen at subscribe time:

	sub, err := r.Subscribe(ctx, relay.StreamEvents, relay.ByName("saved"))
	for msg := range sub.C() {
		// ...
	}
*/
package relay
