/*
Package event provides the lifecycle event bus of the gateway.

Sessions report pairing codes, readiness, authentication, failures and
removal; the supervisor turns those into Event values and publishes them
on a Bus. Observers (the websocket push channel, SSE streams) subscribe at
any time and always start with an Init event holding the current registry
snapshot, followed by live events in publication order.

# Delivery

Each observer has its own bounded queue. Publish never waits for an
observer: when a queue is full the oldest queued event is discarded and
Observer.Dropped is incremented. Observers that need a consistent view after
lagging should resubscribe to get a fresh snapshot.

	obs, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer obs.Close()

	for e := range obs.C() {
		switch e.Type {
		case event.Init:
			render(e.Data.(event.SnapshotData).Sessions)
		case event.PairingCodeIssued:
			showCode(e.Data.(event.PairingCodeData))
		}
	}

# Watermill mirror

Every published event is also marshalled to JSON and published on a
watermill gochannel under Topic. RunAuditLog consumes it to produce the
lifecycle audit log; other consumers can subscribe through PubSub.
*/
package event
