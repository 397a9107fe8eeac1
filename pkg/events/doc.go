/*
Package events is an in-memory broker for session lifecycle events.

The session manager publishes when sessions are created, expire or close,
when roots are created, on security key mismatches, when a client falls out
of sync and when push channels come and go. Publish never blocks: it is
called while an application lock is held, so events are dropped when the
queue is full.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		fmt.Println(ev.Type, ev.SessionID)
	}

Subscribers can narrow what they receive with filters; every filter must
match:

	sub := broker.Subscribe(events.ForSession(id), events.OfType(events.EventPushConnected))

Slow subscribers miss events rather than stall the broker. Dropped events
are counted in canopy_events_dropped_total.
*/
package events
