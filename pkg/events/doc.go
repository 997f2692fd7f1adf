/*
Package events provides an in-memory event broker for flatshard's
pub/sub notifications.

It implements a lightweight event bus broadcasting resharding and
witness lifecycle events (split started/committed/succeeded/failed,
witness assembled/discarded/acked, deploys assembled) to any number of
subscribers, with buffered per-subscriber delivery so a slow consumer
never blocks the publisher.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type:    events.EventSplitSucceeded,
		Message: "shard 1 split into shards 2 and 3",
	})

	for ev := range sub {
		log.Info(ev.Message)
	}

A full subscriber buffer never blocks the broker: its run loop drops
the event for that subscriber rather than stalling, so one slow
consumer cannot back-pressure the split engine or witness actor.
Publish itself waits only while the broker's own queue (100 events)
is full.
*/
package events
