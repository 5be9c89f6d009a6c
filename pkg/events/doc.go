/*
Package events provides an in-memory event broker for broadcasting cluster
state-change notifications to interested subscribers.

The broker is topic-agnostic: every published Event goes to every
subscriber, each over its own buffered channel, so a slow or absent
subscriber cannot block publication or other subscribers. Through the
manager, DSLC publishes EventRolloverIssued once a rollover is
acknowledged and AAS publishes EventDeploymentScaled once a scale request
is acknowledged; neither loop publishes the other event types, and no
package in this module subscribes.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			log.Info(ev.Type + ": " + ev.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventRolloverIssued,
		Message: "rolled over logs-app-default",
	})

Publish is non-blocking up to the broker's internal buffer; once full it
blocks until the distribution loop drains it or the broker is stopped.
Subscriber channels are buffered separately and drop events rather than
block the broadcaster when a subscriber falls behind.
*/
package events
