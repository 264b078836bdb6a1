package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// Measurement names.
const (
	measurementLifecycle = "pubsub_lifecycle"
	measurementMessages  = "pubsub_messages"
)

// WriteEvent records one client event.
//
// Messages become a pubsub_messages point (topic tag, payload size field);
// everything else becomes a pubsub_lifecycle point tagged with the event
// kind, carrying failed=true when the event has an error.
//
// Topic is used as a tag; keep topic sets small or disable telemetry for
// high-cardinality wildcards.
func (c *Client) WriteEvent(ev pubsub.Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(ev))
}

// eventPoint maps an event to its InfluxDB point.
func eventPoint(ev pubsub.Event) *write.Point {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	if ev.Kind == pubsub.EventMessage {
		return write.NewPoint(
			measurementMessages,
			map[string]string{"topic": ev.Topic},
			map[string]interface{}{"bytes": len(ev.Payload)},
			at,
		)
	}

	tags := map[string]string{"kind": ev.Kind.String()}
	if ev.Topic != "" {
		tags["topic"] = ev.Topic
	}
	return write.NewPoint(
		measurementLifecycle,
		tags,
		map[string]interface{}{"failed": ev.Err != nil},
		at,
	)
}
