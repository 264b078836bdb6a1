// Package influxdb records pubsubd telemetry in InfluxDB v2 using the
// official influxdb-client-go library.
//
// Two measurements are written:
//   - pubsub_lifecycle: one point per lifecycle event (tag kind, optional
//     tag topic, field failed)
//   - pubsub_messages: one point per inbound message (tag topic, field bytes)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WriteEvent(ev)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; errors are delivered to the SetOnError callback.
package influxdb
