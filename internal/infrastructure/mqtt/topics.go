package mqtt

import "strings"

// Namespace scopes topics on a shared broker.
//
// The session namespace is used as the root topic level, so "prices/eur" in
// namespace "trading" is "trading/prices/eur" on the wire. Inbound topics
// have the root stripped again before they reach the client.
//
//	ns := mqtt.Namespace("trading")
//	ns.Qualify("prices/eur")         // "trading/prices/eur"
//	ns.Strip("trading/prices/eur")   // "prices/eur"
type Namespace string

// Qualify returns the broker-side topic for a client topic.
// Topics starting with "$" (broker system topics) are left unscoped.
func (n Namespace) Qualify(topic string) string {
	if n == "" || strings.HasPrefix(topic, "$") {
		return topic
	}
	return string(n) + "/" + topic
}

// Strip returns the client topic for a broker-side topic. Topics outside
// the namespace are returned unchanged.
func (n Namespace) Strip(topic string) string {
	if n == "" {
		return topic
	}
	if rest, ok := strings.CutPrefix(topic, string(n)+"/"); ok {
		return rest
	}
	return topic
}
