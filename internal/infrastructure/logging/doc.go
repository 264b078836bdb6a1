// Package logging sets up the structured logger shared by every pubsubd
// component.
//
// Entries are written through log/slog as JSON (the default) or text, and
// always carry service=pubsubd and the build version. Components add their
// own tag with Component:
//
//	logger := logging.New(cfg.Logging, version)
//	client := pubsub.New(transport, pubsub.Options{Logger: logger.Component("pubsub")})
//
// The logging section of the configuration file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Broker passwords and InfluxDB tokens must never be logged. pubsub.Config
// implements slog.LogValuer and leaves the password out, so log the Config
// value rather than its fields.
package logging
