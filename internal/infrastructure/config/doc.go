// Package config loads pubsubd's YAML configuration.
//
// Values are resolved in three layers: built-in defaults, then the file,
// then PUBSUB_* environment variables. Validate reports every problem in a
// single error so a bad file can be fixed in one pass.
//
// Broker credentials are best supplied through PUBSUB_AUTH_USERNAME and
// PUBSUB_AUTH_PASSWORD. If they are written to the file, keep it at 0600.
// The HTTP API has no authentication and binds to 127.0.0.1 unless
// api.host says otherwise.
//
//	cfg, err := config.Load("configs/pubsubd.yaml")
//	if err != nil {
//	    return err
//	}
//	log.Info("broker", "address", cfg.Broker.Address)
package config
