package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/api"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
)

// runToken implements "pubsubd token": it prints a bearer token for the
// HTTP API signed with the configured api.auth.jwt_secret.
//
//	pubsubd token -subject openfin-host -ttl 8h
func runToken(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "token subject, e.g. the calling application (required)")
	ttl := fs.Duration("ttl", 0, "token lifetime (default api.auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-subject is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is not set (set PUBSUB_API_JWT_SECRET)")
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.TokenTTL()
	}
	token, err := api.IssueToken(cfg.API.Auth.JWTSecret, cfg.API.Auth.Issuer, *subject, lifetime)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
