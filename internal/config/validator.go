// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `loader.go` calls `validateStruct` right after defaults are applied.
// Any validation error aborts startup, so the binary never runs with a
// malformed listen address, negative durations, or a cluster entry with
// no id.
//
// Cross-field rules that tags cannot express live in `crossChecks`.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	return crossChecks(c)
}

// crossChecks rejects duplicate cluster ids and docker host names.
func crossChecks(c *Config) error {
	seen := map[string]struct{}{}
	for _, cl := range c.Clusters {
		if _, dup := seen[cl.ID]; dup {
			return fmt.Errorf("config: duplicate cluster id %q", cl.ID)
		}
		seen[cl.ID] = struct{}{}
	}
	seen = map[string]struct{}{}
	for _, h := range c.DockerHosts {
		if _, dup := seen[h.Name]; dup {
			return fmt.Errorf("config: duplicate docker host %q", h.Name)
		}
		seen[h.Name] = struct{}{}
	}
	return nil
}
