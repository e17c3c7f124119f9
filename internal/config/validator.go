// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals and defaults the merged Koanf tree.  Any tag mismatch or
// validation error aborts startup, ensuring the binary never runs with
// partial, malformed, or missing configuration.
//
// The same singleton is exported as `Validate` for request DTOs that are
// decoded into structs (the login access call), so both share one cached
// struct-tag parse.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import "github.com/go-playground/validator/v10"

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}

// Validate checks any tagged struct with the shared validator.
func Validate(s any) error {
	return v.Struct(s)
}
