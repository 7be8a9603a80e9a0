// Package ccrpc provides embedded assets for the ccrpc binary.
//
// The root package exists solely to embed config.default.toml via
// [DefaultConfigTOML], which the daemon copies into the data directory on
// first run.
package ccrpc

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
