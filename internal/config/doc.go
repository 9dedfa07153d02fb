// ABOUTME: Package config documentation
// ABOUTME: File locations, formats, expansion rules, and defaults

// Package config handles configuration loading for vito-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VITO_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/vito/gateway.yaml
//  3. ~/.config/vito/gateway.yaml
//
// Files ending in .toml are read as TOML; everything else is YAML.
//
// # Environment Variable Expansion
//
// A .env file in the working directory or beside the config file is loaded
// before parsing. Values may then reference environment variables:
//
//	providers:
//	  gemini:
//	    api_key: "${GEMINI_API_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversation:
//	  ttl: "1h"
//	  sweep_interval: "5m"
//
// # Required Fields
//
// access.creator, both provider API keys, the OpenRouter model, and Matrix
// credentials (an access token with user_id, or username and password) must
// be set. Everything else has a default; see the Default constants.
package config
