// Package config loads and validates slate.json, the project
// configuration file consumed by the slate CLI.
package config
