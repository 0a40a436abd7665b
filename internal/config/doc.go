// Package config holds the simulator configuration: built-in defaults, JSON
// or YAML files, and PUBSUB_* environment overrides.
//
//	cfg, err := config.Load("pubsub.yaml") // defaults when path is empty
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
package config
