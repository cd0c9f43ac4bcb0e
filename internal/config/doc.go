// Package config loads flolog's configuration: built-in defaults, an
// optional JSON or YAML file, then FLOLOG_* environment overrides.
//
//	cfg, err := config.Load("/etc/flolog.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
package config
