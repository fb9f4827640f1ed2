// Package config provides loading and environment overlay for forgeq
// configuration. It exposes a Default() baseline, JSON or YAML files, and
// FORGEQ_* environment overrides.
//
// Example:
//
//	cfg, err := config.Load("forgeq.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
package config
