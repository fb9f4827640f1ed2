// Package runtime opens the configured feature store (sqlite or pebble) for a
// project and owns its lifecycle.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(ctx)
//	f, _ := rt.Store().Claim(ctx, 42)
package runtime
