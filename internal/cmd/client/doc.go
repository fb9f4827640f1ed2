// Package client provides the `forgeq` command-line client.
//
// Every command opens the configured store directly; there is no server.
// Settings come from --config (JSON or YAML), then FORGEQ_* environment
// variables, then flags.
//
// Usage
//
//	forgeq import features.yaml
//	forgeq ready --limit 5 --filter 'category == "auth"'
//	forgeq claim 12            # exactly one concurrent caller wins
//	forgeq pass 12
//	forgeq dep add 14 12       # 14 now waits on 12
//	forgeq stats -o json
//
//	# Tool procedures with JSON arguments and results
//	forgeq tools
//	forgeq call feature_get_blocked '{"limit": 10}'
//
// Notes
//
//   - The sqlite backend (default) is safe for many worker processes on one
//     machine. The pebble backend is owned by a single process at a time.
//   - call prints an {"error", "kind"} document and exits non-zero on failure.
package client
