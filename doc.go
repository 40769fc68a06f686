// Package main hosts the platechecker entrypoint.
//
// Architecture overview:
//   - CLI: cmd wires Cobra subcommands. "serve" runs the HTTP control surface and the worker, "results" prints
//     the stored log, and "codes" lists the keyspace.
//   - Worker: internal/worker owns a single-flight enumeration run over AA..ZZ. Each code is fetched through the
//     Colly-based fetcher, classified by substring rules, appended to the JSON-lines log and reflected in the
//     progress snapshot before the worker pauses (longer after a rate-limit page).
//   - HTTP API: internal/api exposes /start and /stop (optionally token-guarded), /status, /results(.json),
//     /healthz and /metrics.
//   - Progress fanout: the worker emits lifecycle and probe events to a buffered Hub, which batches them to zap,
//     Prometheus and, when a topic is configured, Pub/Sub.
//   - Configuration & plumbing: Viper populates config from a YAML file and PLATES_* environment variables, with
//     the legacy BASE_URL_L/BASE_URL_R/SLEEP_SECONDS/BLOCK_SLEEP/DATA_FILE/CONTROL_TOKEN/PORT names still honored.
//
// Operational notes:
//   - Only one run is active at a time. /start while running reports the active run; /stop cancels the in-flight
//     fetch or pause and leaves the last snapshot visible.
//   - Runs always restart at AA; there is no resumption across restarts.
//   - SIGINT/SIGTERM stop the active run, flush pending events and shut the server down.
//
// Quick checklist:
//   - Set PLATES_PROBE_URL_PREFIX (or BASE_URL_L) and optionally PLATES_PROBE_URL_SUFFIX.
//   - Run locally: go run . serve --config config.yaml, then curl localhost:8000/start.
package main
