// Package api hosts the HTTP control surface for the plate checker. Routes:
//   - GET|POST /start and /stop to control the enumeration run, guarded by an
//     optional shared token (?token= or X-Control-Token).
//   - GET /status for the latest progress snapshot.
//   - GET /results.json?limit=N and GET /results (HTML) for stored observations,
//     newest first.
//   - GET /healthz for liveness probes and GET /metrics for Prometheus scraping.
package api
