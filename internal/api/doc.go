// Package api hosts the HTTP server, middleware, and REST handlers of the
// web-facing process. Notable routes:
//   - POST /search to start a crawl run, GET /status for the crawl lock.
//   - GET /jobs, POST /jobs/{id}/generate and GET /jobs/{id}/download.
//   - GET/POST/DELETE /settings and POST /settings/cv for the profile.
//   - GET /ws for the live event stream.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
