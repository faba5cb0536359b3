// Package api hosts the admin HTTP server. Notable routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/jobs, POST /v1/jobs/{name} and GET /v1/jobs/{name}/status to
//     trigger crawls ad hoc and poll the lock directory.
//   - GET /v1/tracks/export for the CSV export of every track.
//   - POST /v1/tracks/{id}/publish, /v1/albums/{id}/publish and
//     /v1/publish/pending to push records to the CMS.
package api
