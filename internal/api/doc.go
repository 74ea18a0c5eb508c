// Package api hosts the HTTP server, middleware and handlers of the archive
// service. Routes:
//   - GET / and /index.html render the event log as a status page.
//   - GET /archive/* submits the remainder of the path for archiving; the
//     shared password travels in the X-Password header.
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
