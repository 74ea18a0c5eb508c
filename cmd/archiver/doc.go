// Package main hosts the archive-debouncer entrypoint.
//
// The service accepts GET /archive/<target> requests guarded by a shared
// password (X-Password), waits a fixed ten minute grace period and then asks
// the Wayback Machine to save only the most recently submitted target. Older
// submissions that are overtaken during their grace period are reported as
// cancelled on the status page at GET /.
//
// Quick checklist:
//   - Set ARCHIVE_PASSWORD (or ARCHIVER_AUTH_PASSWORD); without it every
//     archive request is refused with 500.
//   - Other settings use the ARCHIVER_ prefix, e.g. ARCHIVER_SERVER_PORT,
//     ARCHIVER_ARCHIVE_TIMEOUT_SECONDS, ARCHIVER_PUBSUB_PROJECT_ID.
//   - Run locally: go run ./cmd/archiver --config config.yaml
//   - Inspect the effective configuration: archiver config --config config.yaml
package main
