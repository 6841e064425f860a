// Package handlers implements the HTTP API: uploads, asset management,
// album listings, recordings, token-addressed public serving, backfill
// control, and the health/version endpoints.
package handlers
