// Package api provides the WAF control-plane REST API.
//
// Authentication uses per-tenant API keys passed in the X-API-Key header;
// the log ingest endpoint is engine-facing and unauthenticated.
package api
