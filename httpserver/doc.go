// Package httpserver exposes the contents API over HTTP.
//
// The server publishes the resource registry under /api/resources and the
// routed contents operations under /api/contents and /api/checkpoints. All
// content paths are drive-prefixed strings resolved by the meta manager;
// the HTTP layer only translates between requests and manager calls and
// maps manager errors onto status codes.
//
// Health and diagnostic endpoints (/livez, /readyz, /drain, /undrain, and
// optionally /debug for pprof) are served alongside the API.
package httpserver
