// Package api exposes scheduling over HTTP.
//
// The caller's identity arrives in the X-Owner-ID header, set by the auth
// gateway in front of this service. Every route except /healthz requires it.
package api
