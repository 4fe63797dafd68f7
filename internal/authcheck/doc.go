// Package authcheck enforces the bridge's single admin auth boundary.
//
// Unlike a multi-user system with sessions and per-resource permissions,
// busprobridge has exactly one boundary: the HTTP/WebSocket surface exposed
// by internal/api. Three modes cover it (config.AuthMode):
//
//   - none:  no authentication, for deployments behind a trusted network
//   - token: a single shared bearer token compared in constant time
//   - basic: a single username/password pair, also constant-time
//
// A deployment fronted by the home-automation platform's own reverse proxy
// sets Ingress to bypass this boundary entirely — the platform has already
// authenticated the caller by the time the request reaches this process.
package authcheck
