// Package middleware holds the HTTP middleware of the HealthScan auth server.
//
// # Guards
//
//   - [Guard] requires a bearer token, validates it through a
//     [PrincipalSource] and injects the principal into the request context.
//
// # Request plumbing
//
//   - [RequestID] assigns or propagates X-Request-ID.
//   - [AccessLog] writes one zap line per request.
//   - [Recover] converts handler panics into a 500.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the PrincipalSource).
//   - Access Redis.
//   - Log request bodies, passwords, codes or tokens.
package middleware
