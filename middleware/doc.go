// Package middleware guards HTTP routes with a session cookie.
//
// Each request runs the same short state machine: the cookie is decoded, the token is
// validated by a [crossauth.Manager], and the resolved identity is either attached to
// the request context or the request is rejected with
//
//	401 {"data":null,"error":"Unauthorized"}
//
// Credential store failures are reported as 500 instead, so an outage does not look
// like a logout. Nothing is retained between requests apart from the Manager's cache.
//
// # Adapters
//
//   - [RequireSession] and [Optional] for net/http handler chains.
//   - [Gin] and [GinOptional] for gin routers; they also set the gin keys
//     [UserKey] and [SessionKey].
//
// This package does not read the credential store and does not parse cookies itself;
// both are delegated to the Manager and the cookie codec.
package middleware
