// Package crossauth provides session authentication for applications whose frontend
// and backend are served from different origins.
//
// A [Manager] issues opaque session tokens on login, validates them on every protected
// request, and revokes them on logout. Validation is cache-first: a process-local
// [cache.Cache] holds resolved (session, user) pairs for a bounded TTL so that the
// [CredentialStore] is consulted at most once per token per TTL window.
//
// Managers are safe for concurrent use once returned by [Builder.Build].
//
// # Architecture boundaries
//
// crossauth is the public surface. It owns [Manager], [Builder], [Config], the error
// taxonomy, and the value types handed to handlers ([Identity], [User], [Role]).
// Storage backends live in credstore, cookie encoding in cookie, and HTTP enforcement
// in middleware. None of them are imported here.
//
// # What this package must NOT do
//
//   - Extend a session's expiry when it is served from the cache.
//   - Retry failed store lookups.
//   - Conflate "no session" ([ErrUnauthenticated]) with "store failed" ([ErrStorage]).
//
// # Revocation
//
// [Manager.Revoke] deletes the session from the store and evicts it from the local
// cache before returning. When an [Invalidator] is configured the token is also
// published so peer processes evict it; without one, peers converge within one cache
// TTL.
package crossauth
