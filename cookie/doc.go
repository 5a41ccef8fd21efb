// Package cookie carries session tokens in a cross-site cookie.
//
// Cookies are always SameSite=None, HttpOnly, Secure, and Partitioned so a frontend on
// one origin can hold a session issued by an API on another. When a secret is
// configured the cookie value is a compact HS256 JWS wrapping the token, so forged
// values are rejected before any store lookup.
package cookie
