// Package rate throttles failed sign-in attempts with fixed-window counters.
//
// Each failed attempt increments a counter per email and, when enabled, per client IP.
// The first hit in a window sets the window TTL. A successful sign-in clears both
// counters. [Redis] shares counters across instances; [Memory] is per-process.
//
// Key prefixes in Redis:
//   - crl:  sign-in failures per email
//   - crli: sign-in failures per IP
package rate
