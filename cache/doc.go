// Package cache provides the process-local, time-bounded session cache that sits in
// front of the credential store on the validation hot path.
//
// # Expiry model
//
// Entries carry their insertion time. An entry whose age has reached the configured TTL
// is treated as absent at lookup time; there is no background sweeper. Staleness after
// an out-of-band revocation is therefore bounded by one TTL window, and by zero when the
// revoking process calls [Cache.Evict] itself.
//
// # Concurrency
//
// Keys are spread over a power-of-two number of shards, each guarded by its own
// RWMutex. Operations on different tokens rarely contend; operations on the same token
// are linearizable. [Cache.Reserve] and [Cache.PutIfCurrent] let a caller that starts a
// slow lookup publish its result only if the token was not evicted in the meantime.
//
// # What this package must NOT do
//
//   - Perform I/O or block on anything other than its shard locks.
//   - Interpret cached values (session expiry is checked by the caller).
package cache
