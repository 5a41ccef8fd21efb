// Package credstore provides [crossauth.CredentialStore] implementations.
//
//   - [Memory] keeps everything in process. Use it for development and tests.
//   - [Redis] keeps users as JSON and sessions in the binary [session.Store] layout.
//   - [Postgres] keeps users and sessions in two tables via database/sql and lib/pq.
//
// All stores report unknown records with [crossauth.ErrUserNotFound] or
// [session.ErrNotFound] and wrap every other failure in [crossauth.ErrStorage].
package credstore
