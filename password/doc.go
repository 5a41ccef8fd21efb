// Package password implements Argon2id password hashing for the email/password login
// flow.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so a caller can
// re-hash after the next successful login.
//
// This package hashes and verifies only. It does not store passwords, import any other
// crossauth package, or log plaintext.
package password
