// Package password hashes account passwords with Argon2id.
//
// Hashes are stored in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful login.
//
// This package never stores passwords and never logs them.
package password
