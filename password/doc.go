// Package password implements salted Argon2id hashing with an optional
// deployment pepper.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful sign-in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// complexity, confirmation) is enforced by the Engine before anything reaches
// here.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goSignIn package.
//   - Log plaintext passwords or the pepper.
package password
