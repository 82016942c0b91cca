// Package tokenhash hashes and verifies credential tokens with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters than the
// hasher's own, so stores can upgrade them after a successful verification.
package tokenhash
