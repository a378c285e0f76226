// Package accesscode generates, normalizes, hashes and verifies intake access codes.
//
// An access code is the second, human-relayed secret of an intake link. Codes are short and
// typed by hand, so:
// - Generation draws from an alphabet without look-alike characters (0/O, 1/I).
// - Input is normalized (case, spaces, dashes) before verification.
// - Only an Argon2id hash is stored; verification is constant-time and refuses stored hashes
//   whose parameters exceed configured bounds.
package accesscode
