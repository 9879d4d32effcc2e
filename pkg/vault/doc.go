/*
Package vault encrypts per-user provider credentials at rest and guards
the PIN that unlocks them in the UI.

Credentials are sealed with AES-256-GCM. The ciphertext wire format is
three base64 segments joined by colons (nonce:tag:ciphertext), which
keeps stored values greppable and lets Decrypt recognize legacy
plaintext rows: anything that is not exactly three segments is returned
as-is. The key comes from the configured 32-byte hex key, or is derived
from the JWT secret with PBKDF2-SHA256 when no key is set.

PINs are stored as bcrypt hashes and verified with five attempts per
(IP, user) pair; the counter persists in the store so a restart does not
reset a block. A successful verification clears the counter.

Mask renders a stored key for display: short values pass through
untouched, longer ones keep the first and last four characters with a
capped run of stars between them.
*/
package vault
