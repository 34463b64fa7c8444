package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// maxEncodedName keeps encoded filenames comfortably below the 255-byte
// limit most filesystems impose.
const maxEncodedName = 200

// EncodeKey maps an arbitrary identifier to a filesystem-safe name. The
// mapping is deterministic, so an entry persisted under a key is found by
// any later lookup with the same key, across processes. Keys encode to the
// base64 URL alphabet; keys whose encoded form would exceed maxEncodedName
// fall back to "~" plus the hex SHA-256 of the key. '~' is outside the
// base64 URL alphabet, so the two forms cannot collide.
func EncodeKey(key string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(enc) <= maxEncodedName {
		return enc
	}
	sum := sha256.Sum256([]byte(key))
	return "~" + hex.EncodeToString(sum[:])
}
