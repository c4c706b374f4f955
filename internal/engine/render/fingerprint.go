package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns the sha256 hex digest of v's JSON form. Equal inputs
// render equal artifacts, so the digest doubles as an ETag.
func Fingerprint(v interface{}) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
