// Package checksum computes content digests for exported artifacts and
// cheap change fingerprints for persisted records.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint derives a change marker from file size and modification time,
// avoiding a read of the (potentially large) file body.
func Fingerprint(info fs.FileInfo) string {
	return fmt.Sprintf("%x-%x", info.Size(), info.ModTime().UnixNano())
}
