package pipeline

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nairabhi/habitvault/pkg/models"
)

// ChecksumMethod names the digest used for artifact integrity.
const ChecksumMethod = "sha256"

// ComputeChecksum returns the hex sha256 digest of the artifact bytes.
// Deterministic and order sensitive: any byte change changes the digest.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyArtifact re-hashes actual bytes against the recorded artifact
// reference. Used at artifact creation and again by backup's independent
// verification stage, which re-reads the stored object to catch
// storage-layer corruption.
func VerifyArtifact(expected models.Artifact, actual []byte) (checksumMatch, sizeMatch bool) {
	return ComputeChecksum(actual) == expected.Checksum, int64(len(actual)) == expected.Size
}
