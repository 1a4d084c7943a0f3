package job

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// DeriveID computes the deterministic id of a job spawned by another
// job. The same (parent, attempt, index) triple always yields the same
// id, so a retried attempt re-dispatches children under identical ids
// and downstream record creation collapses the duplicates.
func DeriveID(parentID string, attempt, index int) string {
	h := sha256.New()
	h.Write([]byte(parentID))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(attempt)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))
}
