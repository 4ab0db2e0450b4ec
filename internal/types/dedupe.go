package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DedupeKey derives the deterministic key that collapses duplicate
// notification attempts for one condition-crossing episode. The episode
// sequence is part of the hash so a re-escalation into the same bucket after
// a return-to-normal produces a fresh key.
func DedupeKey(userID string, category Domain, domainKey string, bucket Severity, episode int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", userID, category, domainKey, bucket, episode)))
	return "ntf_" + hex.EncodeToString(h[:16])
}
