package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// OwnerKey maps a customer id onto a stable, path-safe storage prefix. Ids
// differing only in surrounding whitespace or case share a prefix.
func OwnerKey(customerUUID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(customerUUID))))
	return hex.EncodeToString(sum[:16])
}
