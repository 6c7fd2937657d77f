// Package audit provides tamper-evident hashing for the append-only audit
// trail. Every entry's hash covers the previous entry's hash, its own
// timestamp and its payload, so rewriting or removing any historical entry
// breaks the chain for everything after it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Genesis is the previous-hash value of the very first entry in a chain.
var Genesis = strings.Repeat("0", 64)

// Payload builds the canonical hashed representation of an audit entry.
func Payload(table, recordID, action, oldValue, newValue string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", table, recordID, action, oldValue, newValue)
}

// Hash computes the chain hash of an entry from its predecessor's hash, its
// timestamp and its payload.
func Hash(prevHash string, at time.Time, payload string) string {
	input := fmt.Sprintf("%s|%s|%s", prevHash, at.UTC().Format(time.RFC3339), payload)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Link is one entry of a chain under verification.
type Link struct {
	PrevHash string
	Hash     string
	Time     time.Time
	Payload  string
}

// Verify reports whether the links form an unbroken, correctly hashed
// chain. An empty chain is valid.
func Verify(links []Link) bool {
	for i, link := range links {
		if i > 0 && link.PrevHash != links[i-1].Hash {
			return false
		}
		if Hash(link.PrevHash, link.Time, link.Payload) != link.Hash {
			return false
		}
	}
	return true
}
