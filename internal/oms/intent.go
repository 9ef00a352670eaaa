package oms

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/skybotdev/skybot/internal/domain"
)

// IntentKey derives the deterministic key for an intent from its canonical
// tuple. Two process runs that reach the same state produce the same keys,
// which is what makes exchange-side de-duplication by client order ID work.
func IntentKey(cityCode, ticker string, side domain.Side, strategyName, eventDate string) string {
	canonical := strings.Join([]string{cityCode, ticker, string(side), strategyName, eventDate}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ClientOrderID builds the exchange-visible order identifier for one
// attempt at an intent.
func ClientOrderID(intentKey string, version int) string {
	return fmt.Sprintf("%s#%d", intentKey, version)
}

// SplitClientOrderID recovers the intent key from a client order ID.
func SplitClientOrderID(clientOrderID string) (intentKey string, ok bool) {
	idx := strings.LastIndexByte(clientOrderID, '#')
	if idx <= 0 {
		return "", false
	}
	return clientOrderID[:idx], true
}
