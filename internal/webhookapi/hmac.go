// Package webhookapi implements the webhook intake HTTP server of §4.5/§6:
// authenticated receivers for cloud/local change notifications, a liveness
// probe, and a queue-depth status endpoint. It never performs sync work
// inline — accept-and-defer is the sole discipline.
package webhookapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifySignature reports whether sig (lowercase hex) is the HMAC-SHA256 of
// body keyed by secret, using a constant-time comparison (§4.5). It always
// checks; handleWebhook skips calling it when its source's secret is empty.
func verifySignature(secret string, body, sig []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(string(sig))
	if err != nil {
		return false
	}

	return hmac.Equal(expected, decoded)
}
