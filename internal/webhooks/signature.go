package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignaturePrefix prefixes the hex digest in the X-Webhook-Signature header.
const SignaturePrefix = "sha256="

// Sign computes the signature header value for a payload body:
// HMAC-SHA256 over the raw bytes, hex encoded.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header against the shared
// secret in constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}
