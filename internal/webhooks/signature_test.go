package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignProducesStableHexDigest(t *testing.T) {
	sig := Sign("topsecret", []byte(`{"event":"webhook.test"}`))
	assert.True(t, len(sig) == len(SignaturePrefix)+64)
	assert.Contains(t, sig, SignaturePrefix)
	// Same input, same signature.
	assert.Equal(t, sig, Sign("topsecret", []byte(`{"event":"webhook.test"}`)))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"import.completed","data":{}}`)
	sig := Sign("s3cret", body)

	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.False(t, VerifySignature("wrong", body, sig))
	assert.False(t, VerifySignature("s3cret", []byte("tampered"), sig))
	assert.False(t, VerifySignature("s3cret", body, "sha256=deadbeef"))
}
