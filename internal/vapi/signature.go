package vapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// SignatureHeader carries the vendor's HMAC of the raw webhook body.
const SignatureHeader = "x-vapi-signature"

var ErrInvalidSignature = errors.New("vapi: invalid webhook signature")

// VerifySignature checks the webhook signature against the shared secret.
//
// Rules:
//   - no secret configured: accept anything (degraded-security mode, allowed
//     for local development).
//   - secret configured: the header is required and must be a valid
//     hex-encoded HMAC-SHA256 of the body. Missing header counts as invalid.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	if signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
