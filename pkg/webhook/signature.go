package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 header (optionally prefixed with "sha256=")
// against body. Every failure is reported as ErrUnauthorized.
func VerifySignature(secret string, header string, body []byte) error {
	if secret == "" {
		return ErrUnauthorized
	}
	encoded := strings.TrimPrefix(strings.TrimSpace(header), signaturePrefix)
	if encoded == "" {
		return ErrUnauthorized
	}
	provided, err := hex.DecodeString(encoded)
	if err != nil {
		return ErrUnauthorized
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrUnauthorized
	}
	return nil
}
