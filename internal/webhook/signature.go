package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const SignaturePrefix = "sha256="

// Sign returns "sha256=<hex>" of the HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid Sign(secret, body). The
// comparison is constant time.
func Verify(secret string, body []byte, signature string) bool {
	hexSig, ok := strings.CutPrefix(strings.TrimSpace(signature), SignaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// canonicalWithout re-encodes a JSON object with key removed, top-level keys
// sorted and all insignificant whitespace dropped. Senders that embed the
// signature in the body sign this form.
func canonicalWithout(fields map[string]json.RawMessage, key string) ([]byte, error) {
	rest := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if k != key {
			rest[k] = v
		}
	}
	out, err := json.Marshal(rest)
	if err != nil {
		return nil, fmt.Errorf("canonicalize body: %w", err)
	}
	return out, nil
}
