package wallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret. It is
// used both for outbound forwarding signatures and in tests.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the Razorpay webhook signature against the raw
// request body. The body must be the exact bytes received on the wire; a
// re-serialization of the parsed payload is not byte-stable and would make
// this check unsound.
//
// Any malformed input (empty header, empty secret, non-hex signature) fails
// verification rather than erroring. Comparison is constant time.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
