// Package signature implements the outbound webhook signing scheme: an
// HMAC-SHA256 over "<timestamp>.<payload>" carried in the X-Webhook-Signature
// header, with the signing timestamp in X-Webhook-Timestamp. Receivers
// recompute the digest and compare in constant time, rejecting timestamps
// outside the replay tolerance window.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"

	// DefaultToleranceSeconds bounds the skew between the signing timestamp
	// and the receiver's clock, in either direction.
	DefaultToleranceSeconds int64 = 300

	secretPrefix = "whsec_"
)

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<payload>".
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers returns the two delivery headers for a signed payload.
func Headers(timestamp int64, sig string) map[string]string {
	return map[string]string{
		HeaderTimestamp: strconv.FormatInt(timestamp, 10),
		HeaderSignature: sig,
	}
}

type VerifyResult struct {
	Valid  bool
	Reason string
}

func invalid(reason string) VerifyResult {
	return VerifyResult{Reason: reason}
}

// Verify checks a received signature against the payload. The timestamp must
// fall within toleranceSeconds of now; pass 0 to use the default window.
func Verify(secret string, timestamp int64, payload []byte, sig string, now time.Time, toleranceSeconds int64) VerifyResult {
	if strings.TrimSpace(secret) == "" {
		return invalid("signing secret is required")
	}
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return invalid("signature is required")
	}
	if toleranceSeconds <= 0 {
		toleranceSeconds = DefaultToleranceSeconds
	}

	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > toleranceSeconds {
		return invalid(fmt.Sprintf("timestamp outside tolerance window (%ds skew)", skew))
	}

	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return invalid("signature is not valid hex")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return invalid("signature mismatch")
	}
	return VerifyResult{Valid: true}
}

// VerifyHeaders is Verify fed from delivery headers. Header lookup is
// case-insensitive.
func VerifyHeaders(secret string, headers map[string]string, payload []byte, now time.Time, toleranceSeconds int64) VerifyResult {
	rawTimestamp := strings.TrimSpace(headerValue(headers, HeaderTimestamp))
	if rawTimestamp == "" {
		return invalid(HeaderTimestamp + " header is required")
	}
	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return invalid(HeaderTimestamp + " header is not a unix timestamp")
	}
	sig := strings.TrimSpace(headerValue(headers, HeaderSignature))
	if sig == "" {
		return invalid(HeaderSignature + " header is required")
	}
	return Verify(secret, timestamp, payload, sig, now, toleranceSeconds)
}

// GenerateSecret returns a fresh 256-bit signing secret in whsec_<hex> form.
func GenerateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("signature: secret generation failed: %w", err)
	}
	return secretPrefix + hex.EncodeToString(raw), nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return value
	}
	for candidate, value := range headers {
		if strings.EqualFold(candidate, key) {
			return value
		}
	}
	return ""
}
