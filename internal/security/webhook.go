package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const HeaderWebhookSignature = "X-Billing-Signature"

// SignWebhookBody computes the hex HMAC-SHA256 the billing provider puts in
// the signature header, over the raw request body.
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func ValidateWebhookSignature(secret string, body []byte, signature string) bool {
	expected := SignWebhookBody(secret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
