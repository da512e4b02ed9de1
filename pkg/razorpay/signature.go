package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body using the webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMAC(c.webhookSecret, body, signature)
}

// VerifyPaymentSignature checks the signature the checkout flow returns. The
// signed message is "<paymentID>|<subscriptionID>" keyed with the API secret,
// not the webhook secret; a standalone payment signs the payment id alone.
func (c *Client) VerifyPaymentSignature(paymentID, subscriptionID, signature string) bool {
	message := paymentID
	if subscriptionID != "" {
		message += "|" + subscriptionID
	}
	return verifyHMAC(c.keySecret, []byte(message), signature)
}

func verifyHMAC(secret string, message []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
