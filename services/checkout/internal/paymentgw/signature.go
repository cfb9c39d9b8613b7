package paymentgw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"example.com/checkout-core/services/checkout/internal/domain"
)

// Signer проверяет подписи шлюза.
// Client callback подписан секретом ключа API, webhook — секретом webhook.
type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewSigner создаёт Signer.
func NewSigner(keySecret, webhookSecret string) Signer {
	return Signer{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret)}
}

// SignClient — hex(HMAC-SHA256(keySecret, gatewayOrderID + "|" + paymentID)).
func (s Signer) SignClient(gatewayOrderID, paymentID string) string {
	return sign(s.keySecret, []byte(gatewayOrderID+"|"+paymentID))
}

// SignWebhook — hex(HMAC-SHA256(webhookSecret, body)).
func (s Signer) SignWebhook(body []byte) string {
	return sign(s.webhookSecret, body)
}

// VerifyClient проверяет подпись client callback.
func (s Signer) VerifyClient(gatewayOrderID, paymentID, signature string) error {
	if gatewayOrderID == "" || paymentID == "" {
		return domain.ErrInvalidSignature
	}
	return verify(s.SignClient(gatewayOrderID, paymentID), signature)
}

// VerifyWebhook проверяет подпись тела webhook в исходном виде.
func (s Signer) VerifyWebhook(body []byte, signature string) error {
	return verify(s.SignWebhook(body), signature)
}

func sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify сравнивает подписи за постоянное время.
func verify(expected, got string) error {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" || !hmac.Equal([]byte(expected), []byte(got)) {
		return domain.ErrInvalidSignature
	}
	return nil
}
