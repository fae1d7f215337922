package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader: заголовок, в котором шлюз передаёт подпись callback.
const SignatureHeader = "X-Callback-Signature"

// Sign вычисляет HMAC-SHA256 тела запроса в hex.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись callback с ожидаемой за постоянное время.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// ParseCallback разбирает тело callback и нормализует статус.
func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	cb.Status = strings.ToUpper(strings.TrimSpace(cb.Status))
	if cb.MerchantRef == "" {
		return nil, fmt.Errorf("decode callback: empty merchant_ref")
	}
	return &cb, nil
}
