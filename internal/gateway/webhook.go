package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrSignatureMissing = errors.New("gateway: signature header is missing or malformed")
	ErrSignatureInvalid = errors.New("gateway: signature mismatch")
)

// Заголовок с подписью вебхука.
const SignatureHeader = "X-Gateway-Signature"

// Типы событий вебхука, обрабатываемые сервисом.
const (
	EventSessionPaid = "checkout.session.paid"
)

// WebhookEvent — распарсенное тело вебхука шлюза.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		SessionID     string `json:"session_id"`
		PaymentID     string `json:"payment_id"`
		PaymentMethod string `json:"payment_method"`
	} `json:"data"`
}

// ParseWebhookEvent разбирает тело вебхука. Подпись должна быть
// проверена до вызова через VerifyWebhookSignature.
func ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, errors.New("gateway: malformed webhook body")
	}
	if event.Type == "" || event.Data.SessionID == "" {
		return nil, errors.New("gateway: webhook body missing required fields")
	}
	return &event, nil
}

// VerifyWebhookSignature проверяет подлинность вебхука шлюза.
// Заголовок имеет формат "t=<timestamp>,te=<test_sig>,li=<live_sig>";
// подпись пересчитывается как HMAC-SHA256(secret, "{timestamp}.{rawBody}")
// и сравнивается за константное время с полем нужного режима.
func VerifyWebhookSignature(secret string, header string, rawBody []byte, live bool) error {
	timestamp, testSig, liveSig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := liveSig
	if !live {
		expected = testSig
	}
	if expected == "" {
		return ErrSignatureMissing
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) != 1 {
		return ErrSignatureInvalid
	}

	return nil
}

func parseSignatureHeader(header string) (timestamp, testSig, liveSig string, err error) {
	if header == "" {
		return "", "", "", ErrSignatureMissing
	}

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", "", ErrSignatureMissing
		}
		switch key {
		case "t":
			timestamp = value
		case "te":
			testSig = value
		case "li":
			liveSig = value
		}
	}

	if timestamp == "" {
		return "", "", "", ErrSignatureMissing
	}

	return timestamp, testSig, liveSig, nil
}
