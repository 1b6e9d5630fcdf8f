package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature_Valid(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"checkout_session.payment.paid"}`)
	ts := "1717171717"

	header := "t=" + ts + ",te=" + sign(secret, ts, body) + ",li=deadbeef"
	assert.NoError(t, VerifyWebhookSignature(secret, header, body, false))

	header = "t=" + ts + ",te=deadbeef,li=" + sign(secret, ts, body)
	assert.NoError(t, VerifyWebhookSignature(secret, header, body, true))
}

func TestVerifyWebhookSignature_Mismatch(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"checkout_session.payment.paid"}`)
	ts := "1717171717"

	header := "t=" + ts + ",te=" + sign("other-secret", ts, body) + ",li="
	err := VerifyWebhookSignature(secret, header, body, false)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_TamperedBody(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"amount":1500}`)
	ts := "1717171717"

	header := "t=" + ts + ",te=" + sign(secret, ts, body) + ",li="
	err := VerifyWebhookSignature(secret, header, []byte(`{"amount":9999}`), false)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyWebhookSignature_MissingFields(t *testing.T) {
	body := []byte(`{}`)

	assert.ErrorIs(t, VerifyWebhookSignature("s", "", body, false), ErrSignatureMissing)
	assert.ErrorIs(t, VerifyWebhookSignature("s", "te=abc", body, false), ErrSignatureMissing)
	assert.ErrorIs(t, VerifyWebhookSignature("s", "t=123", body, true), ErrSignatureMissing)
	assert.ErrorIs(t, VerifyWebhookSignature("s", "garbage", body, false), ErrSignatureMissing)
}
